package app

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNoSnapshot        = errors.New("no snapshot published yet")
	ErrSubscriptionLimit = errors.New("subscription limit reached")
)
