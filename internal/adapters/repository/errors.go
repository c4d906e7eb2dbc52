package repository

import "errors"

// Sentinel kinds for subscription store errors.
var (
	ErrNotSubscribed = errors.New("subscription not found")
	ErrStoreCorrupt  = errors.New("subscription store unreadable")
)
