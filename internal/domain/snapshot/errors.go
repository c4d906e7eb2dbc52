package snapshot

import "errors"

// Sentinel kinds for parser errors.
var (
	ErrParse         = errors.New("snapshot parse failed")
	ErrEmptySnapshot = errors.New("snapshot contains no valid regions")
)
