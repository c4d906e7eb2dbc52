package aggregate

import "errors"

// Sentinel kinds for aggregation errors.
var (
	ErrNotFound     = errors.New("region not in snapshot")
	ErrInvalidLimit = errors.New("invalid ranking limit")
	ErrInvalidStart = errors.New("invalid ranking start")
)
