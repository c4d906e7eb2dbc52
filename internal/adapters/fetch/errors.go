package fetch

import "errors"

// Sentinel kinds for transport errors.
var (
	ErrFetch        = errors.New("feed fetch failed")
	ErrFetchTimeout = errors.New("feed fetch timed out")
)
