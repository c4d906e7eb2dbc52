package region

import "errors"

// Sentinel kinds for catalog errors.
var (
	ErrUnknownRegion = errors.New("unknown region")
	ErrBadAliasTable = errors.New("invalid alias table")
)
