package notify

import "errors"

// Sentinel kinds for delivery errors.
var (
	ErrNotifyDelivery = errors.New("notification delivery failed")
)
