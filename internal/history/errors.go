package history

import "errors"

var (
	// ErrDeviceRequired is returned when a device name is empty.
	ErrDeviceRequired = errors.New("history: device name is required")

	// ErrInvalidRetention is returned for a non-positive retention period.
	ErrInvalidRetention = errors.New("history: retention must be positive")
)
