package device

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-zigbee/internal/capability"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrCapabilityNotFound) {
//	    // handle not found case
//	}
var (
	// ErrCapabilityNotFound is returned when a capability name is not known.
	ErrCapabilityNotFound = errors.New("device: capability not found")

	// ErrCapabilityExists is returned when adding a capability whose name is taken.
	ErrCapabilityExists = errors.New("device: capability already exists")

	// ErrNotWritable is returned when writing a read-only capability.
	// It wraps capability.ErrValidation so callers can map both the same way.
	ErrNotWritable = fmt.Errorf("device: capability not writable: %w", capability.ErrValidation)
)
