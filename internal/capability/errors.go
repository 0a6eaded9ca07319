package capability

import (
	"errors"
	"fmt"
)

// Domain errors for capability operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrValidation is returned when a value is not acceptable for a capability.
	ErrValidation = errors.New("capability: validation failed")

	// ErrStaleReport is returned by SetFromReport when a local write is still
	// waiting to be flushed. It is logged by the caller and never surfaced.
	ErrStaleReport = errors.New("capability: stale report while local write pending")
)

// validationErrorf wraps ErrValidation with a formatted detail message.
func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
