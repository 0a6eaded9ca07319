package discovery

import (
	"errors"
	"fmt"
)

// Domain errors for discovery parsing.
var (
	// ErrMalformed is returned when a discovery payload cannot be decoded.
	ErrMalformed = errors.New("discovery: malformed payload")

	// ErrMissingAddress is returned for a descriptor without an IEEE address.
	ErrMissingAddress = fmt.Errorf("%w: missing ieee_address", ErrMalformed)
)
