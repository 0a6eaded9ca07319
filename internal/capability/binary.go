package capability

import "strings"

// BinaryState is an on/off value. It is stored locally as a bool and
// re-encoded to the configured wire literals on flush.
type BinaryState struct {
	base
	valueOn  any
	valueOff any
}

// NewBinaryState creates a binary state with the given wire literals.
// A nil literal falls back to the bool itself.
func NewBinaryState(valueOn, valueOff any) *BinaryState {
	return &BinaryState{valueOn: valueOn, valueOff: valueOff}
}

func (s *BinaryState) Kind() Kind { return KindBinary }

func (s *BinaryState) SetLocal(value any) error { return setLocal(s, value) }

func (s *BinaryState) SetFromReport(value any) (bool, error) { return setFromReport(s, value) }

func (s *BinaryState) FlushOutbound() (any, bool) { return flush(s) }

// ValueOn returns the wire literal for "on".
func (s *BinaryState) ValueOn() any { return s.valueOn }

// ValueOff returns the wire literal for "off".
func (s *BinaryState) ValueOff() any { return s.valueOff }

// wireValue re-encodes the stored bool to the configured literal.
func (s *BinaryState) wireValue() any {
	on, _ := s.value.(bool) //nolint:errcheck // value is always a bool once set
	switch {
	case on && s.valueOn != nil:
		return s.valueOn
	case !on && s.valueOff != nil:
		return s.valueOff
	default:
		return on
	}
}

func (s *BinaryState) coerce(value any) (any, error) {
	if b, ok := value.(bool); ok {
		return b, nil
	}
	if s.valueOn != nil && equalValues(value, s.valueOn) {
		return true, nil
	}
	if s.valueOff != nil && equalValues(value, s.valueOff) {
		return false, nil
	}
	if str, ok := value.(string); ok {
		switch strings.ToLower(str) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
	}
	return nil, validationErrorf("%v is not a binary value (expected bool, %v or %v)", value, s.valueOn, s.valueOff)
}

func (s *BinaryState) describe(d *Description) {
	d.ValueOn = s.valueOn
	d.ValueOff = s.valueOff
}
