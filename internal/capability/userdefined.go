package capability

import "fmt"

// Validator checks a value for a UserDefinedState.
// It should return an error wrapping ErrValidation to reject the value.
type Validator func(value any) error

// UserDefinedState holds any JSON value. Text, list and other expose types
// without a dedicated variant land here.
type UserDefinedState struct {
	base
	typeName  string
	validator Validator
}

// NewUserDefinedState creates a state for the given wire type name.
// validator may be nil.
func NewUserDefinedState(typeName string, validator Validator) *UserDefinedState {
	return &UserDefinedState{typeName: typeName, validator: validator}
}

func (s *UserDefinedState) Kind() Kind { return KindUserDefined }

func (s *UserDefinedState) SetLocal(value any) error { return setLocal(s, value) }

func (s *UserDefinedState) SetFromReport(value any) (bool, error) { return setFromReport(s, value) }

func (s *UserDefinedState) FlushOutbound() (any, bool) { return flush(s) }

// TypeName returns the wire type this state was created for.
func (s *UserDefinedState) TypeName() string {
	return s.typeName
}

func (s *UserDefinedState) coerce(value any) (any, error) {
	if s.validator != nil {
		if err := s.validator(value); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return value, nil
}

func (s *UserDefinedState) describe(d *Description) {
	d.WireType = s.typeName
}
