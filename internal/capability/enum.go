package capability

// Preset is a named alias for an underlying value.
type Preset struct {
	Name        string `json:"name"`
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
}

// resolvePreset substitutes a preset name with its underlying value.
func resolvePreset(presets []Preset, value any) any {
	name, ok := value.(string)
	if !ok {
		return value
	}
	for _, p := range presets {
		if p.Name == name {
			return p.Value
		}
	}
	return value
}

// EnumState is a value drawn from an allowed list.
//
// An empty allowed list accepts any value and logs a warning, since some
// devices advertise enums without enumerating them.
type EnumState struct {
	base
	values  []any
	presets []Preset
}

// NewEnumState creates an enum state with the given allowed values and presets.
func NewEnumState(values []any, presets ...Preset) *EnumState {
	return &EnumState{values: values, presets: presets}
}

func (s *EnumState) Kind() Kind { return KindEnum }

func (s *EnumState) SetLocal(value any) error { return setLocal(s, value) }

func (s *EnumState) SetFromReport(value any) (bool, error) { return setFromReport(s, value) }

func (s *EnumState) FlushOutbound() (any, bool) { return flush(s) }

// Values returns the allowed values.
func (s *EnumState) Values() []any {
	return s.values
}

func (s *EnumState) coerce(value any) (any, error) {
	value = resolvePreset(s.presets, value)

	if len(s.values) == 0 {
		s.log().Warn("enum has no allowed values, accepting value unchecked", "value", value)
		return value, nil
	}
	for _, allowed := range s.values {
		if equalValues(value, allowed) {
			return allowed, nil
		}
	}
	return nil, validationErrorf("%v is not one of %v", value, s.values)
}

func (s *EnumState) describe(d *Description) {
	d.Values = s.values
	d.Presets = s.presets
}
