package capability

import "math"

// NumericState is a float64 value with optional inclusive bounds.
type NumericState struct {
	base
	min     *float64
	max     *float64
	unit    string
	presets []Preset
}

// NumericOption configures a NumericState.
type NumericOption func(*NumericState)

// WithMin sets the inclusive lower bound.
func WithMin(v float64) NumericOption {
	return func(s *NumericState) { s.min = &v }
}

// WithMax sets the inclusive upper bound.
func WithMax(v float64) NumericOption {
	return func(s *NumericState) { s.max = &v }
}

// WithUnit records the unit of measure for descriptions.
func WithUnit(unit string) NumericOption {
	return func(s *NumericState) { s.unit = unit }
}

// WithNumericPresets registers named presets that alias numeric values.
func WithNumericPresets(presets ...Preset) NumericOption {
	return func(s *NumericState) { s.presets = append(s.presets, presets...) }
}

// NewNumericState creates a numeric state.
func NewNumericState(opts ...NumericOption) *NumericState {
	s := &NumericState{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *NumericState) Kind() Kind { return KindNumeric }

func (s *NumericState) SetLocal(value any) error { return setLocal(s, value) }

func (s *NumericState) SetFromReport(value any) (bool, error) { return setFromReport(s, value) }

func (s *NumericState) FlushOutbound() (any, bool) { return flush(s) }

// Bounds returns the configured bounds; nil means unbounded.
func (s *NumericState) Bounds() (lower, upper *float64) {
	return s.min, s.max
}

func (s *NumericState) coerce(value any) (any, error) {
	value = resolvePreset(s.presets, value)

	f, ok := parseFloat(value)
	if !ok {
		return nil, validationErrorf("%v is not numeric", value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, validationErrorf("%v is not a finite number", value)
	}
	if s.min != nil && f < *s.min {
		return nil, validationErrorf("%v is below minimum %v", f, *s.min)
	}
	if s.max != nil && f > *s.max {
		return nil, validationErrorf("%v is above maximum %v", f, *s.max)
	}
	return f, nil
}

func (s *NumericState) describe(d *Description) {
	d.Min = s.min
	d.Max = s.max
	d.Unit = s.unit
	d.Presets = s.presets
}
