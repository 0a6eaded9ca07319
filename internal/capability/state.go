package capability

import (
	"encoding/json"
	"reflect"
	"strconv"
)

// Kind identifies the value type of a State.
type Kind string

// State kinds.
const (
	KindBinary      Kind = "binary"
	KindNumeric     Kind = "numeric"
	KindEnum        Kind = "enum"
	KindComposite   Kind = "composite"
	KindUserDefined Kind = "user_defined"
)

// State is the typed value cell behind a Capability.
//
// The interface is sealed: only the variants in this package implement it.
type State interface {
	// Kind returns the variant's type tag.
	Kind() Kind

	// SetLocal validates and stores a locally initiated value and marks the
	// state as needing publication, even when the value is unchanged.
	//
	// Returns:
	//   - error: wraps ErrValidation if the value is not acceptable
	SetLocal(value any) error

	// SetFromReport applies a value reported by the device.
	//
	// Returns:
	//   - bool: true if the value was applied
	//   - error: ErrStaleReport if a local write is pending, or a wrapped
	//     ErrValidation if the value was rejected; the previous value is kept
	SetFromReport(value any) (bool, error)

	// Read returns the current value, or nil if it is unknown.
	Read() any

	// NeedsPublish reports whether a local write is waiting to be flushed.
	NeedsPublish() bool

	// FlushOutbound clears the pending-write mark and returns the wire value.
	// The second return is false when there was nothing to flush.
	FlushOutbound() (any, bool)

	// OnReport registers a callback invoked by the owning device after an
	// inbound report has been applied.
	OnReport(fn func(value any))

	coerce(value any) (any, error)
	store(value any, local bool)
	wireValue() any
	clearPending()
	reportHook() func(value any)
	setLogger(logger Logger)
	describe(d *Description)
}

// base carries the fields shared by every scalar State variant.
type base struct {
	value        any
	needsPublish bool
	onReport     func(value any)
	logger       Logger
}

func (b *base) Read() any {
	return b.value
}

func (b *base) NeedsPublish() bool {
	return b.needsPublish
}

func (b *base) OnReport(fn func(value any)) {
	b.onReport = fn
}

func (b *base) reportHook() func(value any) {
	return b.onReport
}

func (b *base) setLogger(logger Logger) {
	b.logger = logger
}

func (b *base) store(value any, local bool) {
	b.value = value
	if local {
		b.needsPublish = true
	}
}

func (b *base) wireValue() any {
	return b.value
}

func (b *base) clearPending() {
	b.needsPublish = false
}

func (b *base) log() Logger {
	if b.logger == nil {
		return noopLogger{}
	}
	return b.logger
}

// setLocal is the shared SetLocal implementation: validate, then commit.
func setLocal(s State, value any) error {
	v, err := s.coerce(value)
	if err != nil {
		return err
	}
	s.store(v, true)
	return nil
}

// setFromReport is the shared SetFromReport implementation.
func setFromReport(s State, value any) (bool, error) {
	if s.NeedsPublish() {
		return false, ErrStaleReport
	}
	v, err := s.coerce(value)
	if err != nil {
		return false, err
	}
	s.store(v, false)
	return true, nil
}

// flush is the shared FlushOutbound implementation.
func flush(s State) (any, bool) {
	if !s.NeedsPublish() {
		return nil, false
	}
	v := s.wireValue()
	s.clearPending()
	return v, true
}

// normalize converts Go and JSON numeric representations to float64 so that
// literals from discovery compare equal to values from callers.
func normalize(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}

// toFloat converts numeric values to float64. Strings are not converted.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// parseFloat accepts numeric values and numeric strings.
func parseFloat(v any) (float64, bool) {
	if f, ok := toFloat(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// equalValues compares two wire values after numeric normalisation.
func equalValues(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// asMap accepts a structured mapping or its JSON string form.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(m), &decoded); err != nil {
			return nil, false
		}
		return decoded, decoded != nil
	case []byte:
		var decoded map[string]any
		if err := json.Unmarshal(m, &decoded); err != nil {
			return nil, false
		}
		return decoded, decoded != nil
	default:
		return nil, false
	}
}
