package capability

import (
	"errors"
	"fmt"
)

// Logger is the logging interface used by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Capability is one named, typed property of a device.
//
// The descriptor fields are fixed at construction. A capability may be
// neither readable nor writable (for example a broadcast-only action).
type Capability struct {
	name        string
	description string
	canRead     bool
	canWrite    bool
	state       State
	logger      Logger
}

// Description is a serialisable summary of a capability for API consumers.
type Description struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Type        Kind          `json:"type"`
	Readable    bool          `json:"readable"`
	Writable    bool          `json:"writable"`
	Property    string        `json:"property,omitempty"`
	WireType    string        `json:"wire_type,omitempty"`
	ValueOn     any           `json:"value_on,omitempty"`
	ValueOff    any           `json:"value_off,omitempty"`
	Min         *float64      `json:"value_min,omitempty"`
	Max         *float64      `json:"value_max,omitempty"`
	Unit        string        `json:"unit,omitempty"`
	Values      []any         `json:"values,omitempty"`
	Presets     []Preset      `json:"presets,omitempty"`
	Children    []Description `json:"features,omitempty"`
}

// New creates a capability owning state.
//
// For a composite state, name is an identifier chosen independently of the
// wire property, which is taken from the state.
func New(name, description string, canRead, canWrite bool, state State) *Capability {
	return &Capability{
		name:        name,
		description: description,
		canRead:     canRead,
		canWrite:    canWrite,
		state:       state,
		logger:      noopLogger{},
	}
}

// Name returns the capability name.
func (c *Capability) Name() string { return c.name }

// Description returns the human-readable description.
func (c *Capability) Description() string { return c.description }

// CanRead reports whether the device can be asked for this value.
func (c *Capability) CanRead() bool { return c.canRead }

// CanWrite reports whether the value can be set.
func (c *Capability) CanWrite() bool { return c.canWrite }

// State returns the owned state.
func (c *Capability) State() State { return c.state }

// Kind returns the state's type tag.
func (c *Capability) Kind() Kind { return c.state.Kind() }

// IsComposite reports whether the capability wraps a CompositeState.
func (c *Capability) IsComposite() bool {
	_, ok := c.state.(*CompositeState)
	return ok
}

// Property returns the key this capability uses on the wire: the shared
// property for a composite, the name otherwise.
func (c *Capability) Property() string {
	if cs, ok := c.state.(*CompositeState); ok {
		return cs.property
	}
	return c.name
}

// SetLogger sets the logger used for dropped reports and warnings.
func (c *Capability) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
	c.state.setLogger(logger)
}

// Matches reports whether an inbound key/value pair belongs to this capability.
//
// A composite also matches its wire property, but only when value is a
// mapping carrying every child sub-property. Partial composites never match.
func (c *Capability) Matches(key string, value any) bool {
	if key == c.name {
		return true
	}
	cs, ok := c.state.(*CompositeState)
	if !ok || key != cs.property {
		return false
	}
	m, ok := asMap(value)
	return ok && cs.hasAllKeys(m)
}

// ApplyLocal applies a locally initiated write.
//
// Returns:
//   - error: wraps ErrValidation if the value is rejected
func (c *Capability) ApplyLocal(value any) error {
	if err := c.state.SetLocal(value); err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	return nil
}

// Validate checks a local write without applying it.
//
// Returns:
//   - error: wraps ErrValidation if ApplyLocal would reject the value
func (c *Capability) Validate(value any) error {
	if cs, ok := c.state.(*CompositeState); ok {
		if err := cs.checkWritable(); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	if _, err := c.state.coerce(value); err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	return nil
}

// ApplyReport applies a value reported by the device. Rejected and stale
// values are logged and dropped.
//
// Returns:
//   - bool: true if the value was applied
func (c *Capability) ApplyReport(value any) bool {
	applied, err := c.state.SetFromReport(value)
	switch {
	case errors.Is(err, ErrStaleReport):
		c.logger.Error("stale report dropped, local write pending",
			"capability", c.name,
			"value", value,
		)
	case err != nil:
		c.logger.Warn("invalid report dropped",
			"capability", c.name,
			"value", value,
			"error", err,
		)
	}
	return applied
}

// Read returns {name: value} ({property: value} for a composite), or nil
// when the value is unknown.
func (c *Capability) Read() map[string]any {
	v := c.state.Read()
	if v == nil {
		return nil
	}
	return map[string]any{c.Property(): v}
}

// FlushOutbound returns the pending wire value keyed like Read and clears the
// pending mark. It returns nil when there is nothing to send or the
// capability is not writable. Composites are always eligible since their
// children carry their own write permission.
func (c *Capability) FlushOutbound() map[string]any {
	if !c.canWrite && !c.IsComposite() {
		return nil
	}
	v, ok := c.state.FlushOutbound()
	if !ok {
		return nil
	}
	return map[string]any{c.Property(): v}
}

// OnReport registers a callback invoked after an inbound report is applied.
func (c *Capability) OnReport(fn func(value any)) {
	c.state.OnReport(fn)
}

// ReportCallback returns the registered report callback, or nil.
func (c *Capability) ReportCallback() func(value any) {
	return c.state.reportHook()
}

// Describe returns a serialisable summary of the capability.
func (c *Capability) Describe() Description {
	d := Description{
		Name:        c.name,
		Description: c.description,
		Type:        c.state.Kind(),
		Readable:    c.canRead,
		Writable:    c.canWrite,
	}
	c.state.describe(&d)
	return d
}
