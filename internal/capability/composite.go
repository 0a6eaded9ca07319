package capability

import "fmt"

// CompositeState groups child capabilities that travel on the wire as one
// JSON object under a shared property (for example color: {"x": .., "y": ..}).
//
// The composite's value is derived from its children. It is unknown until
// every child has a value, and it is only ever written or reported whole.
type CompositeState struct {
	property string
	children []*Capability
	onReport func(value any)
}

// NewCompositeState creates a composite published under property.
// Each child's name is its wire sub-property.
func NewCompositeState(property string, children ...*Capability) *CompositeState {
	return &CompositeState{property: property, children: children}
}

func (s *CompositeState) Kind() Kind { return KindComposite }

// Property returns the wire property shared by all children.
func (s *CompositeState) Property() string {
	return s.property
}

// Children returns the child capabilities in declaration order.
func (s *CompositeState) Children() []*Capability {
	return s.children
}

// SetLocal validates every sub-property before applying any of them.
// Children that are not writable reject the whole write.
func (s *CompositeState) SetLocal(value any) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	return setLocal(s, value)
}

// checkWritable rejects a local write when any child is read-only.
func (s *CompositeState) checkWritable() error {
	for _, c := range s.children {
		if !c.canWrite {
			return validationErrorf("sub-property %q of %q is not writable", c.name, s.property)
		}
	}
	return nil
}

func (s *CompositeState) SetFromReport(value any) (bool, error) { return setFromReport(s, value) }

func (s *CompositeState) FlushOutbound() (any, bool) { return flush(s) }

// Read returns a mapping of every child value, or nil if any child is unknown.
func (s *CompositeState) Read() any {
	out := make(map[string]any, len(s.children))
	for _, c := range s.children {
		v := c.state.Read()
		if v == nil {
			return nil
		}
		out[c.name] = v
	}
	return out
}

// NeedsPublish reports whether any child carries a pending local write.
func (s *CompositeState) NeedsPublish() bool {
	for _, c := range s.children {
		if c.state.NeedsPublish() {
			return true
		}
	}
	return false
}

func (s *CompositeState) OnReport(fn func(value any)) {
	s.onReport = fn
}

func (s *CompositeState) reportHook() func(value any) {
	return s.onReport
}

// setLogger hands the logger to the children; the composite itself never logs.
func (s *CompositeState) setLogger(logger Logger) {
	for _, c := range s.children {
		c.SetLogger(logger)
	}
}

// hasAllKeys reports whether m carries every child sub-property.
func (s *CompositeState) hasAllKeys(m map[string]any) bool {
	for _, c := range s.children {
		if _, ok := m[c.name]; !ok {
			return false
		}
	}
	return true
}

func (s *CompositeState) coerce(value any) (any, error) {
	m, ok := asMap(value)
	if !ok {
		return nil, validationErrorf("%v is not an object for %q", value, s.property)
	}

	out := make(map[string]any, len(s.children))
	for _, c := range s.children {
		raw, present := m[c.name]
		if !present {
			return nil, validationErrorf("missing sub-property %q of %q", c.name, s.property)
		}
		v, err := c.state.coerce(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", s.property, c.name, err)
		}
		out[c.name] = v
	}
	return out, nil
}

func (s *CompositeState) store(value any, local bool) {
	m, _ := value.(map[string]any) //nolint:errcheck // produced by coerce
	for _, c := range s.children {
		c.state.store(m[c.name], local)
	}
}

func (s *CompositeState) wireValue() any {
	out := make(map[string]any, len(s.children))
	for _, c := range s.children {
		out[c.name] = c.state.wireValue()
	}
	return out
}

func (s *CompositeState) clearPending() {
	for _, c := range s.children {
		c.state.clearPending()
	}
}

func (s *CompositeState) describe(d *Description) {
	d.Property = s.property
	d.Children = make([]Description, 0, len(s.children))
	for _, c := range s.children {
		d.Children = append(d.Children, c.Describe())
	}
}
