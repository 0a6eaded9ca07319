package device

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/nerrad567/gray-logic-zigbee/internal/capability"
)

// Report keys that are expected without a matching capability. They are
// logged at info level instead of critical.
var ignoredReportKeys = map[string]bool{
	"update":           true,
	"update_available": true,
	"last_seen":        true,
}

// Fallback report keys absorbed onto ad-hoc attributes when no capability
// claims them. Some devices report these without exposing them.
const (
	keyBattery = "battery"
	keyVoltage = "voltage"
)

// Logger is the logging interface used by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// criticalLogger is implemented by loggers with a level above error.
type criticalLogger interface {
	Critical(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Info holds the identity of a device as learned at discovery time.
type Info struct {
	// ID is assigned by the bridge from a monotonically increasing counter.
	ID int `json:"id"`

	// Address is the immutable hardware identifier (IEEE address).
	Address string `json:"address"`

	// Name is the externally visible identifier: the alias if one is
	// configured, otherwise RealName.
	Name string `json:"name"`

	// RealName is the name reported by the network, used in outbound topics.
	RealName string `json:"real_name"`

	// Broken is true when the interview never completed and is not running.
	Broken bool `json:"broken"`

	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	Description  string `json:"description,omitempty"`

	// Type is a free-form classification hint (light, switch, climate...).
	// Empty when no hint was found.
	Type string `json:"type,omitempty"`
}

// Description is the serialisable summary returned by Describe.
type Description struct {
	Info
	Capabilities []capability.Description `json:"capabilities"`
	Battery      any                      `json:"battery,omitempty"`
	Voltage      any                      `json:"voltage,omitempty"`
}

// Device is the local model of one network unit.
type Device struct {
	info Info

	mu           sync.Mutex
	capabilities []*capability.Capability
	battery      any
	voltage      any

	onChange           func(d *Device)
	onCapabilityReport func(d *Device, name string, value any)

	logger Logger
}

// New creates a device with the given identity and capabilities.
//
// Returns:
//   - *Device: the new device
//   - error: ErrCapabilityExists if two capabilities share a name
func New(info Info, caps ...*capability.Capability) (*Device, error) {
	d := &Device{
		info:   info,
		logger: noopLogger{},
	}
	for _, c := range caps {
		if err := d.AddCapability(c); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// ID returns the bridge-assigned id.
func (d *Device) ID() int { return d.info.ID }

// Address returns the hardware address.
func (d *Device) Address() string { return d.info.Address }

// Name returns the externally visible name.
func (d *Device) Name() string { return d.info.Name }

// RealName returns the network-reported name.
func (d *Device) RealName() string { return d.info.RealName }

// Broken reports whether the device never finished its interview.
func (d *Device) Broken() bool { return d.info.Broken }

// Manufacturer returns the vendor name.
func (d *Device) Manufacturer() string { return d.info.Manufacturer }

// Model returns the model identifier.
func (d *Device) Model() string { return d.info.Model }

// Description returns the human-readable model description.
func (d *Device) Description() string { return d.info.Description }

// Type returns the classification hint, or "" if none.
func (d *Device) Type() string { return d.info.Type }

// Info returns a copy of the device identity.
func (d *Device) Info() Info { return d.info }

// SetLogger sets the logger for the device and its capabilities.
func (d *Device) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = logger
	for _, c := range d.capabilities {
		c.SetLogger(logger)
	}
}

// OnChange registers the callback invoked once per inbound report that
// changed at least one capability.
func (d *Device) OnChange(fn func(d *Device)) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// OnCapabilityReport registers the callback invoked for every capability
// changed by an inbound report.
func (d *Device) OnCapabilityReport(fn func(d *Device, name string, value any)) {
	d.mu.Lock()
	d.onCapabilityReport = fn
	d.mu.Unlock()
}

// Battery returns the ad-hoc battery value absorbed from reports, or nil.
func (d *Device) Battery() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.battery
}

// Voltage returns the ad-hoc voltage value absorbed from reports, or nil.
func (d *Device) Voltage() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.voltage
}

// =============================================================================
// Capability attachment
// =============================================================================

// AddCapability attaches a capability. Names must be unique.
func (d *Device) AddCapability(c *capability.Capability) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.indexOf(c.Name()) >= 0 {
		return fmt.Errorf("%w: %s", ErrCapabilityExists, c.Name())
	}
	if d.logger != nil {
		c.SetLogger(d.logger)
	}
	d.capabilities = append(d.capabilities, c)
	return nil
}

// ReplaceCapability swaps the capability with the same name for c.
func (d *Device) ReplaceCapability(c *capability.Capability) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.indexOf(c.Name())
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrCapabilityNotFound, c.Name())
	}
	c.SetLogger(d.logger)
	d.capabilities[i] = c
	return nil
}

// RemoveCapability detaches the named capability.
func (d *Device) RemoveCapability(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.indexOf(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrCapabilityNotFound, name)
	}
	d.capabilities = slices.Delete(d.capabilities, i, i+1)
	return nil
}

// Capability returns the named capability.
func (d *Device) Capability(name string) (*capability.Capability, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.indexOf(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrCapabilityNotFound, name)
	}
	return d.capabilities[i], nil
}

// CapabilityNames returns capability names in attachment order.
func (d *Device) CapabilityNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, len(d.capabilities))
	for i, c := range d.capabilities {
		names[i] = c.Name()
	}
	return names
}

// indexOf returns the position of the named capability or -1.
// Caller must hold d.mu.
func (d *Device) indexOf(name string) int {
	return slices.IndexFunc(d.capabilities, func(c *capability.Capability) bool {
		return c.Name() == name
	})
}

// =============================================================================
// Reconciliation
// =============================================================================

// reportHook is a deferred callback collected while the lock is held.
type reportHook struct {
	name     string
	value    any
	callback func(value any)
}

// ReconcileReport merges an inbound report into the device.
//
// Each key is matched against the capabilities in order; the first match
// receives the value. Keys are processed in sorted order so that a message
// always reconciles the same way. After the whole message has been applied
// the callbacks of every capability that accepted a value fire, followed by
// OnChange once if anything changed.
//
// Parameters:
//   - msg: decoded JSON report
//
// Returns:
//   - []string: names of the capabilities that accepted a value
func (d *Device) ReconcileReport(msg map[string]any) []string {
	d.mu.Lock()

	var hooks []reportHook
	for _, key := range slices.Sorted(maps.Keys(msg)) {
		value := msg[key]

		c := d.match(key, value)
		if c == nil {
			d.absorbUnmatched(key, value)
			continue
		}
		if c.ApplyReport(value) {
			hooks = append(hooks, reportHook{
				name:     c.Name(),
				value:    c.State().Read(),
				callback: c.ReportCallback(),
			})
		}
	}

	onChange := d.onChange
	onCapabilityReport := d.onCapabilityReport
	d.mu.Unlock()

	changed := make([]string, 0, len(hooks))
	for _, h := range hooks {
		if h.callback != nil {
			h.callback(h.value)
		}
		if onCapabilityReport != nil {
			onCapabilityReport(d, h.name, h.value)
		}
		changed = append(changed, h.name)
	}
	if len(hooks) > 0 && onChange != nil {
		onChange(d)
	}

	return changed
}

// match returns the first capability claiming key, or nil.
// Caller must hold d.mu.
func (d *Device) match(key string, value any) *capability.Capability {
	for _, c := range d.capabilities {
		if c.Matches(key, value) {
			return c
		}
	}
	return nil
}

// absorbUnmatched handles a report key no capability claimed.
// Caller must hold d.mu.
func (d *Device) absorbUnmatched(key string, value any) {
	switch {
	case key == keyBattery:
		d.battery = value
		return
	case key == keyVoltage:
		d.voltage = value
		return
	case ignoredReportKeys[key]:
		d.logger.Info("ignoring report key", "device", d.info.Name, "key", key)
		return
	}

	if cl, ok := d.logger.(criticalLogger); ok {
		cl.Critical("report key matches no capability", "device", d.info.Name, "key", key, "value", value)
		return
	}
	d.logger.Error("report key matches no capability", "device", d.info.Name, "key", key, "value", value)
}

// =============================================================================
// Local access
// =============================================================================

// ReadState returns the union of every capability's known value. Unknown
// values are absent rather than null.
func (d *Device) ReadState() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := make(map[string]any, len(d.capabilities))
	for _, c := range d.capabilities {
		maps.Copy(state, c.Read())
	}
	return state
}

// Write applies a local write to the named capability. Nothing is sent until
// the bridge publishes the device, so several writes coalesce into one patch.
//
// Parameters:
//   - name: capability name
//   - value: new value, validated by the capability's state
//
// Returns:
//   - error: ErrCapabilityNotFound, ErrNotWritable, or a wrapped
//     capability.ErrValidation
func (d *Device) Write(name string, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.indexOf(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrCapabilityNotFound, name)
	}
	c := d.capabilities[i]
	if !c.CanWrite() && !c.IsComposite() {
		return fmt.Errorf("%w: %s", ErrNotWritable, name)
	}
	return c.ApplyLocal(value)
}

// WriteAll applies several local writes as one unit. Every value is checked
// before any is applied, so a rejected key leaves the device untouched.
//
// Parameters:
//   - values: capability name to new value
//
// Returns:
//   - error: the first failure in sorted key order, as Write would report it
func (d *Device) WriteAll(values map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := slices.Sorted(maps.Keys(values))
	caps := make([]*capability.Capability, 0, len(keys))
	for _, name := range keys {
		i := d.indexOf(name)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrCapabilityNotFound, name)
		}
		c := d.capabilities[i]
		if !c.CanWrite() && !c.IsComposite() {
			return fmt.Errorf("%w: %s", ErrNotWritable, name)
		}
		if err := c.Validate(values[name]); err != nil {
			return err
		}
		caps = append(caps, c)
	}

	for i, c := range caps {
		if err := c.ApplyLocal(values[keys[i]]); err != nil {
			return err
		}
	}
	return nil
}

// FlushOutbound collects and clears every pending local write.
//
// Returns:
//   - map[string]any: the outbound patch; empty when nothing is pending
func (d *Device) FlushOutbound() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	patch := make(map[string]any)
	for _, c := range d.capabilities {
		maps.Copy(patch, c.FlushOutbound())
	}
	return patch
}

// Describe returns the device identity and capability metadata.
func (d *Device) Describe() Description {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps := make([]capability.Description, 0, len(d.capabilities))
	for _, c := range d.capabilities {
		caps = append(caps, c.Describe())
	}
	return Description{
		Info:         d.info,
		Capabilities: caps,
		Battery:      d.battery,
		Voltage:      d.voltage,
	}
}
