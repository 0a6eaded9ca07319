package discovery

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-zigbee/internal/capability"
	"github.com/nerrad567/gray-logic-zigbee/internal/device"
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

// Parser builds devices from discovery descriptors.
//
// Thread Safety:
//   - Parse is safe for concurrent use once the parser is configured.
type Parser struct {
	aliases map[string]string
	logger  Logger
}

// NewParser creates a parser with an alias table mapping either a friendly
// name or an IEEE address to the name the device is exposed under.
func NewParser(aliases map[string]string) *Parser {
	table := make(map[string]string, len(aliases))
	for k, v := range aliases {
		table[k] = v
	}
	return &Parser{aliases: table, logger: noopLogger{}}
}

// SetLogger sets the logger for parse diagnostics.
func (p *Parser) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
}

// ResolveName returns the alias for realName or address, else realName.
func (p *Parser) ResolveName(realName, address string) string {
	if alias, ok := p.aliases[realName]; ok && alias != "" {
		return alias
	}
	if alias, ok := p.aliases[address]; ok && alias != "" {
		return alias
	}
	return realName
}

// Parse builds a device from one descriptor.
//
// Parameters:
//   - desc: one entry of the bridge/devices payload
//   - id: identifier assigned by the caller
//
// Returns:
//   - *device.Device: the parsed device with its capabilities attached
//   - error: ErrMissingAddress if the descriptor has no address
func (p *Parser) Parse(desc Descriptor, id int) (*device.Device, error) {
	if desc.IEEEAddress == "" {
		return nil, ErrMissingAddress
	}

	realName := desc.FriendlyName
	if realName == "" {
		realName = desc.IEEEAddress
	}

	info := device.Info{
		ID:       id,
		Address:  desc.IEEEAddress,
		Name:     p.ResolveName(realName, desc.IEEEAddress),
		RealName: realName,
		Broken:   desc.Broken(),
	}

	w := &walker{logger: p.logger, device: info.Name}
	if def := desc.Definition; def != nil {
		info.Manufacturer = def.Vendor
		info.Model = def.Model
		info.Description = def.Description
		w.walk(def.Exposes)
	}
	info.Type = w.typeHint

	d, err := device.New(info)
	if err != nil {
		return nil, fmt.Errorf("creating device %s: %w", info.Name, err)
	}
	for _, c := range w.caps {
		if err := d.AddCapability(c); err != nil {
			if errors.Is(err, device.ErrCapabilityExists) {
				p.logger.Warn("duplicate capability skipped", "device", info.Name, "capability", c.Name())
				continue
			}
			return nil, fmt.Errorf("adding capability to %s: %w", info.Name, err)
		}
	}

	return d, nil
}

// Parse builds a device using a one-off parser with the given alias table.
func Parse(desc Descriptor, aliases map[string]string, id int) (*device.Device, error) {
	return NewParser(aliases).Parse(desc, id)
}

// walker accumulates capabilities and the type hint for one device.
type walker struct {
	logger   Logger
	device   string
	typeHint string
	caps     []*capability.Capability
}

func (w *walker) walk(nodes []Expose) {
	for _, n := range nodes {
		if n.hasFeatures() && n.Type != ExposeComposite {
			w.hint(n.Type)
			w.walk(n.Features)
			continue
		}
		if c := w.capability(n); c != nil {
			w.caps = append(w.caps, c)
		}
	}
}

// hint records the device type. The first non-empty hint wins.
func (w *walker) hint(t string) {
	switch {
	case t == "":
	case w.typeHint == "":
		w.typeHint = t
	case w.typeHint != t:
		w.logger.Warn("ignoring additional device type hint",
			"device", w.device,
			"type", w.typeHint,
			"ignored", t,
		)
	}
}

func (w *walker) capability(n Expose) *capability.Capability {
	if n.hasFeatures() || n.Type == ExposeComposite {
		name := n.Name
		if name == "" {
			name = n.Property
		}
		return w.composite(n, name)
	}
	return w.leaf(n)
}

// composite builds a composite capability. Children are keyed by their wire
// sub-property, so nested composites are named after their property.
func (w *walker) composite(n Expose, name string) *capability.Capability {
	property := n.Property
	if property == "" {
		property = n.Name
	}
	if property == "" {
		w.logger.Warn("composite expose without property skipped", "device", w.device)
		return nil
	}

	children := make([]*capability.Capability, 0, len(n.Features))
	for _, f := range n.Features {
		var c *capability.Capability
		if f.hasFeatures() || f.Type == ExposeComposite {
			c = w.composite(f, f.Property)
		} else {
			c = w.leaf(f)
		}
		if c != nil {
			children = append(children, c)
		}
	}
	if len(children) == 0 {
		w.logger.Warn("composite expose without usable features skipped",
			"device", w.device,
			"property", property,
		)
		return nil
	}

	return capability.New(name, n.Description, n.Readable(), n.Writable(),
		capability.NewCompositeState(property, children...))
}

// leaf builds a scalar capability named after its property.
func (w *walker) leaf(n Expose) *capability.Capability {
	if n.Property == "" {
		w.logger.Debug("expose without property skipped",
			"device", w.device,
			"name", n.Name,
			"type", n.Type,
		)
		return nil
	}
	return capability.New(n.Property, n.Description, n.Readable(), n.Writable(), w.state(n))
}

func (w *walker) state(n Expose) capability.State {
	switch n.Type {
	case ExposeBinary:
		return capability.NewBinaryState(n.ValueOn, n.ValueOff)
	case ExposeNumeric:
		var opts []capability.NumericOption
		if n.ValueMin != nil {
			opts = append(opts, capability.WithMin(*n.ValueMin))
		}
		if n.ValueMax != nil {
			opts = append(opts, capability.WithMax(*n.ValueMax))
		}
		if n.Unit != "" {
			opts = append(opts, capability.WithUnit(n.Unit))
		}
		if len(n.Presets) > 0 {
			opts = append(opts, capability.WithNumericPresets(n.Presets...))
		}
		return capability.NewNumericState(opts...)
	case ExposeEnum:
		return capability.NewEnumState(n.Values, n.Presets...)
	case ExposeText:
		return capability.NewUserDefinedState(ExposeText, validateText)
	case ExposeList:
		return capability.NewUserDefinedState(ExposeList, validateList)
	default:
		w.logger.Warn("unknown expose type, accepting any value",
			"device", w.device,
			"property", n.Property,
			"type", n.Type,
		)
		return capability.NewUserDefinedState(n.Type, nil)
	}
}

func validateText(v any) error {
	if _, ok := v.(string); !ok {
		return fmt.Errorf("%v is not text", v)
	}
	return nil
}

func validateList(v any) error {
	if _, ok := v.([]any); !ok {
		return fmt.Errorf("%v is not a list", v)
	}
	return nil
}
