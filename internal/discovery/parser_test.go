package discovery

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-zigbee/internal/capability"
	"github.com/nerrad567/gray-logic-zigbee/internal/device"
)

// recordingLogger captures warnings for assertions.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

const lampPayload = `[
  {
    "ieee_address": "0x0017880104e45517",
    "friendly_name": "lamp",
    "type": "Router",
    "interview_completed": true,
    "interviewing": false,
    "definition": {
      "vendor": "Philips",
      "model": "9290012573A",
      "description": "Hue white and color ambiance E26/E27/E14",
      "exposes": [
        {
          "type": "light",
          "features": [
            {"type": "binary", "name": "state", "property": "state", "access": 7, "value_on": "ON", "value_off": "OFF"},
            {"type": "numeric", "name": "brightness", "property": "brightness", "access": 7, "value_min": 0, "value_max": 254}
          ]
        }
      ]
    }
  }
]`

const fullPayload = `[
  {
    "ieee_address": "0x00158d0001a2b3c4",
    "friendly_name": "Oficina",
    "interview_completed": true,
    "definition": {
      "vendor": "IKEA",
      "model": "LED1545G12",
      "description": "TRADFRI bulb",
      "exposes": [
        {
          "type": "light",
          "features": [
            {"type": "binary", "name": "state", "property": "state", "access": 7, "value_on": "ON", "value_off": "OFF"},
            {"type": "numeric", "name": "color_temp", "property": "color_temp", "access": 7, "value_min": 250, "value_max": 454,
             "presets": [{"name": "coolest", "value": 250, "description": "Coolest temperature"}]},
            {"type": "composite", "name": "color_xy", "property": "color", "access": 7,
             "features": [
               {"type": "numeric", "name": "x", "property": "x", "access": 7},
               {"type": "numeric", "name": "y", "property": "y", "access": 7}
             ]}
          ]
        },
        {
          "type": "switch",
          "features": [
            {"type": "binary", "name": "child_lock", "property": "child_lock", "access": 2, "value_on": "LOCK", "value_off": "UNLOCK"}
          ]
        },
        {"type": "enum", "name": "effect", "property": "effect", "access": 2, "values": ["blink", "breathe", "okay"]},
        {"type": "numeric", "name": "linkquality", "property": "linkquality", "access": 1, "unit": "lqi"},
        {"type": "text", "name": "label", "property": "label", "access": 3},
        {"type": "enum", "name": "action", "access": 1, "values": ["on", "off"]}
      ]
    }
  }
]`

func decodeOne(t *testing.T, payload string) Descriptor {
	t.Helper()
	descs, err := DecodeDevices([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeDevices() error = %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("DecodeDevices() returned %d descriptors, want 1", len(descs))
	}
	return descs[0]
}

func mustCapability(t *testing.T, d *device.Device, name string) *capability.Capability {
	t.Helper()
	c, err := d.Capability(name)
	if err != nil {
		t.Fatalf("Capability(%q) error = %v", name, err)
	}
	return c
}

// =============================================================================
// Device identity
// =============================================================================

func TestParse_LampScenario(t *testing.T) {
	d, err := Parse(decodeOne(t, lampPayload), nil, 1)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := d.CapabilityNames(); !reflect.DeepEqual(got, []string{"state", "brightness"}) {
		t.Fatalf("CapabilityNames() = %v, want [state brightness]", got)
	}
	if d.Type() != "light" {
		t.Errorf("Type() = %q, want light", d.Type())
	}
	if d.Manufacturer() != "Philips" || d.Model() != "9290012573A" {
		t.Errorf("identity = %s/%s", d.Manufacturer(), d.Model())
	}

	if err := d.Write("state", true); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := d.FlushOutbound(); !reflect.DeepEqual(got, map[string]any{"state": "ON"}) {
		t.Errorf("FlushOutbound() = %v, want {state: ON}", got)
	}

	d.ReconcileReport(map[string]any{"brightness": float64(145)})
	want := map[string]any{"state": true, "brightness": float64(145)}
	if got := d.ReadState(); !reflect.DeepEqual(got, want) {
		t.Errorf("ReadState() = %v, want %v", got, want)
	}
}

func TestParse_Names(t *testing.T) {
	tests := []struct {
		name         string
		desc         Descriptor
		aliases      map[string]string
		wantName     string
		wantRealName string
	}{
		{
			name:         "friendly name",
			desc:         Descriptor{IEEEAddress: "0x01", FriendlyName: "Oficina"},
			wantName:     "Oficina",
			wantRealName: "Oficina",
		},
		{
			name:         "alias by friendly name",
			desc:         Descriptor{IEEEAddress: "0x01", FriendlyName: "Oficina"},
			aliases:      map[string]string{"Oficina": "Office"},
			wantName:     "Office",
			wantRealName: "Oficina",
		},
		{
			name:         "alias by address",
			desc:         Descriptor{IEEEAddress: "0x01", FriendlyName: "Oficina"},
			aliases:      map[string]string{"0x01": "Office"},
			wantName:     "Office",
			wantRealName: "Oficina",
		},
		{
			name:         "friendly name alias wins over address alias",
			desc:         Descriptor{IEEEAddress: "0x01", FriendlyName: "Oficina"},
			aliases:      map[string]string{"0x01": "ByAddress", "Oficina": "ByName"},
			wantName:     "ByName",
			wantRealName: "Oficina",
		},
		{
			name:         "real name defaults to address",
			desc:         Descriptor{IEEEAddress: "0x01"},
			wantName:     "0x01",
			wantRealName: "0x01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse(tt.desc, tt.aliases, 7)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if d.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", d.Name(), tt.wantName)
			}
			if d.RealName() != tt.wantRealName {
				t.Errorf("RealName() = %q, want %q", d.RealName(), tt.wantRealName)
			}
			if d.ID() != 7 {
				t.Errorf("ID() = %d, want 7", d.ID())
			}
		})
	}
}

func TestParse_Broken(t *testing.T) {
	tests := []struct {
		completed    bool
		interviewing bool
		want         bool
	}{
		{completed: true, interviewing: false, want: false},
		{completed: false, interviewing: true, want: false},
		{completed: false, interviewing: false, want: true},
	}

	for _, tt := range tests {
		d, err := Parse(Descriptor{
			IEEEAddress:        "0x01",
			InterviewCompleted: tt.completed,
			Interviewing:       tt.interviewing,
		}, nil, 1)
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if d.Broken() != tt.want {
			t.Errorf("completed=%v interviewing=%v: Broken() = %v, want %v",
				tt.completed, tt.interviewing, d.Broken(), tt.want)
		}
	}
}

func TestParse_MissingAddress(t *testing.T) {
	_, err := Parse(Descriptor{FriendlyName: "x"}, nil, 1)
	if !errors.Is(err, ErrMissingAddress) {
		t.Errorf("Parse() error = %v, want ErrMissingAddress", err)
	}
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Parse() error = %v, want ErrMalformed", err)
	}
}

func TestDecodeDevices_Malformed(t *testing.T) {
	for _, payload := range []string{`not json`, `{"ieee_address": "0x01"}`, `[1, 2]`} {
		if _, err := DecodeDevices([]byte(payload)); !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeDevices(%q) error = %v, want ErrMalformed", payload, err)
		}
	}
}

// =============================================================================
// Exposes tree
// =============================================================================

func TestParse_ExposesTree(t *testing.T) {
	logger := &recordingLogger{}
	p := NewParser(map[string]string{"Oficina": "Office"})
	p.SetLogger(logger)

	d, err := p.Parse(decodeOne(t, fullPayload), 3)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	wantNames := []string{"state", "color_temp", "color_xy", "child_lock", "effect", "linkquality", "label"}
	if got := d.CapabilityNames(); !reflect.DeepEqual(got, wantNames) {
		t.Errorf("CapabilityNames() = %v, want %v", got, wantNames)
	}

	if d.Type() != "light" {
		t.Errorf("Type() = %q, want light (first hint wins)", d.Type())
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings = %v, want one for the ignored switch hint", logger.warns)
	}
}

func TestParse_AccessMask(t *testing.T) {
	d, err := Parse(decodeOne(t, fullPayload), nil, 1)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		name      string
		wantRead  bool
		wantWrite bool
	}{
		{name: "state", wantRead: true, wantWrite: true},         // 0b111
		{name: "child_lock", wantRead: false, wantWrite: true},   // 0b010
		{name: "linkquality", wantRead: false, wantWrite: false}, // 0b001
		{name: "label", wantRead: false, wantWrite: true},        // 0b011
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustCapability(t, d, tt.name)
			if c.CanRead() != tt.wantRead {
				t.Errorf("CanRead() = %v, want %v", c.CanRead(), tt.wantRead)
			}
			if c.CanWrite() != tt.wantWrite {
				t.Errorf("CanWrite() = %v, want %v", c.CanWrite(), tt.wantWrite)
			}
		})
	}
}

func TestParse_Composite(t *testing.T) {
	d, err := Parse(decodeOne(t, fullPayload), nil, 1)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	c := mustCapability(t, d, "color_xy")
	if !c.IsComposite() {
		t.Fatal("color_xy is not composite")
	}
	if c.Property() != "color" {
		t.Errorf("Property() = %q, want color", c.Property())
	}

	if err := d.Write("color_xy", map[string]any{"x": 0.3}); !errors.Is(err, capability.ErrValidation) {
		t.Errorf("partial Write() error = %v, want ErrValidation", err)
	}
	if _, ok := d.ReadState()["color"]; ok {
		t.Error("partial composite write was applied")
	}

	if err := d.Write("color_xy", `{"x": 0.3, "y": 0.4}`); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	want := map[string]any{"color": map[string]any{"x": 0.3, "y": 0.4}}
	if got := d.FlushOutbound(); !reflect.DeepEqual(got, want) {
		t.Errorf("FlushOutbound() = %v, want %v", got, want)
	}
}

func TestParse_LeafStates(t *testing.T) {
	d, err := Parse(decodeOne(t, fullPayload), nil, 1)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{name: "color_temp", value: "coolest"},
		{name: "color_temp", value: 300},
		{name: "color_temp", value: 100, wantErr: true},
		{name: "effect", value: "blink"},
		{name: "effect", value: "spin", wantErr: true},
		{name: "child_lock", value: "LOCK"},
		{name: "label", value: "kitchen"},
		{name: "label", value: 12, wantErr: true},
	}

	for _, tt := range tests {
		err := d.Write(tt.name, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("Write(%q, %v) error = %v, wantErr %v", tt.name, tt.value, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, capability.ErrValidation) {
			t.Errorf("Write(%q, %v) error = %v, want ErrValidation", tt.name, tt.value, err)
		}
	}

	patch := d.FlushOutbound()
	if patch["color_temp"] != float64(300) {
		t.Errorf("color_temp = %v, want 300", patch["color_temp"])
	}
	if patch["child_lock"] != "LOCK" {
		t.Errorf("child_lock = %v, want LOCK", patch["child_lock"])
	}
}

func TestParse_DuplicateCapability(t *testing.T) {
	logger := &recordingLogger{}
	p := NewParser(nil)
	p.SetLogger(logger)

	desc := Descriptor{
		IEEEAddress: "0x01",
		Definition: &Definition{Exposes: []Expose{
			{Type: ExposeNumeric, Property: "battery", Access: AccessState},
			{Type: ExposeNumeric, Property: "battery", Access: AccessState},
		}},
	}

	d, err := p.Parse(desc, 1)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := d.CapabilityNames(); !reflect.DeepEqual(got, []string{"battery"}) {
		t.Errorf("CapabilityNames() = %v, want [battery]", got)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings = %v, want 1", logger.warns)
	}
}
