package discovery

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-zigbee/internal/capability"
)

// Access mask bits from the exposes schema.
const (
	AccessState = 0b001 // value is published in state reports
	AccessSet   = 0b010 // value can be written via /set
	AccessGet   = 0b100 // value can be requested via /get
)

// Expose types with a dedicated capability variant.
const (
	ExposeBinary    = "binary"
	ExposeNumeric   = "numeric"
	ExposeEnum      = "enum"
	ExposeText      = "text"
	ExposeList      = "list"
	ExposeComposite = "composite"
)

// Descriptor is one entry of the bridge/devices payload.
type Descriptor struct {
	IEEEAddress        string      `json:"ieee_address"`
	FriendlyName       string      `json:"friendly_name"`
	Type               string      `json:"type,omitempty"`
	InterviewCompleted bool        `json:"interview_completed"`
	Interviewing       bool        `json:"interviewing"`
	Definition         *Definition `json:"definition,omitempty"`
}

// Definition describes the device model.
type Definition struct {
	Vendor      string   `json:"vendor"`
	Model       string   `json:"model"`
	Description string   `json:"description"`
	Exposes     []Expose `json:"exposes"`
}

// Expose is one node of the exposes tree.
type Expose struct {
	Type        string              `json:"type"`
	Name        string              `json:"name,omitempty"`
	Property    string              `json:"property,omitempty"`
	Description string              `json:"description,omitempty"`
	Access      int                 `json:"access,omitempty"`
	Features    []Expose            `json:"features,omitempty"`
	ValueOn     any                 `json:"value_on,omitempty"`
	ValueOff    any                 `json:"value_off,omitempty"`
	ValueMin    *float64            `json:"value_min,omitempty"`
	ValueMax    *float64            `json:"value_max,omitempty"`
	Values      []any               `json:"values,omitempty"`
	Presets     []capability.Preset `json:"presets,omitempty"`
	Unit        string              `json:"unit,omitempty"`
}

// Readable reports whether the access mask allows /get.
func (e Expose) Readable() bool { return e.Access&AccessGet != 0 }

// Writable reports whether the access mask allows /set.
func (e Expose) Writable() bool { return e.Access&AccessSet != 0 }

// hasFeatures reports whether the node is a container.
func (e Expose) hasFeatures() bool { return len(e.Features) > 0 }

// Broken reports whether the interview never completed and is not running.
func (d Descriptor) Broken() bool {
	return !d.InterviewCompleted && !d.Interviewing
}

// DecodeDevices decodes a bridge/devices payload.
//
// Returns:
//   - []Descriptor: entries in payload order
//   - error: wraps ErrMalformed if the payload is not a JSON array of objects
func DecodeDevices(payload []byte) ([]Descriptor, error) {
	var descs []Descriptor
	if err := json.Unmarshal(payload, &descs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return descs, nil
}
