package zigbee

import "strings"

// DefaultBaseTopic is the zigbee2mqtt default base topic.
const DefaultBaseTopic = "zigbee2mqtt"

// Administrative topics published by zigbee2mqtt that carry nothing the
// bridge models. They are routed to no-op callbacks so they are not
// reported as unrouted.
var adminTopics = []string{
	"bridge/state",
	"bridge/info",
	"bridge/logging",
	"bridge/config",
	"bridge/groups",
	"bridge/definitions",
	"bridge/extensions",
	"bridge/event",
}

// Topics builds zigbee2mqtt topics under a base topic.
type Topics struct {
	base string
}

// NewTopics returns a topic builder. An empty base uses DefaultBaseTopic.
func NewTopics(base string) Topics {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		base = DefaultBaseTopic
	}
	return Topics{base: base}
}

// Base returns the base topic.
func (t Topics) Base() string { return t.base }

// All returns the wildcard subscription covering every bridge topic.
// Example: zigbee2mqtt/#
func (t Topics) All() string { return t.base + "/#" }

// Devices returns the discovery topic.
// Example: zigbee2mqtt/bridge/devices
func (t Topics) Devices() string { return t.base + "/bridge/devices" }

// Device returns the state topic for a device identifier.
// Example: zigbee2mqtt/kitchen_lamp
func (t Topics) Device(id string) string { return t.base + "/" + id }

// Set returns the command topic for a device identifier.
// Example: zigbee2mqtt/kitchen_lamp/set
func (t Topics) Set(id string) string { return t.base + "/" + id + "/set" }

// Admin returns the administrative topics that are ignored.
func (t Topics) Admin() []string {
	out := make([]string, len(adminTopics))
	for i, suffix := range adminTopics {
		out[i] = t.base + "/" + suffix
	}
	return out
}
