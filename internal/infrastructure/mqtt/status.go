package mqtt

import (
	"encoding/json"
	"time"
)

// ServicePrefix roots the topics this service publishes itself. Topics
// under the zigbee2mqtt base are built by the zigbee bridge package.
const ServicePrefix = "zigbridge"

// StatusTopic carries the retained availability message and the Last Will.
const StatusTopic = ServicePrefix + "/status"

// EventTopic returns the topic for a service event, for example
// zigbridge/event/network_discovered.
func EventTopic(name string) string {
	return ServicePrefix + "/event/" + name
}

// Availability states, in the same {"state": ...} shape zigbee2mqtt uses
// for its own bridge/state topic.
const (
	stateOnline  = "online"
	stateOffline = "offline"

	// reasonShutdown is set when Close runs; the Last Will carries
	// reasonLost instead.
	reasonShutdown = "shutdown"
	reasonLost     = "connection_lost"
)

// availability is the JSON body published on StatusTopic.
type availability struct {
	State    string `json:"state"`
	ClientID string `json:"client_id"`
	Reason   string `json:"reason,omitempty"`
	Since    string `json:"since,omitempty"`
}

// availabilityPayload encodes a status body. A zero at leaves since unset,
// which the Last Will relies on since it is built before the broker
// could ever publish it.
func availabilityPayload(clientID, state, reason string, at time.Time) []byte {
	a := availability{State: state, ClientID: clientID, Reason: reason}
	if !at.IsZero() {
		a.Since = at.UTC().Format(time.RFC3339)
	}
	//nolint:errchkjson // string fields only
	b, _ := json.Marshal(a)
	return b
}

// announce publishes the retained availability without waiting for the
// broker.
func (c *Client) announce(state, reason string) pahoToken {
	return c.client.Publish(StatusTopic, byte(c.cfg.QoS), true, availabilityPayload(c.clientID, state, reason, time.Now()))
}
