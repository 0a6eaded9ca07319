package api

import (
	"github.com/nerrad567/gray-logic-zigbee/internal/device"
)

// WebSocket channels broadcast by the server.
const (
	ChannelStateChanged      = "device.state_changed"
	ChannelNetworkDiscovered = "network.discovered"
)

// knownChannels are the channels a client may subscribe to.
var knownChannels = map[string]bool{
	ChannelStateChanged:      true,
	ChannelNetworkDiscovered: true,
}

// Event is one notification fanned out by the hub. Device is set for
// per-device channels so clients can narrow their subscription.
type Event struct {
	Channel string
	Device  string
	Payload any
}

// StateChangedEvent is the payload of ChannelStateChanged.
type StateChangedEvent struct {
	Device string         `json:"device"`
	State  map[string]any `json:"state"`
}

// NetworkDiscoveredEvent is the payload of ChannelNetworkDiscovered.
type NetworkDiscoveredEvent struct {
	Devices []string `json:"devices"`
	Count   int      `json:"count"`
}

// DeviceChanged broadcasts the current state of d. Matches the bridge's
// OnDeviceChange callback.
func (s *Server) DeviceChanged(d *device.Device) {
	s.hub.Broadcast(Event{
		Channel: ChannelStateChanged,
		Device:  d.Name(),
		Payload: StateChangedEvent{Device: d.Name(), State: d.ReadState()},
	})
}

// NetworkDiscovered broadcasts the discovered device names. Matches the
// bridge's OnNetworkDiscovered callback.
func (s *Server) NetworkDiscovered() {
	names := s.bridge.DeviceNames()
	s.hub.Broadcast(Event{
		Channel: ChannelNetworkDiscovered,
		Payload: NetworkDiscoveredEvent{Devices: names, Count: len(names)},
	})
}
