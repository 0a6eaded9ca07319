// Package discovery turns zigbee2mqtt device descriptors into device models.
//
// zigbee2mqtt publishes the full device list as a retained JSON array on
// {base_topic}/bridge/devices. Each entry carries the hardware address, the
// friendly name, the interview status and a definition whose "exposes" tree
// describes what the device can do.
//
// The exposes tree is walked as follows:
//
//   - A node with features whose type is not "composite" (light, switch,
//     climate, cover...) is a device-type hint. The first hint becomes the
//     device type; each of its features becomes a capability.
//   - A "composite" node (color_xy, color_hs...) becomes one capability whose
//     children are parsed the same way.
//   - A node without features is a single leaf capability named after its
//     property.
//
// Access flags come from the expose access mask: 0b100 marks a readable
// value (it can be requested with /get), 0b010 a writable one.
package discovery
