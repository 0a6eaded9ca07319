// Package zigbee bridges zigbee2mqtt devices onto a typed local model.
//
// The bridge subscribes to every topic under the zigbee2mqtt base topic.
// Inbound messages are queued and handled by a single worker goroutine, so
// routing, reconciliation and discovery happen serially.
//
// # Routing
//
// Routing is an exact string match on the topic. The bridge keeps an ordered
// list of (topic, callback) pairs. For each message every matching callback
// is collected first and then invoked in registration order, so a callback
// may register new routes without affecting the current dispatch. A failing
// or panicking callback is logged and does not stop the others.
//
// # Discovery
//
// The retained {base}/bridge/devices payload lists every device. Each entry
// is parsed into a device.Device. Unknown names are registered together with
// their routes: {base}/{name}, {base}/{real_name}, {base}/{address} and the
// /set form of each. Network-discovered callbacks fire only when a payload
// added at least one device.
//
// # Publishing
//
// Local writes accumulate on the device until Publish flushes them as one
// JSON patch to {base}/{real_name}/set. Nothing is sent when no write is
// pending.
//
// Thread Safety: All exported methods are safe for concurrent use.
package zigbee
