// Package device provides the Device aggregate: one physical or logical
// Zigbee unit and the capabilities it exposes.
//
// A Device owns an ordered set of capability.Capability values keyed by
// name. It reconciles inbound state reports across those capabilities,
// accepts local writes, and produces the coalesced outbound patch that the
// bridge publishes.
//
// # Reconciliation
//
//	report {"state":"ON","brightness":145,"update":{...}}
//	   │
//	   ├── "state"      → first capability whose Matches() is true → ApplyReport
//	   ├── "brightness" → ...
//	   └── "update"     → no match → ignore-list (info) or critical log
//	   │
//	   ▼ after the whole message:
//	per-capability report callbacks, then OnChange once
//
// # Lifecycle
//
// Devices are created by the discovery parser. When a later discovery batch
// redescribes a name the bridge replaces the Device instead of mutating it,
// so callers must re-fetch the current instance from the bridge rather than
// hold on to a reference.
//
// # Thread Safety
//
// Every method is safe for concurrent use. Each Device serialises itself
// with its own mutex, which is what keeps an inbound reconcile and a local
// write from racing on the same pending-write flag. Callbacks run after the
// lock is released and may call back into the Device.
package device
