// Package capability models the typed, independently readable and writable
// properties of a Zigbee device.
//
// A Capability is an immutable descriptor (name, description, access flags)
// that owns exactly one State. State is a sealed interface with one variant
// per value type:
//
//   - BinaryState: on/off with configurable wire literals ("ON"/"OFF", true/false)
//   - NumericState: float64 with optional inclusive bounds and named presets
//   - EnumState: a value drawn from an allowed list, with optional presets
//   - CompositeState: several child capabilities that travel as one JSON object
//   - UserDefinedState: any JSON value, optionally checked by a validator
//
// # Write precedence
//
// A local write (SetLocal) always marks the state as needing publication.
// While that mark is set, inbound reports are dropped as stale echoes: the
// device frequently reports its pre-command value before the command lands,
// and applying it would make the local write bounce back. The mark is
// cleared only by FlushOutbound.
//
// # Composite atomicity
//
// A composite is written and reported as a whole. A value that does not
// carry every child sub-property is rejected and nothing is applied.
//
// Thread Safety:
//   - Capabilities and states are not safe for concurrent use on their own.
//     The owning device.Device serialises every access behind its lock.
package capability
