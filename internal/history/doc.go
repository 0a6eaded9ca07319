// Package history keeps a record of device state outside the bridge.
//
// Two observers are provided, both hooked to bridge callbacks:
//
//   - Recorder writes JSON snapshots into the SQLite state_history table,
//     on inbound changes (source "mqtt") and after each publish (source
//     "command"). Retention prunes old rows on a cron schedule.
//   - InfluxSink writes numeric and binary values to InfluxDB as
//     device_state points tagged by device and capability.
//
// Usage:
//
//	store := history.NewStore(db.DB)
//	rec := history.NewRecorder(store)
//	bridge.OnDeviceChange(rec.DeviceChanged)
//	bridge.OnPublish(rec.Published)
package history
