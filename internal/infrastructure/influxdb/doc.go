// Package influxdb records device telemetry in InfluxDB v2.
//
// Every numeric or boolean capability value becomes one point in the
// device_state measurement, tagged with the device and capability. Writes
// are queued and sent in batches; a refused batch is reported through the
// SetOnError callback rather than to the writer.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteDeviceState("hall-lamp", "brightness", 128.0, time.Now())
package influxdb
