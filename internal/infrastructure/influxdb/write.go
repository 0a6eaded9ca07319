package influxdb

import (
	"math"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Schema of the telemetry measurement. One point per capability value.
const (
	MeasurementDeviceState = "device_state"
	TagDevice              = "device"
	TagCapability          = "capability"
	FieldValue             = "value"
)

// WriteDeviceState queues one capability value. Booleans are stored as
// 1 or 0 so the value field keeps a single type; strings, composites and
// non-finite numbers are skipped.
//
// Returns:
//   - bool: true if a point was queued
func (c *Client) WriteDeviceState(device, capability string, value any, ts time.Time) bool {
	if !c.isOpen() {
		if c != nil {
			c.skipped.Add(1)
		}
		return false
	}
	p := DevicePoint(device, capability, value, ts)
	if p == nil {
		c.skipped.Add(1)
		return false
	}
	c.queue.WritePoint(p)
	c.queued.Add(1)
	return true
}

// DevicePoint builds the device_state point for value, or nil when value
// cannot be stored.
func DevicePoint(device, capability string, value any, ts time.Time) *write.Point {
	f, ok := asFloat(value)
	if !ok {
		return nil
	}
	tags := map[string]string{TagDevice: device, TagCapability: capability}
	return write.NewPoint(MeasurementDeviceState, tags, map[string]any{FieldValue: f}, ts)
}

func asFloat(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
