package history

import (
	"time"

	"github.com/gosimple/slug"

	"github.com/nerrad567/gray-logic-zigbee/internal/device"
)

// PointWriter queues one capability value. influxdb.Client satisfies it.
type PointWriter interface {
	WriteDeviceState(device, capability string, value any, ts time.Time) bool
}

// InfluxSink forwards device state to a time-series writer.
//
// Device names are slugged for the device tag. Composite values are
// flattened one level with a dot ("color.x"). Values without a numeric
// form are skipped by the writer.
type InfluxSink struct {
	writer PointWriter
	now    func() time.Time
}

// NewInfluxSink creates a sink writing to w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{writer: w, now: time.Now}
}

// DeviceChanged writes every known value of d. Matches the bridge's
// OnDeviceChange callback.
func (s *InfluxSink) DeviceChanged(d *device.Device) {
	s.Write(d)
}

// Write queues every known value of d.
//
// Returns:
//   - int: number of points queued
func (s *InfluxSink) Write(d *device.Device) int {
	tag := DeviceTag(d.Name())
	ts := s.now()

	written := 0
	for key, value := range d.ReadState() {
		if nested, ok := value.(map[string]any); ok {
			for sub, v := range nested {
				if s.writer.WriteDeviceState(tag, key+"."+sub, v, ts) {
					written++
				}
			}
			continue
		}
		if s.writer.WriteDeviceState(tag, key, value, ts) {
			written++
		}
	}
	return written
}

// DeviceTag normalises a device name for use as a tag value.
func DeviceTag(name string) string {
	return slug.Make(name)
}
