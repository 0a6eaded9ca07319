package zigbee

import "github.com/prometheus/client_golang/prometheus"

// Publish results recorded by the publishes counter.
const (
	publishOK     = "ok"
	publishError  = "error"
	publishNoop   = "noop"
	metricsPrefix = "zigbridge_"
)

// Metrics collects bridge counters for Prometheus.
type Metrics struct {
	messages         prometheus.Counter
	nonJSON          prometheus.Counter
	unrouted         prometheus.Counter
	dropped          prometheus.Counter
	callbackFailures prometheus.Counter
	publishes        *prometheus.CounterVec
	devices          prometheus.GaugeFunc
	discovered       prometheus.GaugeFunc
}

func newMetrics(b *Bridge) *Metrics {
	return &Metrics{
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "messages_received_total",
			Help: "Inbound MQTT messages handled by the worker",
		}),
		nonJSON: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "messages_non_json_total",
			Help: "Inbound messages whose payload was not JSON",
		}),
		unrouted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "messages_unrouted_total",
			Help: "Inbound messages that matched no route",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "messages_dropped_total",
			Help: "Inbound messages dropped because the worker queue was full",
		}),
		callbackFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "callback_failures_total",
			Help: "Topic callbacks that returned an error or panicked",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "publishes_total",
			Help: "Publish calls by result (ok, error, noop)",
		}, []string{"result"}),
		devices: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: metricsPrefix + "devices",
			Help: "Devices currently known to the bridge",
		}, func() float64 { return float64(b.DeviceCount()) }),
		discovered: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: metricsPrefix + "network_discovered",
			Help: "1 once a discovery payload added at least one device",
		}, func() float64 {
			if b.IsDiscovered() {
				return 1
			}
			return 0
		}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.messages.Describe(ch)
	m.nonJSON.Describe(ch)
	m.unrouted.Describe(ch)
	m.dropped.Describe(ch)
	m.callbackFailures.Describe(ch)
	m.publishes.Describe(ch)
	m.devices.Describe(ch)
	m.discovered.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.messages.Collect(ch)
	m.nonJSON.Collect(ch)
	m.unrouted.Collect(ch)
	m.dropped.Collect(ch)
	m.callbackFailures.Collect(ch)
	m.publishes.Collect(ch)
	m.devices.Collect(ch)
	m.discovered.Collect(ch)
}
