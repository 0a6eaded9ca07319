package zigbee

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/nerrad567/gray-logic-zigbee/internal/device"
	"github.com/nerrad567/gray-logic-zigbee/internal/discovery"
)

// Bridge defaults.
const (
	// DefaultQueueSize is the inbound worker queue capacity.
	DefaultQueueSize = 256

	// DefaultQoS is the QoS used for subscriptions and publishes.
	DefaultQoS byte = 1
)

// Logger is the logging interface used by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Unsubscribe releases a topic pattern taken by Subscribe.
	Unsubscribe(topic string) error
}

// Message is an inbound message whose payload decoded as JSON.
type Message struct {
	Topic   string
	Payload []byte
	Value   any
}

// TopicCallback handles a routed message. A returned error is logged.
type TopicCallback func(msg Message) error

// route is one exact-match routing entry.
type route struct {
	topic    string
	callback TopicCallback
}

// inbound is a raw message waiting for the worker.
type inbound struct {
	topic   string
	payload []byte
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// BaseTopic is the zigbee2mqtt base topic. Defaults to DefaultBaseTopic.
	BaseTopic string

	// Aliases maps a friendly name or IEEE address to an exposed name.
	Aliases map[string]string

	// IgnoredTopics are extra exact topics routed to no-op callbacks.
	IgnoredTopics []string

	// QueueSize is the inbound queue capacity. Defaults to DefaultQueueSize.
	QueueSize int

	// QoS for subscriptions and publishes. Defaults to DefaultQoS.
	QoS *byte

	// Logger is optional structured logger.
	Logger Logger
}

// Bridge owns the device table and the topic router.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt   MQTTClient
	topics Topics
	parser *discovery.Parser
	qos    byte

	// Device table, keyed by exposed name
	devices   map[string]*device.Device
	order     []string
	nextID    int
	devicesMu sync.RWMutex

	// Exact-match routes in registration order
	routes   []route
	routesMu sync.RWMutex

	// Observers
	discovered    bool
	discoveredFns []func()
	changeFns     []func(d *device.Device)
	publishFns    []func(d *device.Device, patch map[string]any)
	nonJSONFn     func(topic string, payload []byte, err error)
	observersMu   sync.Mutex

	metrics *Metrics

	// Worker lifecycle
	queue    chan inbound
	done     chan struct{}
	wg       sync.WaitGroup
	startMu  sync.Mutex
	started  bool
	stopped  bool
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a new bridge instance with the discovery and
// administrative routes registered. Call Start to begin consuming messages.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.QueueSize < 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", opts.QueueSize)
	}

	queueSize := opts.QueueSize
	if queueSize == 0 {
		queueSize = DefaultQueueSize
	}
	qos := DefaultQoS
	if opts.QoS != nil {
		qos = *opts.QoS
	}
	if qos > 2 {
		return nil, fmt.Errorf("invalid QoS %d", qos)
	}

	b := &Bridge{
		mqtt:    opts.MQTTClient,
		topics:  NewTopics(opts.BaseTopic),
		parser:  discovery.NewParser(opts.Aliases),
		qos:     qos,
		devices: make(map[string]*device.Device),
		queue:   make(chan inbound, queueSize),
		done:    make(chan struct{}),
	}
	b.metrics = newMetrics(b)
	b.SetLogger(opts.Logger)

	b.RegisterTopicCallback(b.topics.Devices(), b.handleDevices)
	for _, topic := range append(b.topics.Admin(), opts.IgnoredTopics...) {
		b.RegisterTopicCallback(topic, b.ignore)
	}

	return b, nil
}

// Topics returns the topic builder for the bridge's base topic.
func (b *Bridge) Topics() Topics {
	return b.topics
}

// Metrics returns the bridge's Prometheus collector.
func (b *Bridge) Metrics() *Metrics {
	return b.metrics
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start subscribes to every topic under the base topic and starts the
// inbound worker. The worker exits when ctx is cancelled or Stop is called.
func (b *Bridge) Start(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	if b.stopped {
		return ErrBridgeStopped
	}
	if b.started {
		return fmt.Errorf("bridge already started")
	}

	topic := b.topics.All()
	if err := b.mqtt.Subscribe(topic, b.qos, b.enqueue); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	b.logInfo("subscribed", "topic", topic)

	b.started = true
	b.wg.Add(1)
	go b.run(ctx)

	b.logInfo("bridge started", "base_topic", b.topics.Base())
	return nil
}

// Stop releases the base topic subscription and stops the inbound worker.
// Queued messages are discarded. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.startMu.Lock()
		b.stopped = true
		started := b.started
		b.startMu.Unlock()

		if started {
			if err := b.mqtt.Unsubscribe(b.topics.All()); err != nil {
				b.logWarn("releasing subscription failed", "topic", b.topics.All(), "error", err)
			}
		}

		close(b.done)
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// enqueue hands a raw message to the worker without blocking the MQTT
// client's delivery goroutine.
func (b *Bridge) enqueue(topic string, payload []byte) {
	select {
	case <-b.done:
		return
	default:
	}

	select {
	case b.queue <- inbound{topic: topic, payload: payload}:
	default:
		b.metrics.dropped.Inc()
		b.logWarn("inbound message dropped", "topic", topic, "error", ErrInboundQueueFull)
	}
}

// run is the inbound worker loop.
func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case msg := <-b.queue:
			b.HandleMessage(msg.topic, msg.payload)
		}
	}
}

// =============================================================================
// Routing
// =============================================================================

// RegisterTopicCallback appends a callback for an exact topic. Several
// callbacks may share a topic; they are invoked in registration order.
func (b *Bridge) RegisterTopicCallback(topic string, callback TopicCallback) {
	b.routesMu.Lock()
	b.routes = append(b.routes, route{topic: topic, callback: callback})
	b.routesMu.Unlock()
}

// OnNonJSON replaces the handler for payloads that are not valid JSON.
// The default handler logs at debug level.
func (b *Bridge) OnNonJSON(fn func(topic string, payload []byte, err error)) {
	b.observersMu.Lock()
	b.nonJSONFn = fn
	b.observersMu.Unlock()
}

// HandleMessage routes one inbound message synchronously. The worker calls
// it for every queued message. It never panics and never returns an error:
// failures are logged so one bad message cannot stop the next.
func (b *Bridge) HandleMessage(topic string, payload []byte) {
	b.metrics.messages.Inc()

	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		b.handleNonJSON(topic, payload, fmt.Errorf("%w: %w", ErrProtocolDecode, err))
		return
	}

	// Collect before invoking: callbacks may register new routes.
	b.routesMu.RLock()
	matched := lo.Filter(b.routes, func(r route, _ int) bool {
		return r.topic == topic
	})
	b.routesMu.RUnlock()

	if len(matched) == 0 {
		b.metrics.unrouted.Inc()
		b.logWarn("unhandled message", "topic", topic, "error", ErrUnrouted)
		return
	}

	msg := Message{Topic: topic, Payload: payload, Value: value}
	for _, r := range matched {
		b.invoke(r, msg)
	}
}

// invoke runs one callback, containing errors and panics.
func (b *Bridge) invoke(r route, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			b.metrics.callbackFailures.Inc()
			b.logError("topic callback panicked", fmt.Errorf("panic: %v", rec), "topic", msg.Topic)
		}
	}()

	if err := r.callback(msg); err != nil {
		b.metrics.callbackFailures.Inc()
		b.logError("topic callback failed", err, "topic", msg.Topic)
	}
}

func (b *Bridge) handleNonJSON(topic string, payload []byte, err error) {
	b.metrics.nonJSON.Inc()

	b.observersMu.Lock()
	fn := b.nonJSONFn
	b.observersMu.Unlock()

	if fn == nil {
		b.logDebug("non-JSON message", "topic", topic, "payload", string(payload))
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			b.logError("non-JSON handler panicked", fmt.Errorf("panic: %v", rec), "topic", topic)
		}
	}()
	fn(topic, payload, err)
}

// ignore is the callback for administrative topics.
func (b *Bridge) ignore(msg Message) error {
	b.logDebug("ignoring administrative message", "topic", msg.Topic)
	return nil
}

// deviceRoute returns the callback reconciling reports for name. The
// device is resolved on every dispatch so a replaced device receives
// traffic without re-registration.
func (b *Bridge) deviceRoute(name string) TopicCallback {
	return func(msg Message) error {
		d, err := b.GetDevice(name)
		if err != nil {
			return err
		}
		report, ok := msg.Value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: report for %s is not an object", ErrProtocolDecode, name)
		}
		d.ReconcileReport(report)
		return nil
	}
}

// =============================================================================
// Discovery
// =============================================================================

// handleDevices consumes a full bridge/devices payload.
func (b *Bridge) handleDevices(msg Message) error {
	descs, err := discovery.DecodeDevices(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProtocolDecode, err)
	}

	added := b.discover(descs)
	b.logInfo("discovery processed", "entries", len(descs), "added", len(added))
	if len(added) == 0 {
		return nil
	}

	b.observersMu.Lock()
	b.discovered = true
	fns := append([]func(){}, b.discoveredFns...)
	b.observersMu.Unlock()

	for _, fn := range fns {
		b.safeCall("network discovered callback", fn)
	}
	return nil
}

// discover registers every new device in descs and returns the added names.
// A known name is skipped unless the known device is broken and the new
// descriptor is not, in which case the fresh device replaces it.
func (b *Bridge) discover(descs []discovery.Descriptor) []string {
	b.devicesMu.Lock()

	var added []*device.Device
	for _, desc := range descs {
		b.nextID++
		d, err := b.parser.Parse(desc, b.nextID)
		if err != nil {
			b.logWarn("discovery entry skipped", "address", desc.IEEEAddress, "error", err)
			continue
		}

		existing, known := b.devices[d.Name()]
		switch {
		case !known:
			b.attach(d)
			b.devices[d.Name()] = d
			b.order = append(b.order, d.Name())
			added = append(added, d)
		case existing.Broken() && !d.Broken():
			b.attach(d)
			b.devices[d.Name()] = d
			b.logInfo("replacing broken device", "device", d.Name(), "address", d.Address())
		case existing.Address() == d.Address():
			b.logDebug("device already known", "device", d.Name(), "address", d.Address())
		case d.Name() != d.RealName():
			b.logWarn("alias collision, device skipped",
				"device", d.Name(),
				"real_name", d.RealName(),
				"address", d.Address(),
				"existing_address", existing.Address())
		default:
			b.logWarn("duplicate device name, device skipped",
				"device", d.Name(),
				"address", d.Address(),
				"existing_address", existing.Address())
		}
	}

	b.devicesMu.Unlock()

	for _, d := range added {
		b.registerDeviceRoutes(d)
	}

	return lo.Map(added, func(d *device.Device, _ int) string { return d.Name() })
}

// attach wires logging and change notification into a device.
func (b *Bridge) attach(d *device.Device) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		d.SetLogger(logger)
	}
	d.OnChange(b.notifyChange)
}

// registerDeviceRoutes adds the state and command routes for a device.
func (b *Bridge) registerDeviceRoutes(d *device.Device) {
	ids := lo.Uniq([]string{d.Name(), d.RealName(), d.Address()})
	topics := make([]string, 0, len(ids)*2)
	for _, id := range ids {
		topics = append(topics, b.topics.Device(id), b.topics.Set(id))
	}

	callback := b.deviceRoute(d.Name())
	for _, topic := range lo.Uniq(topics) {
		b.RegisterTopicCallback(topic, callback)
	}
}

// OnNetworkDiscovered registers a callback fired each time a discovery
// payload adds devices. If discovery already happened the callback also
// fires once immediately.
func (b *Bridge) OnNetworkDiscovered(fn func()) {
	b.observersMu.Lock()
	b.discoveredFns = append(b.discoveredFns, fn)
	already := b.discovered
	b.observersMu.Unlock()

	if already {
		b.safeCall("network discovered callback", fn)
	}
}

// IsDiscovered reports whether a discovery payload has added devices.
func (b *Bridge) IsDiscovered() bool {
	b.observersMu.Lock()
	defer b.observersMu.Unlock()
	return b.discovered
}

// OnDeviceChange registers a callback fired after an inbound report changed
// a device.
func (b *Bridge) OnDeviceChange(fn func(d *device.Device)) {
	b.observersMu.Lock()
	b.changeFns = append(b.changeFns, fn)
	b.observersMu.Unlock()
}

// OnPublish registers a callback fired after a patch was published.
func (b *Bridge) OnPublish(fn func(d *device.Device, patch map[string]any)) {
	b.observersMu.Lock()
	b.publishFns = append(b.publishFns, fn)
	b.observersMu.Unlock()
}

func (b *Bridge) notifyChange(d *device.Device) {
	b.observersMu.Lock()
	fns := append([]func(*device.Device){}, b.changeFns...)
	b.observersMu.Unlock()

	for _, fn := range fns {
		b.safeCall("device change callback", func() { fn(d) })
	}
}

// safeCall runs an observer callback, logging a panic instead of
// propagating it.
func (b *Bridge) safeCall(what string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			b.metrics.callbackFailures.Inc()
			b.logError(what+" panicked", fmt.Errorf("panic: %v", rec))
		}
	}()
	fn()
}

// =============================================================================
// Device access
// =============================================================================

// GetDevice returns the device exposed under name. Devices may be replaced
// by later discovery, so callers should not cache the result.
func (b *Bridge) GetDevice(name string) (*device.Device, error) {
	b.devicesMu.RLock()
	defer b.devicesMu.RUnlock()

	d, ok := b.devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	return d, nil
}

// DeviceNames returns device names in discovery order.
func (b *Bridge) DeviceNames() []string {
	b.devicesMu.RLock()
	defer b.devicesMu.RUnlock()
	return append([]string(nil), b.order...)
}

// DeviceCount returns the number of known devices.
func (b *Bridge) DeviceCount() int {
	b.devicesMu.RLock()
	defer b.devicesMu.RUnlock()
	return len(b.devices)
}

// =============================================================================
// Publishing
// =============================================================================

// Publish flushes pending writes of the named device.
//
// Returns:
//   - error: ErrDeviceNotFound, or ErrPublishFailed wrapping the transport error
func (b *Bridge) Publish(name string) error {
	d, err := b.GetDevice(name)
	if err != nil {
		return err
	}
	return b.PublishDevice(d)
}

// PublishDevice flushes pending writes of d as one JSON patch on
// {base}/{real_name}/set. Nothing is sent when no write is pending.
// Pending marks are cleared even if the transport then fails.
func (b *Bridge) PublishDevice(d *device.Device) error {
	patch := d.FlushOutbound()
	if len(patch) == 0 {
		b.metrics.publishes.WithLabelValues(publishNoop).Inc()
		return nil
	}

	payload, err := json.Marshal(patch)
	if err != nil {
		b.metrics.publishes.WithLabelValues(publishError).Inc()
		return fmt.Errorf("%w: encoding patch for %s: %w", ErrPublishFailed, d.Name(), err)
	}

	topic := b.topics.Set(d.RealName())
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		b.metrics.publishes.WithLabelValues(publishError).Inc()
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	b.metrics.publishes.WithLabelValues(publishOK).Inc()
	b.logDebug("published patch", "device", d.Name(), "topic", topic, "patch", string(payload))

	b.observersMu.Lock()
	fns := append([]func(*device.Device, map[string]any){}, b.publishFns...)
	b.observersMu.Unlock()
	for _, fn := range fns {
		b.safeCall("publish callback", func() { fn(d, patch) })
	}

	return nil
}

// IsConnected reports whether the MQTT client is connected.
func (b *Bridge) IsConnected() bool {
	return b.mqtt.IsConnected()
}

// IsNotFound reports whether err means an unknown device or capability.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDeviceNotFound) || errors.Is(err, device.ErrCapabilityNotFound)
}

// =============================================================================
// Logging
// =============================================================================

// SetLogger sets the logger for the bridge, its parser and known devices.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if logger != nil {
		b.parser.SetLogger(logger)
	}

	b.devicesMu.RLock()
	devices := lo.Values(b.devices)
	b.devicesMu.RUnlock()
	for _, d := range devices {
		d.SetLogger(logger)
	}
}

func (b *Bridge) log() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.log(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.log(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if logger := b.log(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.log(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
