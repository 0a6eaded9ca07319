package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-zigbee/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "zigbridge-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// recordingLogger implements Logger.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// =============================================================================
// Session Option Tests
// =============================================================================

func TestSessionOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "zigbridge"
	cfg.Auth.Password = "secret"

	opts := sessionOptions(cfg, "zigbridge-test")

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "zigbridge-test" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "zigbridge-test")
	}
	if opts.Username != "zigbridge" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want zigbridge/secret", opts.Username, opts.Password)
	}
	if !opts.CleanSession || !opts.AutoReconnect || !opts.ConnectRetry {
		t.Error("expected clean session with retrying reconnect")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil {
		t.Error("TLSConfig set without broker.tls")
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name   string
		broker config.MQTTBrokerConfig
		want   string
	}{
		{"plain", config.MQTTBrokerConfig{Host: "broker.lan", Port: 1883}, "tcp://broker.lan:1883"},
		{"tls", config.MQTTBrokerConfig{Host: "broker.lan", Port: 8883, TLS: true}, "ssl://broker.lan:8883"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := brokerURL(tt.broker); got != tt.want {
				t.Errorf("brokerURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true

	opts := sessionOptions(cfg, "id")
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Error("expected TLS config with a TLS 1.2 floor")
	}
}

func TestSessionOptions_LastWill(t *testing.T) {
	opts := sessionOptions(testConfig(), "zigbridge-test")

	if !opts.WillEnabled {
		t.Fatal("will not enabled")
	}
	if opts.WillTopic != StatusTopic {
		t.Errorf("WillTopic = %q, want %q", opts.WillTopic, StatusTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will retained=%v qos=%d, want retained qos 1", opts.WillRetained, opts.WillQos)
	}

	var a availability
	if err := json.Unmarshal(opts.WillPayload, &a); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	want := availability{State: stateOffline, ClientID: "zigbridge-test", Reason: reasonLost}
	if a != want {
		t.Errorf("will payload = %+v, want %+v", a, want)
	}
}

// =============================================================================
// Availability Tests
// =============================================================================

func TestAvailabilityPayload(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name   string
		state  string
		reason string
		at     time.Time
		want   string
	}{
		{"online", stateOnline, "", at, `{"state":"online","client_id":"zb-1","since":"2026-03-01T11:00:00Z"}`},
		{"shutdown", stateOffline, reasonShutdown, at, `{"state":"offline","client_id":"zb-1","reason":"shutdown","since":"2026-03-01T11:00:00Z"}`},
		{"no timestamp", stateOffline, reasonLost, time.Time{}, `{"state":"offline","client_id":"zb-1","reason":"connection_lost"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(availabilityPayload("zb-1", tt.state, tt.reason, tt.at)); got != tt.want {
				t.Errorf("availabilityPayload() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClientIDFor(t *testing.T) {
	if got := clientIDFor("fixed"); got != "fixed" {
		t.Errorf("clientIDFor(fixed) = %q", got)
	}

	a, b := clientIDFor(""), clientIDFor("")
	if !strings.HasPrefix(a, "zigbridge-") || len(a) != len("zigbridge-")+8 {
		t.Errorf("generated id = %q, want zigbridge- plus 8 chars", a)
	}
	if a == b {
		t.Errorf("generated ids should differ, both %q", a)
	}
}

func TestServiceTopics(t *testing.T) {
	if StatusTopic != "zigbridge/status" {
		t.Errorf("StatusTopic = %q", StatusTopic)
	}
	if got := EventTopic("network_discovered"); got != "zigbridge/event/network_discovered" {
		t.Errorf("EventTopic() = %q", got)
	}
	if err := validateTopic(EventTopic("network_discovered")); err != nil {
		t.Errorf("event topic rejected for publish: %v", err)
	}
}

// =============================================================================
// Disconnected Client Tests
// =============================================================================

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestCloseNil(t *testing.T) {
	var client *Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name     string
		topic    string
		payload  []byte
		qos      byte
		retained bool
		want     error
	}{
		{"empty topic", "", []byte("x"), 1, false, ErrInvalidTopic},
		{"wildcard topic", "zigbee2mqtt/+/set", []byte("x"), 1, false, ErrInvalidTopic},
		{"invalid qos", "zigbee2mqtt/lamp/set", []byte("x"), 3, false, ErrInvalidQoS},
		{"retained command", "zigbee2mqtt/lamp/set", []byte(`{"state":"ON"}`), 1, true, ErrRetainedCommand},
		{"oversized payload", "zigbee2mqtt/lamp/set", make([]byte, maxPayloadSize+1), 1, false, ErrPublishFailed},
		{"not connected", "zigbee2mqtt/lamp/set", []byte("x"), 1, false, ErrNotConnected},
		{"retained status not connected", "zigbridge/status", []byte("x"), 1, true, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, tt.retained)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateFilter(t *testing.T) {
	tests := []struct {
		filter  string
		wantErr bool
	}{
		{"zigbee2mqtt/#", false},
		{"#", false},
		{"zigbee2mqtt/+/availability", false},
		{"zigbee2mqtt/bridge/devices", false},
		{"", true},
		{"zigbee2mqtt/#/set", true},
		{"zigbee2mqtt/lamp#", true},
		{"zigbee2mqtt/lamp+", true},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			err := validateFilter(tt.filter)
			if tt.wantErr != (err != nil) {
				t.Fatalf("validateFilter(%q) error = %v, wantErr %v", tt.filter, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFilter) {
				t.Errorf("validateFilter(%q) error = %v, want ErrInvalidFilter", tt.filter, err)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := &Client{}
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		filter  string
		qos     byte
		handler MessageHandler
		want    error
	}{
		{"empty filter", "", 1, handler, ErrInvalidFilter},
		{"misplaced wildcard", "zigbee2mqtt/#/set", 1, handler, ErrInvalidFilter},
		{"invalid qos", "zigbee2mqtt/#", 3, handler, ErrInvalidQoS},
		{"nil handler", "zigbee2mqtt/#", 1, nil, ErrSubscribeFailed},
		{"not connected", "zigbee2mqtt/#", 1, handler, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Subscribe(tt.filter, tt.qos, tt.handler)
			if !errors.Is(err, tt.want) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.want)
			}
		})
	}

	if got := client.Subscriptions(); len(got) != 0 {
		t.Errorf("Subscriptions() = %v after failed subscribes, want none", got)
	}
}

func TestUnsubscribe_WhileDisconnectedDropsFilter(t *testing.T) {
	client := &Client{}
	handler := func(string, []byte) error { return nil }
	client.subs.put(subscription{filter: "zigbee2mqtt/#", qos: 1, handler: handler})
	client.subs.put(subscription{filter: "zigbridge/#", qos: 1, handler: handler})

	if got := client.Subscriptions(); len(got) != 2 || got[0] != "zigbee2mqtt/#" || got[1] != "zigbridge/#" {
		t.Fatalf("Subscriptions() = %v, want sorted pair", got)
	}

	if err := client.Unsubscribe("zigbee2mqtt/#"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if got := client.Subscriptions(); len(got) != 1 || got[0] != "zigbridge/#" {
		t.Errorf("Subscriptions() = %v, want [zigbridge/#]", got)
	}

	// Unknown filters are a no-op.
	if err := client.Unsubscribe("zigbee2mqtt/#"); err != nil {
		t.Errorf("second Unsubscribe() error = %v", err)
	}
}

// =============================================================================
// Delivery Tests
// =============================================================================

func TestDeliver(t *testing.T) {
	tests := []struct {
		name       string
		handler    MessageHandler
		wantErrors int
		wantWarns  int
	}{
		{
			name:    "accepted",
			handler: func(string, []byte) error { return nil },
		},
		{
			name:      "rejected message is logged",
			handler:   func(string, []byte) error { return errors.New("bad payload") },
			wantWarns: 1,
		},
		{
			name:       "panic is recovered",
			handler:    func(string, []byte) error { panic("boom") },
			wantErrors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingLogger{}
			client := &Client{}
			client.SetLogger(logger)

			client.deliver(tt.handler)(nil, fakeMessage{topic: "zigbee2mqtt/lamp", payload: []byte("{}")})

			if len(logger.errors) != tt.wantErrors || len(logger.warns) != tt.wantWarns {
				t.Errorf("errors=%d warns=%d, want %d/%d", len(logger.errors), len(logger.warns), tt.wantErrors, tt.wantWarns)
			}
		})
	}
}

func TestDeliver_PassesMessage(t *testing.T) {
	client := &Client{}

	var gotTopic, gotPayload string
	client.deliver(func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, string(payload)
		return nil
	})(nil, fakeMessage{topic: "zigbee2mqtt/lamp", payload: []byte(`{"state":"ON"}`)})

	if gotTopic != "zigbee2mqtt/lamp" || gotPayload != `{"state":"ON"}` {
		t.Errorf("handler got %q %q", gotTopic, gotPayload)
	}
}

func TestDeliver_NoLogger(t *testing.T) {
	client := &Client{}
	// Must not panic without a logger.
	client.deliver(func(string, []byte) error { panic("boom") })(nil, fakeMessage{topic: "t"})
}

func TestLinkDown(t *testing.T) {
	logger := &recordingLogger{}
	client := &Client{}
	client.SetLogger(logger)
	client.up.Store(true)

	connected := 0
	var lost error
	client.SetOnConnect(func() { connected++ })
	client.SetOnDisconnect(func(err error) { lost = err })

	client.linkDown(errors.New("link down"))
	if lost == nil || lost.Error() != "link down" {
		t.Errorf("disconnect callback got %v", lost)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after link loss")
	}
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one link loss warning", logger.warns)
	}

	client.SetOnConnect(nil)
	client.SetOnDisconnect(nil)
	client.linkDown(errors.New("again"))
	if connected != 0 {
		t.Errorf("connect callback fired %d times", connected)
	}
}
