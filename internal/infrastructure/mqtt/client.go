package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-zigbee/internal/infrastructure/config"
)

// Client is the bridge's broker session. It tracks link state, restores
// subscriptions after a reconnect and announces availability on
// StatusTopic.
//
// All methods are safe for concurrent use.
type Client struct {
	client   pahomqtt.Client
	cfg      config.MQTTConfig
	clientID string

	subs subscriptionSet
	up   atomic.Bool

	hooksMu sync.RWMutex
	hooks   hooks
}

// hooks are the caller-supplied reactions to session events.
type hooks struct {
	onUp   func()
	onDown func(err error)
	logger Logger
}

// Logger is the subset of logging.Logger the client reports to.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// MessageHandler receives one inbound message. A returned error is logged
// with the topic and otherwise dropped.
type MessageHandler func(topic string, payload []byte) error

// Connect opens the broker session and waits for the first CONNACK.
//
// An empty broker client_id is replaced by a generated one. Once the link
// is up the client publishes a retained "online" on StatusTopic; if the
// process dies the broker publishes the "offline" Last Will instead.
//
// Returns:
//   - *Client: connected session
//   - error: ErrConnectionFailed wrapping the cause
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg, clientID: clientIDFor(cfg.Broker.ClientID)}

	opts := sessionOptions(cfg, c.clientID).
		SetOnConnectHandler(func(pahomqtt.Client) { c.linkUp() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.linkDown(err) })
	c.client = pahomqtt.NewClient(opts)

	if err := await(c.client.Connect(), ErrConnectionFailed, brokerURL(cfg.Broker)); err != nil {
		return nil, err
	}
	// linkUp runs on a paho goroutine; callers may subscribe before it does.
	c.up.Store(true)
	return c, nil
}

// ClientID returns the identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

func (c *Client) currentHooks() hooks {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	h := c.hooks
	if h.logger == nil {
		h.logger = noopLogger{}
	}
	return h
}

func (c *Client) linkUp() {
	c.up.Store(true)
	c.restoreSubscriptions()
	c.announce(stateOnline, "")
	if h := c.currentHooks(); h.onUp != nil {
		h.onUp()
	}
}

func (c *Client) linkDown(err error) {
	c.up.Store(false)
	h := c.currentHooks()
	h.logger.Warn("MQTT connection lost", "client_id", c.clientID, "error", err)
	if h.onDown != nil {
		h.onDown(err)
	}
}

// IsConnected reports whether the session is currently up.
func (c *Client) IsConnected() bool {
	return c != nil && c.client != nil && c.up.Load() && c.client.IsConnected()
}

// HealthCheck returns ErrNotConnected while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close announces a deliberate "offline" (so subscribers can tell it apart
// from the Last Will) and disconnects.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce(stateOffline, reasonShutdown).WaitTimeout(ackTimeout)
	}
	c.client.Disconnect(quiesceMillis)
	c.up.Store(false)
	return nil
}

// SetOnConnect runs fn after the initial connect and every reconnect.
func (c *Client) SetOnConnect(fn func()) {
	c.hooksMu.Lock()
	c.hooks.onUp = fn
	c.hooksMu.Unlock()
}

// SetOnDisconnect runs fn when the link drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.hooksMu.Lock()
	c.hooks.onDown = fn
	c.hooksMu.Unlock()
}

// SetLogger routes handler failures and link loss to logger. Without one
// they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.hooksMu.Lock()
	c.hooks.logger = logger
	c.hooksMu.Unlock()
}
