package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-zigbee/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	ackTimeout     = 5 * time.Second
	keepAlive      = 60 * time.Second

	// quiesceMillis lets in-flight set requests drain before disconnecting.
	quiesceMillis = 1000

	maxQoS = 2
)

// pahoToken is the acknowledgement handle paho returns for every request.
type pahoToken = pahomqtt.Token

// clientIDFor returns configured, or "zigbridge-" plus a random suffix
// so that several bridges can share one broker.
func clientIDFor(configured string) string {
	if configured != "" {
		return configured
	}
	return ServicePrefix + "-" + uuid.NewString()[:8]
}

// brokerURL picks ssl:// when the broker is configured for TLS.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// sessionOptions builds the paho options for one bridge session: clean
// session, retrying reconnect within the configured delays, and a retained
// offline Last Will on StatusTopic.
func sessionOptions(cfg config.MQTTConfig, clientID string) *pahomqtt.ClientOptions {
	retry, maxRetry := cfg.Reconnect.Backoff()
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retry).
		SetMaxReconnectInterval(maxRetry).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetBinaryWill(StatusTopic, availabilityPayload(clientID, stateOffline, reasonLost, time.Time{}), 1, true)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// await waits for a broker acknowledgement and folds timeout and failure
// into one error wrapping sentinel.
func await(token pahoToken, sentinel error, what string) error {
	if !token.WaitTimeout(ackTimeout) {
		return fmt.Errorf("%w: %s: no acknowledgement after %v", sentinel, what, ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", sentinel, what, err)
	}
	return nil
}
