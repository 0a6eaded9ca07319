package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override, e.g.
// ZIGBRIDGE_MQTT_HOST.
const EnvPrefix = "ZIGBRIDGE_"

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = EnvPrefix + "CONFIG"

// DefaultPath is used when EnvConfigPath is unset.
const DefaultPath = "configs/config.yaml"

// Config is the root of config.yaml. Fields tagged env can also be set
// from ZIGBRIDGE_* variables, which win over the file.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Zigbee    ZigbeeConfig    `yaml:"zigbee"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	History   HistoryConfig   `yaml:"history"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MQTTConfig is the broker session.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig locates the broker.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" env:"MQTT_HOST"`
	Port     int    `yaml:"port" env:"MQTT_PORT"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig holds broker credentials. Prefer the environment for the
// password.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"MQTT_USERNAME"`
	Password string `yaml:"password" env:"MQTT_PASSWORD"`
}

// MQTTReconnectConfig bounds the reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// Backoff returns the first and the largest reconnect interval.
func (r MQTTReconnectConfig) Backoff() (initial, maxDelay time.Duration) {
	return seconds(r.InitialDelay), seconds(r.MaxDelay)
}

// ZigbeeConfig describes the zigbee2mqtt network the bridge mirrors.
type ZigbeeConfig struct {
	// BaseTopic is the zigbee2mqtt topic root.
	BaseTopic string `yaml:"base_topic" env:"BASE_TOPIC"`

	// Aliases maps a friendly name or IEEE address to the name exposed
	// by this service.
	Aliases map[string]string `yaml:"aliases"`

	// IgnoredTopics are topics below BaseTopic that are accepted and
	// dropped without a warning.
	IgnoredTopics []string `yaml:"ignored_topics"`

	// InboundQueueSize bounds the messages waiting for the bridge worker.
	InboundQueueSize int `yaml:"inbound_queue_size"`

	// QoS is used for outbound set requests.
	QoS int `yaml:"qos"`
}

// APIConfig is the HTTP listener.
type APIConfig struct {
	Host     string           `yaml:"host" env:"API_HOST"`
	Port     int              `yaml:"port" env:"API_PORT"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig holds the HTTP server timeouts, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Durations returns the read, write and idle timeouts.
func (t APITimeoutConfig) Durations() (read, write, idle time.Duration) {
	return seconds(t.Read), seconds(t.Write), seconds(t.Idle)
}

// CORSConfig lists the browser origins allowed to call the API and open
// the WebSocket. Empty allows all.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig is the event stream endpoint.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// KeepAlive returns the ping interval and how long a pong may take.
func (w WebSocketConfig) KeepAlive() (ping, pong time.Duration) {
	return seconds(w.PingInterval), seconds(w.PongTimeout)
}

// DatabaseConfig is the SQLite file behind the state history.
type DatabaseConfig struct {
	Path        string `yaml:"path" env:"DATABASE_PATH"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HistoryConfig controls state-history recording.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// RetentionDays is how long rows are kept.
	RetentionDays int `yaml:"retention_days"`

	// CleanupSchedule is a five-field cron spec for the retention job.
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

// Retention returns RetentionDays as a duration.
func (h HistoryConfig) Retention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}

// InfluxDBConfig is the optional telemetry sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token" env:"INFLUXDB_TOKEN"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig selects level, format and stream.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Path returns the config file path from the environment, or DefaultPath.
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultPath
}

// Load builds the configuration: defaults, then the YAML file at path,
// then ZIGBRIDGE_* variables, then validation.
//
// Returns:
//   - *Config: validated configuration
//   - error: unreadable file, bad YAML, a malformed variable, or every
//     validation problem at once
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := fromEnv(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// fromEnv applies the ZIGBRIDGE_* variables named by env tags. Unset
// variables leave the current values alone.
func fromEnv(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix})
}

func defaults() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker:    MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "zigbridge"},
			QoS:       1,
			Reconnect: MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		Zigbee: ZigbeeConfig{
			BaseTopic:        "zigbee2mqtt",
			InboundQueueSize: 256,
			QoS:              1,
		},
		API: APIConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Database: DatabaseConfig{Path: "./data/zigbridge.db", WALMode: true, BusyTimeout: 5},
		History:  HistoryConfig{RetentionDays: 30, CleanupSchedule: "15 3 * * *"},
		Logging:  LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// Validate reports every configuration problem in one error.
func (c *Config) Validate() error {
	problems := slices.Concat(
		c.MQTT.problems(),
		c.Zigbee.problems(),
		c.API.problems(),
		c.History.problems(c.Database),
		c.InfluxDB.problems(),
	)
	if len(problems) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(problems, "; "))
	}
	return nil
}

func validQoS(q int) bool { return q >= 0 && q <= 2 }

func (m MQTTConfig) problems() []string {
	var p []string
	if m.Broker.Host == "" {
		p = append(p, "mqtt.broker.host is required")
	}
	if !validQoS(m.QoS) {
		p = append(p, "mqtt.qos must be 0, 1, or 2")
	}
	return p
}

func (z ZigbeeConfig) problems() []string {
	var p []string
	if strings.Trim(z.BaseTopic, "/") == "" {
		p = append(p, "zigbee.base_topic is required")
	}
	if strings.ContainsAny(z.BaseTopic, "#+") {
		p = append(p, "zigbee.base_topic must not contain MQTT wildcards")
	}
	if !validQoS(z.QoS) {
		p = append(p, "zigbee.qos must be 0, 1, or 2")
	}
	if z.InboundQueueSize < 0 {
		p = append(p, "zigbee.inbound_queue_size must not be negative")
	}
	return p
}

func (a APIConfig) problems() []string {
	if a.Port < 1 || a.Port > 65535 {
		return []string{"api.port must be between 1 and 65535"}
	}
	return nil
}

func (h HistoryConfig) problems(db DatabaseConfig) []string {
	if !h.Enabled {
		return nil
	}
	var p []string
	if db.Path == "" {
		p = append(p, "database.path is required when history is enabled")
	}
	if h.RetentionDays < 1 {
		p = append(p, "history.retention_days must be at least 1")
	}
	if _, err := cron.ParseStandard(h.CleanupSchedule); err != nil {
		p = append(p, fmt.Sprintf("history.cleanup_schedule is invalid: %v", err))
	}
	return p
}

func (i InfluxDBConfig) problems() []string {
	if !i.Enabled {
		return nil
	}
	var p []string
	if i.URL == "" {
		p = append(p, "influxdb.url is required when influxdb is enabled")
	}
	if i.Bucket == "" {
		p = append(p, "influxdb.bucket is required when influxdb is enabled")
	}
	return p
}
