// zigbridge - zigbee2mqtt device bridge
//
// This is the main entry point for the zigbridge service. It connects to
// the MQTT broker carrying a zigbee2mqtt network, builds a typed model of
// every discovered device, and exposes it over HTTP and WebSocket:
//   - state reports are reconciled into per-device capabilities
//   - local writes are coalesced and published as one patch per device
//   - state history and telemetry are recorded when enabled
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-zigbee/internal/api"
	"github.com/nerrad567/gray-logic-zigbee/internal/bridges/zigbee"
	"github.com/nerrad567/gray-logic-zigbee/internal/history"
	"github.com/nerrad567/gray-logic-zigbee/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-zigbee/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-zigbee/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-zigbee/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-zigbee/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-zigbee/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// eventNetworkDiscovered is published on the service event topic after the
// first device list has been processed.
const eventNetworkDiscovered = "network_discovered"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting zigbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the history database (optional)
	var db *database.DB
	var store *history.Store
	if cfg.History.Enabled {
		db, err = openHistoryDB(ctx, cfg.Database, log.Component("history"))
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		store = history.NewStore(db.DB)
		log.Info("state history enabled", "path", cfg.Database.Path, "retention_days", cfg.History.RetentionDays)
	} else {
		log.Info("state history disabled")
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			stats := influxClient.Stats()
			log.Info("closing InfluxDB connection", "points", stats.Queued, "skipped", stats.Skipped)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	if err := healthCheck(ctx, backingServices(db, mqttClient, influxClient)); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Create the bridge
	bridge, err := newBridge(cfg.Zigbee, mqttClient, log.Component("bridge"))
	if err != nil {
		return fmt.Errorf("creating zigbee bridge: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		bridge.Metrics(),
	)

	// Create the API server
	var historyReader api.HistoryReader
	if store != nil {
		historyReader = store
	}
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		Bridge:  bridge,
		History: historyReader,
		Metrics: registry,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Observers run on the bridge worker, in registration order
	if store != nil {
		recorder := history.NewRecorder(store)
		recorder.SetLogger(log.Component("history"))
		bridge.OnDeviceChange(recorder.DeviceChanged)
		bridge.OnPublish(recorder.Published)
	}
	if influxClient != nil {
		bridge.OnDeviceChange(history.NewInfluxSink(influxClient).DeviceChanged)
	}
	bridge.OnDeviceChange(server.DeviceChanged)
	bridge.OnNonJSON(func(topic string, payload []byte, err error) {
		log.Debug("ignoring non-JSON payload", "topic", topic, "bytes", len(payload), "error", err)
	})
	bridge.OnNetworkDiscovered(func() {
		names := bridge.DeviceNames()
		log.Info("zigbee network discovered", "devices", len(names))
		server.NetworkDiscovered()
		publishDiscoveredEvent(mqttClient, names, log)
	})

	var retention *history.Retention
	if store != nil {
		retention, err = history.NewRetention(store, cfg.History.CleanupSchedule, cfg.History.Retention())
		if err != nil {
			return fmt.Errorf("scheduling history cleanup: %w", err)
		}
		retention.SetLogger(log.Component("history"))
	}

	eg, egCtx := errgroup.WithContext(ctx)

	if err := bridge.Start(egCtx); err != nil {
		return fmt.Errorf("starting zigbee bridge: %w", err)
	}
	defer func() {
		log.Info("stopping zigbee bridge")
		bridge.Stop()
	}()

	if err := server.Start(egCtx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"base_topic", bridge.Topics().Base(),
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	if retention != nil {
		eg.Go(func() error {
			return retention.Run(egCtx)
		})
	}
	eg.Go(func() error {
		<-egCtx.Done()
		return nil
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	// Deferred Close() calls run in reverse order:
	// API server, bridge, InfluxDB, MQTT, database
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openHistoryDB opens and migrates the SQLite history database.
func openHistoryDB(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	log.Info("history schema ready", "version", version, "applied", applied)
	return db, nil
}

// newBridge creates the zigbee bridge from configuration.
//
// Ignored topics are configured relative to the base topic.
func newBridge(cfg config.ZigbeeConfig, mqttClient *mqtt.Client, log *logging.Logger) (*zigbee.Bridge, error) {
	topics := zigbee.NewTopics(cfg.BaseTopic)
	ignored := make([]string, 0, len(cfg.IgnoredTopics))
	for _, t := range cfg.IgnoredTopics {
		ignored = append(ignored, topics.Device(t))
	}

	qos := byte(cfg.QoS) //nolint:gosec // validated to 0..2 by config.Validate
	return zigbee.NewBridge(zigbee.BridgeOptions{
		MQTTClient:    &mqttBridgeAdapter{client: mqttClient},
		BaseTopic:     cfg.BaseTopic,
		Aliases:       cfg.Aliases,
		IgnoredTopics: ignored,
		QueueSize:     cfg.InboundQueueSize,
		QoS:           &qos,
		Logger:        log,
	})
}

// publishDiscoveredEvent announces the discovered device names on the
// service event topic. Failures are logged only.
func publishDiscoveredEvent(client *mqtt.Client, names []string, log *logging.Logger) {
	payload, err := json.Marshal(map[string]any{
		"devices":   names,
		"count":     len(names),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Error("encoding discovery event failed", "error", err)
		return
	}
	topic := mqtt.EventTopic(eventNetworkDiscovered)
	if err := client.Publish(topic, payload, 1, false); err != nil {
		log.Warn("publishing discovery event failed", "topic", topic, "error", err)
	}
}

// healthChecker is implemented by every backing service.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// namedCheck labels a backing service in startup errors.
type namedCheck struct {
	name    string
	checker healthChecker
}

// backingServices lists the services run() depends on. The database and
// InfluxDB are optional and only listed when open.
func backingServices(db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) []namedCheck {
	checks := []namedCheck{{"mqtt", mqttClient}}
	if db != nil {
		checks = append(checks, namedCheck{"database", db})
	}
	if influxClient != nil {
		checks = append(checks, namedCheck{"influxdb", influxClient})
	}
	return checks
}

// healthCheck runs every check concurrently and returns the first failure.
func healthCheck(ctx context.Context, checks []namedCheck) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, c := range checks {
		eg.Go(func() error {
			if err := c.checker.HealthCheck(egCtx); err != nil {
				return fmt.Errorf("%s: %w", c.name, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The primary difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - zigbee bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements zigbee.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements zigbee.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// The bridge only enqueues, so there is never an error to report
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements zigbee.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Unsubscribe implements zigbee.MQTTClient.
func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}
