package history

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-zigbee/internal/device"
)

// defaultWriteTimeout bounds a single insert issued from a bridge callback.
const defaultWriteTimeout = 2 * time.Second

// Logger is the logging interface used by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder writes device snapshots to a Store. Its methods match the
// bridge's OnDeviceChange and OnPublish callback signatures.
type Recorder struct {
	store   *Store
	timeout time.Duration

	logger   Logger
	loggerMu sync.RWMutex
}

// NewRecorder creates a recorder backed by store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{
		store:   store,
		timeout: defaultWriteTimeout,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for write failures.
func (r *Recorder) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// DeviceChanged records the full state of d after an inbound report.
func (r *Recorder) DeviceChanged(d *device.Device) {
	r.record(d, d.ReadState(), SourceMQTT)
}

// Published records the patch sent to d.
func (r *Recorder) Published(d *device.Device, patch map[string]any) {
	r.record(d, patch, SourceCommand)
}

func (r *Recorder) record(d *device.Device, state map[string]any, source string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.Record(ctx, d.Name(), d.Address(), state, source); err != nil {
		r.loggerMu.RLock()
		logger := r.logger
		r.loggerMu.RUnlock()
		logger.Error("recording state history failed",
			"device", d.Name(),
			"source", source,
			"error", err,
		)
	}
}
