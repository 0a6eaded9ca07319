package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-zigbee/internal/capability"
	"github.com/nerrad567/gray-logic-zigbee/internal/device"
	"github.com/nerrad567/gray-logic-zigbee/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-zigbee/migrations"
)

// setupTestStore opens a migrated in-memory database.
func setupTestStore(t *testing.T) (*Store, *database.DB) {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return NewStore(db.DB), db
}

// insertRow inserts a state history row with a specific timestamp.
func insertRow(t *testing.T, db *database.DB, device, stateJSON, source string, createdAt time.Time) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO state_history (device, state, source, created_at) VALUES (?, ?, ?, ?)",
		device,
		stateJSON,
		source,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("failed to insert state history row: %v", err)
	}
}

func newTestLamp(t *testing.T, name string) *device.Device {
	t.Helper()

	d, err := device.New(device.Info{ID: 1, Address: "0x0017880104e45517", Name: name, RealName: name},
		capability.New("state", "", true, true, capability.NewBinaryState("ON", "OFF")),
		capability.New("brightness", "", true, true,
			capability.NewNumericState(capability.WithMin(0), capability.WithMax(254))),
		capability.New("effect", "", false, true, capability.NewEnumState([]any{"blink", "breathe"})),
		capability.New("color_xy", "", true, true, capability.NewCompositeState("color",
			capability.New("x", "", true, true, capability.NewNumericState()),
			capability.New("y", "", true, true, capability.NewNumericState()),
		)),
	)
	if err != nil {
		t.Fatalf("device.New() error = %v", err)
	}
	return d
}

// recordingLogger implements Logger.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Warn(string, ...any)  {}

func (l *recordingLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

// =============================================================================
// Store
// =============================================================================

func TestStore_Record(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	state := map[string]any{"state": true, "brightness": 75}
	if err := store.Record(ctx, "hall_lamp", "0x01", state, ""); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := store.History(ctx, "hall_lamp", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}

	entry := entries[0]
	if entry.Device != "hall_lamp" || entry.Address != "0x01" {
		t.Errorf("identity = %q/%q, want hall_lamp/0x01", entry.Device, entry.Address)
	}
	if entry.Source != SourceMQTT {
		t.Errorf("Source = %q, want default %q", entry.Source, SourceMQTT)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero, want non-zero")
	}
	if on, ok := entry.State["state"].(bool); !ok || !on {
		t.Errorf("State[state] = %v, want true", entry.State["state"])
	}
	if level, ok := entry.State["brightness"].(float64); !ok || level != 75 {
		t.Errorf("State[brightness] = %v, want 75", entry.State["brightness"])
	}
}

func TestStore_RecordNilState(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "hall_lamp", "", nil, SourceCommand); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	entries, err := store.History(ctx, "hall_lamp", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 1 || len(entries[0].State) != 0 || entries[0].Source != SourceCommand {
		t.Errorf("entries = %+v, want one empty command entry", entries)
	}
}

func TestStore_DeviceRequired(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "", "", nil, ""); !errors.Is(err, ErrDeviceRequired) {
		t.Errorf("Record() error = %v, want ErrDeviceRequired", err)
	}
	if _, err := store.History(ctx, "", 10); !errors.Is(err, ErrDeviceRequired) {
		t.Errorf("History() error = %v, want ErrDeviceRequired", err)
	}
}

func TestStore_History(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertRow(t, db, "hall_lamp", `{"state":false}`, SourceCommand, now.Add(-2*time.Hour))
	insertRow(t, db, "hall_lamp", `{"state":true}`, SourceMQTT, now.Add(-1*time.Hour))
	insertRow(t, db, "hall_lamp", `{"state":true}`, SourceMQTT, now)
	insertRow(t, db, "office", `{"state":true}`, SourceMQTT, now)

	entries, err := store.History(ctx, "hall_lamp", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}

	if !entries[0].CreatedAt.Equal(now) {
		t.Errorf("entry[0] CreatedAt = %s, want %s", entries[0].CreatedAt, now)
	}
	if !entries[1].CreatedAt.Equal(now.Add(-1 * time.Hour)) {
		t.Errorf("entry[1] CreatedAt = %s, want %s", entries[1].CreatedAt, now.Add(-1*time.Hour))
	}

	none, err := store.History(ctx, "unknown", 10)
	if err != nil {
		t.Fatalf("History(unknown) error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("History(unknown) = %d entries, want 0", len(none))
	}
}

func TestStore_Prune(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertRow(t, db, "hall_lamp", `{"state":true}`, SourceMQTT, now.Add(-40*24*time.Hour))
	insertRow(t, db, "hall_lamp", `{"state":false}`, SourceMQTT, now.Add(-12*time.Hour))

	deleted, err := store.Prune(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	entries, err := store.History(ctx, "hall_lamp", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 1 || !entries[0].CreatedAt.Equal(now.Add(-12*time.Hour)) {
		t.Errorf("remaining = %+v, want the 12h old row", entries)
	}

	if _, err := store.Prune(ctx, 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("Prune(0) error = %v, want ErrInvalidRetention", err)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-1, defaultLimit},
		{0, defaultLimit},
		{1, 1},
		{maxLimit, maxLimit},
		{maxLimit + 1, maxLimit},
	}

	for _, tt := range tests {
		if got := ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	if _, err := parseTimestamp(""); err == nil {
		t.Error("parseTimestamp(\"\") expected error")
	}
	if _, err := parseTimestamp("yesterday"); err == nil {
		t.Error("parseTimestamp(yesterday) expected error")
	}
	got, err := parseTimestamp("2026-03-01T12:00:00Z")
	if err != nil {
		t.Fatalf("parseTimestamp() error = %v", err)
	}
	if !got.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("parseTimestamp() = %s", got)
	}
}

// =============================================================================
// Recorder
// =============================================================================

func TestRecorder(t *testing.T) {
	store, _ := setupTestStore(t)
	rec := NewRecorder(store)
	d := newTestLamp(t, "hall_lamp")

	d.ReconcileReport(map[string]any{"state": "ON", "brightness": 128.0})
	rec.DeviceChanged(d)

	if err := d.Write("brightness", 10); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	rec.Published(d, d.FlushOutbound())

	entries, err := store.History(context.Background(), "hall_lamp", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}

	// Same second: id breaks the tie, newest first.
	command, report := entries[0], entries[1]
	if command.Source != SourceCommand || command.State["brightness"] != float64(10) {
		t.Errorf("command entry = %+v", command)
	}
	if report.Source != SourceMQTT || report.State["state"] != true || report.State["brightness"] != float64(128) {
		t.Errorf("report entry = %+v", report)
	}
	if report.Address != "0x0017880104e45517" {
		t.Errorf("report address = %q", report.Address)
	}
}

func TestRecorder_LogsFailure(t *testing.T) {
	store, db := setupTestStore(t)
	logger := &recordingLogger{}
	rec := NewRecorder(store)
	rec.SetLogger(logger)

	db.Close()
	rec.DeviceChanged(newTestLamp(t, "hall_lamp"))

	if len(logger.errors) != 1 {
		t.Errorf("logged errors = %v, want 1", logger.errors)
	}

	// nil logger falls back to no-op.
	rec.SetLogger(nil)
	rec.DeviceChanged(newTestLamp(t, "hall_lamp"))
}

// =============================================================================
// Retention
// =============================================================================

func TestNewRetention_Invalid(t *testing.T) {
	store, _ := setupTestStore(t)

	if _, err := NewRetention(store, "15 3 * * *", 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("NewRetention(0) error = %v, want ErrInvalidRetention", err)
	}
	if _, err := NewRetention(store, "whenever", time.Hour); err == nil {
		t.Error("NewRetention(bad schedule) expected error")
	}
}

func TestRetention_RunOnce(t *testing.T) {
	store, db := setupTestStore(t)

	now := time.Now().UTC()
	insertRow(t, db, "hall_lamp", `{}`, SourceMQTT, now.Add(-48*time.Hour))
	insertRow(t, db, "hall_lamp", `{}`, SourceMQTT, now)

	r, err := NewRetention(store, "15 3 * * *", 24*time.Hour)
	if err != nil {
		t.Fatalf("NewRetention() error = %v", err)
	}

	n, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if n != 1 {
		t.Errorf("RunOnce() deleted %d, want 1", n)
	}
}

func TestRetention_Run(t *testing.T) {
	store, db := setupTestStore(t)
	insertRow(t, db, "hall_lamp", `{}`, SourceMQTT, time.Now().Add(-48*time.Hour))

	r, err := NewRetention(store, "@every 1h", 24*time.Hour)
	if err != nil {
		t.Fatalf("NewRetention() error = %v", err)
	}
	r.SetLogger(&recordingLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// The initial prune runs before the schedule starts.
	deadline := time.Now().Add(2 * time.Second)
	for {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM state_history").Scan(&count); err != nil {
			t.Fatalf("count query error = %v", err)
		}
		if count == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial prune did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRetention_Prune(t *testing.T) {
	store, db := setupTestStore(t)
	logger := &recordingLogger{}

	r, err := NewRetention(store, "15 3 * * *", time.Hour)
	if err != nil {
		t.Fatalf("NewRetention() error = %v", err)
	}
	r.SetLogger(logger)

	r.prune()
	if len(logger.infos) != 1 {
		t.Errorf("infos = %v, want 1", logger.infos)
	}

	db.Close()
	r.prune()
	if len(logger.errors) != 1 {
		t.Errorf("errors = %v, want 1", logger.errors)
	}
}

// =============================================================================
// InfluxSink
// =============================================================================

type point struct {
	device, capability string
	value              any
}

// fakeWriter implements PointWriter with the same value filter as the
// InfluxDB client.
type fakeWriter struct {
	points []point
}

func (w *fakeWriter) WriteDeviceState(device, capability string, value any, _ time.Time) bool {
	switch value.(type) {
	case float64, bool:
	default:
		return false
	}
	w.points = append(w.points, point{device, capability, value})
	return true
}

func TestInfluxSink(t *testing.T) {
	w := &fakeWriter{}
	sink := NewInfluxSink(w)

	d := newTestLamp(t, "Living Room Lamp")
	d.ReconcileReport(map[string]any{
		"state":      "ON",
		"brightness": 128.0,
		"color":      map[string]any{"x": 0.3, "y": 0.4},
	})
	if err := d.Write("effect", "blink"); err != nil {
		t.Fatalf("Write(effect) error = %v", err)
	}

	if n := sink.Write(d); n != 4 {
		t.Errorf("Write() queued %d points, want 4", n)
	}

	sort.Slice(w.points, func(i, j int) bool { return w.points[i].capability < w.points[j].capability })
	want := []point{
		{"living-room-lamp", "brightness", 128.0},
		{"living-room-lamp", "color.x", 0.3},
		{"living-room-lamp", "color.y", 0.4},
		{"living-room-lamp", "state", true},
	}
	if len(w.points) != len(want) {
		t.Fatalf("points = %v, want %v", w.points, want)
	}
	for i := range want {
		if w.points[i] != want[i] {
			t.Errorf("point[%d] = %v, want %v", i, w.points[i], want[i])
		}
	}

	// DeviceChanged is the callback form.
	w.points = nil
	sink.DeviceChanged(d)
	if len(w.points) != 4 {
		t.Errorf("DeviceChanged() queued %d points, want 4", len(w.points))
	}
}

func TestDeviceTag(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hall_lamp", "hall_lamp"},
		{"Living Room Lamp", "living-room-lamp"},
		{"Oficina", "oficina"},
	}

	for _, tt := range tests {
		if got := DeviceTag(tt.in); got != tt.want {
			t.Errorf("DeviceTag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
