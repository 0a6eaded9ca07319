package database

import (
	"context"
	"slices"
	"testing"
	"testing/fstest"
)

// historySchema is a two-step history schema used by the migration tests.
var historySchema = fstest.MapFS{
	"20260101_000000_state_history.up.sql": {Data: []byte(
		`CREATE TABLE state_history (id INTEGER PRIMARY KEY, device TEXT NOT NULL, state TEXT NOT NULL) STRICT;`)},
	"20260102_000000_device_index.up.sql": {Data: []byte(
		`CREATE INDEX idx_state_history_device ON state_history(device);`)},
	"README.md": {Data: []byte("not a migration")},
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

// TestMigrate verifies migrations are applied once, in version order.
func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	applied, err := db.Migrate(ctx, historySchema)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if want := []string{"20260101_000000", "20260102_000000"}; !slices.Equal(applied, want) {
		t.Errorf("applied = %v, want %v", applied, want)
	}
	if !tableExists(t, db, "state_history") {
		t.Fatal("state_history not created")
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != "20260102_000000" {
		t.Errorf("SchemaVersion() = %q, want 20260102_000000", version)
	}

	again, err := db.Migrate(ctx, historySchema)
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second Migrate() applied %v, want nothing", again)
	}
}

// TestMigrate_NewStepOnly verifies an upgrade applies only the added step.
func TestMigrate_NewStepOnly(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := fstest.MapFS{"20260101_000000_state_history.up.sql": historySchema["20260101_000000_state_history.up.sql"]}
	if _, err := db.Migrate(ctx, first); err != nil {
		t.Fatalf("Migrate(first) error = %v", err)
	}

	applied, err := db.Migrate(ctx, historySchema)
	if err != nil {
		t.Fatalf("Migrate(upgrade) error = %v", err)
	}
	if len(applied) != 1 || applied[0] != "20260102_000000" {
		t.Errorf("applied = %v, want [20260102_000000]", applied)
	}
}

// TestMigrate_FailureStopsBatch verifies per-migration atomicity.
func TestMigrate_FailureStopsBatch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	src := fstest.MapFS{
		"20260101_000000_ok.up.sql":     {Data: []byte(`CREATE TABLE ok (id INTEGER);`)},
		"20260102_000000_broken.up.sql": {Data: []byte(`CREATE TABLE nope (`)},
		"20260103_000000_later.up.sql":  {Data: []byte(`CREATE TABLE later (id INTEGER);`)},
	}

	applied, err := db.Migrate(ctx, src)
	if err == nil {
		t.Fatal("Migrate() error = nil, want error")
	}
	if len(applied) != 1 || applied[0] != "20260101_000000" {
		t.Errorf("applied = %v, want only the first step", applied)
	}
	if !tableExists(t, db, "ok") {
		t.Error("migration before the failure was not kept")
	}
	if tableExists(t, db, "later") {
		t.Error("migration after the failure was applied")
	}
}

// TestMigrate_Empty verifies a nil or empty source is a no-op.
func TestMigrate_Empty(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Migrate(ctx, nil); err != nil {
		t.Fatalf("Migrate(nil) error = %v", err)
	}
	if _, err := db.Migrate(ctx, fstest.MapFS{}); err != nil {
		t.Fatalf("Migrate(empty) error = %v", err)
	}
	if version, err := db.SchemaVersion(ctx); err != nil || version != "" {
		t.Errorf("SchemaVersion() = %q, %v, want empty", version, err)
	}
}

// TestMigrate_MisnamedFile verifies a malformed name fails loudly instead
// of being skipped.
func TestMigrate_MisnamedFile(t *testing.T) {
	db := openTestDB(t)

	src := fstest.MapFS{"state_history.up.sql": {Data: []byte(`CREATE TABLE x (id INTEGER);`)}}
	if _, err := db.Migrate(context.Background(), src); err == nil {
		t.Error("Migrate() error = nil, want naming error")
	}
}

// TestParseMigrationName verifies filename parsing.
func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		file        string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"20260301_120000_state_history.up.sql", "20260301_120000", "state_history", true},
		{"20260301_120000_x.up.sql", "20260301_120000", "x", true},
		{"20260301_120000_state_history.down.sql", "", "", false},
		{"20260301_120000.up.sql", "", "", false},
		{"20260301_120000_.up.sql", "", "", false},
		{"2026031_120000_short_day.up.sql", "", "", false},
		{"20260301_12h000_bad_clock.up.sql", "", "", false},
		{"invalid.up.sql", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, ok := parseMigrationName(tt.file)
			if ok != tt.wantOK || version != tt.wantVersion || name != tt.wantName {
				t.Errorf("parseMigrationName() = (%q, %q, %v), want (%q, %q, %v)",
					version, name, ok, tt.wantVersion, tt.wantName, tt.wantOK)
			}
		})
	}
}
