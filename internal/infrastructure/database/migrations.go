package database

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

// migrationSuffix marks a schema step. Migrations only move forward: the
// history table is disposable, so a bad step is fixed by a newer one.
const migrationSuffix = ".up.sql"

// migration is one schema step, named YYYYMMDD_HHMMSS_description.up.sql.
type migration struct {
	version string
	name    string
	sql     string
}

// Migrate applies, oldest first, every migration in src that the database
// has not recorded yet. Each runs in its own transaction, so a failure
// keeps the earlier ones and skips the rest.
//
// Returns:
//   - []string: versions applied by this call
//   - error: the first failing migration
func (db *DB) Migrate(ctx context.Context, src fs.FS) ([]string, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("creating schema_migrations: %w", err)
	}

	all, err := loadMigrations(src)
	if err != nil {
		return nil, err
	}
	recorded, err := db.recordedVersions(ctx)
	if err != nil {
		return nil, err
	}
	pending := lo.Reject(all, func(m migration, _ int) bool { return recorded[m.version] })

	applied := make([]string, 0, len(pending))
	for _, m := range pending {
		if err := db.apply(ctx, m); err != nil {
			return applied, fmt.Errorf("migration %s (%s): %w", m.version, m.name, err)
		}
		applied = append(applied, m.version)
	}
	return applied, nil
}

// SchemaVersion returns the newest recorded migration, or "" when Migrate
// found nothing to apply. It fails before the first Migrate.
func (db *DB) SchemaVersion(ctx context.Context) (string, error) {
	recorded, err := db.recordedVersions(ctx)
	if err != nil {
		return "", err
	}
	if len(recorded) == 0 {
		return "", nil
	}
	return slices.Max(lo.Keys(recorded)), nil
}

func (db *DB) recordedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	recorded := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("reading schema_migrations: %w", err)
		}
		recorded[v] = true
	}
	return recorded, rows.Err()
}

func (db *DB) apply(ctx context.Context, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// loadMigrations reads the *.up.sql files at the root of src in version
// order. Other files are ignored and a nil src has no migrations.
func loadMigrations(src fs.FS) ([]migration, error) {
	if src == nil {
		return nil, nil
	}
	files, err := fs.Glob(src, "*"+migrationSuffix)
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	out := make([]migration, 0, len(files))
	for _, file := range files {
		version, name, ok := parseMigrationName(file)
		if !ok {
			return nil, fmt.Errorf("migration %s: want YYYYMMDD_HHMMSS_description%s", file, migrationSuffix)
		}
		body, err := fs.ReadFile(src, file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		out = append(out, migration{version: version, name: name, sql: string(body)})
	}
	slices.SortFunc(out, func(a, b migration) int { return strings.Compare(a.version, b.version) })
	return out, nil
}

// parseMigrationName splits "20260301_120000_state_history.up.sql" into
// version "20260301_120000" and name "state_history".
func parseMigrationName(file string) (version, name string, ok bool) {
	base, ok := strings.CutSuffix(file, migrationSuffix)
	if !ok {
		return "", "", false
	}
	day, rest, ok := strings.Cut(base, "_")
	if !ok || len(day) != 8 || !digits(day) {
		return "", "", false
	}
	clock, name, ok := strings.Cut(rest, "_")
	if !ok || len(clock) != 6 || !digits(clock) || name == "" {
		return "", "", false
	}
	return day + "_" + clock, name, true
}

func digits(s string) bool {
	return strings.Trim(s, "0123456789") == ""
}
