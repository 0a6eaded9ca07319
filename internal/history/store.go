package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Source values recorded with each entry.
const (
	SourceMQTT    = "mqtt"
	SourceCommand = "command"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Entry is a single recorded device state snapshot.
type Entry struct {
	ID int64 `json:"id"`

	// Device is the device name at the time of recording.
	Device string `json:"device"`

	// Address is the hardware address, empty if unknown.
	Address string `json:"address,omitempty"`

	// State is the snapshot of the device state, or the outbound patch for
	// SourceCommand entries.
	State map[string]any `json:"state"`

	// Source identifies how the change was observed (mqtt, command).
	Source string `json:"source"`

	// CreatedAt is the time the row was written (UTC, second precision).
	CreatedAt time.Time `json:"created_at"`
}

// Store persists state snapshots in the state_history table.
//
// Thread Safety:
//   - Safe for concurrent use; serialisation is left to database/sql.
type Store struct {
	db *sql.DB
}

// NewStore creates a store on an open, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts a state snapshot for a device.
//
// Parameters:
//   - device: device name, required
//   - address: hardware address, may be empty
//   - state: snapshot to persist; nil is stored as {}
//   - source: origin of the change; empty defaults to SourceMQTT
//
// Returns:
//   - error: ErrDeviceRequired, or the underlying database error
func (s *Store) Record(ctx context.Context, device, address string, state map[string]any, source string) error {
	if device == "" {
		return ErrDeviceRequired
	}
	if source == "" {
		source = SourceMQTT
	}
	if state == nil {
		state = map[string]any{}
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO state_history (device, address, state, source) VALUES (?, ?, ?, ?)",
		device,
		address,
		string(stateJSON),
		source,
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}

	return nil
}

// History returns recent entries for a device, newest first.
//
// Parameters:
//   - device: device name, required
//   - limit: maximum entries (default 50, max 200)
//
// Returns:
//   - []Entry: entries ordered by created_at DESC, may be empty
//   - error: ErrDeviceRequired, or the underlying query error
func (s *Store) History(ctx context.Context, device string, limit int) ([]Entry, error) {
	if device == "" {
		return nil, ErrDeviceRequired
	}
	limit = ClampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device, address, state, source, created_at
		 FROM state_history
		 WHERE device = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		device,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var stateJSON string
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.Device, &entry.Address, &stateJSON, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}

		if err := json.Unmarshal([]byte(stateJSON), &entry.State); err != nil {
			return nil, fmt.Errorf("unmarshalling state: %w", err)
		}

		entry.CreatedAt, err = parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}

	return entries, nil
}

// Prune deletes entries older than the given duration.
//
// Returns:
//   - int64: number of rows deleted
//   - error: ErrInvalidRetention, or the underlying database error
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM state_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return n, nil
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return min(limit, maxLimit)
}

// parseTimestamp parses a created_at value written by SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return ts, nil
}
