// Package store provides SQLite-backed persistence for the event router:
// an append-only event log and a generic query surface for watch schedules.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrStoreClosed is returned when operating on a closed store.
var ErrStoreClosed = errors.New("store is closed")

// LoggedEvent is one row of the event log.
type LoggedEvent struct {
	ID        int64
	EventType string
	Data      []byte
	UserID    string
	Timestamp time.Time
}

// SQLiteStore persists events to SQLite. It implements the bus's event log
// collaborator and the scheduler's query collaborator, so a single store
// instance registered in the container serves both.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite event store.
// The path should be a file path (e.g., "./beacon.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			data BLOB,
			user_id TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_type_time
		ON events(event_type, timestamp)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// LogEvent appends one event to the log and returns its row id.
func (s *SQLiteStore) LogEvent(ctx context.Context, eventType string, data []byte, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (event_type, data, user_id, timestamp)
		VALUES (?, ?, ?, ?)
	`, eventType, data, userID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("log event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("log event: %w", err)
	}
	return id, nil
}

// ExecuteQuery runs an arbitrary read query and returns the rows as
// structured records. Watch schedules use this to poll for state changes.
func (s *SQLiteStore) ExecuteQuery(ctx context.Context, query string, params ...any) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			// The driver returns BLOB columns as []byte; copy so rows
			// remain valid after iteration.
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return results, nil
}

// RecentEvents returns the most recent logged events, newest first,
// optionally filtered by event type. An empty eventType matches all.
func (s *SQLiteStore) RecentEvents(ctx context.Context, eventType string, limit int) ([]LoggedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, event_type, data, user_id, timestamp FROM events
		ORDER BY id DESC LIMIT ?
	`
	args := []any{limit}
	if eventType != "" {
		query = `
			SELECT id, event_type, data, user_id, timestamp FROM events
			WHERE event_type = ?
			ORDER BY id DESC LIMIT ?
		`
		args = []any{eventType, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []LoggedEvent
	for rows.Next() {
		var ev LoggedEvent
		var ts string
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Data, &ev.UserID, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// Close closes the store. Subsequent operations return ErrStoreClosed.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
