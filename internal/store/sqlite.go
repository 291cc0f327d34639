package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    experiment_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    metric TEXT NOT NULL DEFAULT '',
    value REAL NOT NULL DEFAULT 0,
    session_id TEXT NOT NULL DEFAULT '',
    page TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_events_experiment ON events(experiment_id);
CREATE INDEX IF NOT EXISTS idx_events_experiment_name ON events(experiment_id, name);

CREATE TABLE IF NOT EXISTS session_values (
    session_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (unixepoch()),
    PRIMARY KEY (session_id, key)
);

CREATE INDEX IF NOT EXISTS idx_session_values_updated ON session_values(updated_at);
`

func Open(dbPath string) (*SQLiteStore, error) {
	// busy_timeout is per connection; the DSN applies it to every pooled one
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=busy_timeout(5000)"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, e *Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO events (name, experiment_id, variant_id, metric, value, session_id, page, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Name), e.ExperimentID, e.VariantID, e.Metric, e.Value, e.SessionID, e.Page, e.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id

	return nil
}

// ListEvents returns the events of one experiment, oldest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, experimentID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, experiment_id, variant_id, metric, value, session_id, page, created_at
		 FROM events WHERE experiment_id = ? ORDER BY created_at, id`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var name string
		var createdAt int64
		if err := rows.Scan(&e.ID, &name, &e.ExperimentID, &e.VariantID, &e.Metric, &e.Value, &e.SessionID, &e.Page, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Name = EventName(name)
		e.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

func (s *SQLiteStore) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// SizeBytes reports the on-disk size of the database.
func (s *SQLiteStore) SizeBytes(ctx context.Context) (int64, error) {
	var size int64
	row := s.db.QueryRowContext(ctx, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	if err := row.Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to read database size: %w", err)
	}
	return size, nil
}

// Session returns the key-value scope of one visitor session.
func (s *SQLiteStore) Session(id string) *SessionScope {
	return &SessionScope{db: s.db, id: id}
}

// PurgeSessions deletes session values not written since idleSince.
func (s *SQLiteStore) PurgeSessions(ctx context.Context, idleSince time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM session_values WHERE updated_at < ?`, idleSince.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// SessionScope is a single session's view of session_values. Writes are
// atomic upserts, so a read after a write always observes it.
type SessionScope struct {
	db *sql.DB
	id string
}

func (sc *SessionScope) ID() string {
	return sc.id
}

func (sc *SessionScope) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := sc.db.QueryRowContext(ctx,
		`SELECT value FROM session_values WHERE session_id = ? AND key = ?`, sc.id, key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read session value: %w", err)
	}

	return value, true, nil
}

func (sc *SessionScope) Set(ctx context.Context, key, value string) error {
	_, err := sc.db.ExecContext(ctx,
		`INSERT INTO session_values (session_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		sc.id, key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write session value: %w", err)
	}
	return nil
}

// SetIfAbsent writes value unless the key already holds one, and returns the
// value stored after the statement. A conflicting insert only refreshes
// updated_at, so RETURNING yields the existing value.
func (sc *SessionScope) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	var stored string
	err := sc.db.QueryRowContext(ctx,
		`INSERT INTO session_values (session_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, key) DO UPDATE SET updated_at = excluded.updated_at
		 RETURNING value`,
		sc.id, key, value, time.Now().Unix(),
	).Scan(&stored)
	if err != nil {
		return "", fmt.Errorf("failed to write session value: %w", err)
	}
	return stored, nil
}
