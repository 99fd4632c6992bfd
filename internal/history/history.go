// Package history records every sync svsync performs in an embedded SQLite
// database.
//
// The store is write-only from the daemon's point of view: the daemon never
// consults it to make decisions. It exists so `svsync history` can answer
// "when did the last resync happen and why".
//
// Architecture:
//   - Database file: configured by [history] path, e.g. .svsync/history.db
//   - WAL mode so `svsync history` can read while the daemon writes
//   - One table, syncs, one row per sync attempt
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("history store is closed")

// timeFormat is fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one recorded sync.
type Entry struct {
	ID         string    `json:"id" yaml:"id"`
	Trigger    string    `json:"trigger" yaml:"trigger"`
	Units      []string  `json:"units" yaml:"units"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	DurationMS int64     `json:"duration_ms" yaml:"duration_ms"`
	Bytes      int64     `json:"bytes" yaml:"bytes"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether the sync returned an error.
func (e Entry) Failed() bool {
	return e.Error != ""
}

// Store wraps the history database connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens or creates the history database at path and ensures its
// schema exists.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	// busy_timeout is per connection, so it goes in the DSN for the pool.
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	s.conn = nil
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS syncs (
		id TEXT PRIMARY KEY,
		sync_trigger TEXT NOT NULL, -- startup, source, external, manual
		units TEXT NOT NULL,        -- JSON array
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		bytes INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_syncs_started ON syncs(started_at);
	CREATE INDEX IF NOT EXISTS idx_syncs_trigger ON syncs(sync_trigger);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return nil
}

// Add inserts entry, assigning a new ID if it has none. It returns the ID.
func (s *Store) Add(ctx context.Context, entry Entry) (string, error) {
	if s.conn == nil {
		return "", ErrClosed
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	unitsJSON, err := json.Marshal(entry.Units)
	if err != nil {
		return "", fmt.Errorf("failed to marshal units: %w", err)
	}

	var errText sql.NullString
	if entry.Error != "" {
		errText = sql.NullString{String: entry.Error, Valid: true}
	}

	query := `
	INSERT INTO syncs (id, sync_trigger, units, started_at, duration_ms, bytes, error)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.conn.ExecContext(ctx, query,
		entry.ID,
		entry.Trigger,
		string(unitsJSON),
		entry.StartedAt.UTC().Format(timeFormat),
		entry.DurationMS,
		entry.Bytes,
		errText,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert sync %s: %w", entry.ID, err)
	}
	return entry.ID, nil
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns every entry.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if s.conn == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}

	query := `
	SELECT id, sync_trigger, units, started_at, duration_ms, bytes, error
	FROM syncs
	ORDER BY started_at DESC, rowid DESC
	LIMIT ?
	`
	rows, err := s.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			unitsJSON string
			started   string
			errText   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Trigger, &unitsJSON, &started, &e.DurationMS, &e.Bytes, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if err := json.Unmarshal([]byte(unitsJSON), &e.Units); err != nil {
			return nil, fmt.Errorf("failed to unmarshal units for %s: %w", e.ID, err)
		}
		e.StartedAt, err = time.Parse(timeFormat, started)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at for %s: %w", e.ID, err)
		}
		e.Error = errText.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return entries, nil
}

// Count returns the number of recorded syncs.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s.conn == nil {
		return 0, ErrClosed
	}
	var n int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM syncs").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}
