// Package snapshot provides opt-in, durable session persistence backed
// by a local SQLite database, per SPEC_FULL.md's Non-goals carve-out
// ("beyond opt-in snapshotting"). The Session's /save command always
// writes a plain JSON file and /load reads one by default; when a Store is
// configured, /save also upserts into it and "/load snapshot:<id>" reads
// from it. The Store is a single
// queryable table of snapshot blobs, so an operator can list or prune
// saved sessions without walking the workspace directory.
//
// Grounded on the teacher's internal/memory/backend/sqlitevec.Backend and
// the reference sqlite store in memory/sqlite/sqlite.go: a thin
// *sql.DB wrapper opened against the pure-Go modernc.org/sqlite driver
// (registered under the "sqlite" driver name, no cgo), one CREATE TABLE
// IF NOT EXISTS at construction, and plain database/sql calls for every
// operation.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Record describes one saved session, without its payload — used for
// listing.
type Record struct {
	SessionID string
	UserID    string
	SavedAt   time.Time
	SizeBytes int
}

// Store persists session snapshots (opaque JSON blobs, the same shape
// internal/session.snapshotFile produces) to a local SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dsn (a file path, or
// ":memory:" for tests) and ensures its schema exists.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			session_id TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			data       BLOB NOT NULL,
			saved_at   DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("snapshot: create table: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts sessionID's snapshot payload.
func (s *Store) Save(ctx context.Context, sessionID, userID string, data []byte, savedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (session_id, user_id, data, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET user_id = excluded.user_id, data = excluded.data, saved_at = excluded.saved_at
	`, sessionID, userID, data, savedAt)
	if err != nil {
		return fmt.Errorf("snapshot: save %q: %w", sessionID, err)
	}
	return nil
}

// Load returns sessionID's last-saved payload.
func (s *Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE session_id = ?`, sessionID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot: no snapshot for session %q", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: load %q: %w", sessionID, err)
	}
	return data, nil
}

// Delete removes sessionID's snapshot, if any. Idempotent.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("snapshot: delete %q: %w", sessionID, err)
	}
	return nil
}

// List returns every saved session's metadata, most-recently-saved
// first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, user_id, saved_at, length(data) FROM snapshots ORDER BY saved_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.SessionID, &r.UserID, &r.SavedAt, &r.SizeBytes); err != nil {
			return nil, fmt.Errorf("snapshot: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
