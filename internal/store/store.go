// Package store provides the durable on-device database that the offline
// engine is built on.
//
// The database is a single embedded SQLite file opened in WAL mode, holding
// four relations: the read cache, the pending-action queue, the mirrored
// review collection, and user preferences. Each statement is atomic on its
// own; no operation here spans record kinds, so callers never need
// cross-table transactions (ReplaceReviews is the one internal exception,
// since a snapshot swap must be all-or-nothing).
//
// Every other component takes a *Store obtained from Open. Opening the
// store is the only fallible setup step: if the device database cannot be
// created or opened, the session is unusable and the error is surfaced to
// the caller immediately, never retried.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the embedded SQLite connection with typed access to the
// engine's four record kinds.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates (if needed) and opens the device database at path.
//
// The database is opened in WAL mode with a busy timeout so concurrent
// readers never block the single writer. The caller MUST call Close when
// done.
//
// A failure here means the device storage is unavailable: surface it and
// stop, do not retry.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return s, nil
}

// Path returns the filesystem path the store was opened at.
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
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the schema if it doesn't exist. Idempotent - safe to
// call on every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	-- Time-bounded read cache. Timestamps are UnixNano integers so expiry
	-- comparisons are numeric. expires_at NULL means the entry never
	-- expires.
	CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		written_at INTEGER NOT NULL,
		expires_at INTEGER
	);

	-- Write-ahead queue of pending remote mutations. enqueued_at is a
	-- UnixNano integer: a text timestamp with a variable-width fraction
	-- would not sort chronologically.
	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		payload TEXT,
		enqueued_at INTEGER NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0
	);

	-- Denormalized snapshot of the remote review collection.
	CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY,
		platform TEXT NOT NULL,
		reviewer_name TEXT NOT NULL,
		rating INTEGER NOT NULL,
		content TEXT NOT NULL,
		sentiment TEXT,
		response_status TEXT,
		review_date TEXT,
		response_content TEXT,
		fetched_at TEXT NOT NULL,
		is_synced INTEGER NOT NULL DEFAULT 1
	);

	-- Durable settings, no expiry.
	CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- Drain order: enqueued_at first, id breaks same-instant ties.
	CREATE INDEX IF NOT EXISTS idx_actions_order ON actions(enqueued_at, id);
	CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache(expires_at);
	CREATE INDEX IF NOT EXISTS idx_reviews_platform ON reviews(platform);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

// timeToNullNano converts a time pointer to a nullable UnixNano for SQL.
func timeToNullNano(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

// nullNanoToTime converts a nullable UnixNano to a time pointer.
func nullNanoToTime(ni sql.NullInt64) *time.Time {
	if !ni.Valid {
		return nil
	}
	t := time.Unix(0, ni.Int64).UTC()
	return &t
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
