package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CacheEntry is a single row of the read cache. ExpiresAt nil means the
// entry never expires.
type CacheEntry struct {
	Key       string
	Payload   []byte
	WrittenAt time.Time
	ExpiresAt *time.Time
}

// PutCacheEntry inserts or unconditionally overwrites a cache entry.
func (s *Store) PutCacheEntry(ctx context.Context, entry *CacheEntry) error {
	query := `
	INSERT INTO cache (key, payload, written_at, expires_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		payload = excluded.payload,
		written_at = excluded.written_at,
		expires_at = excluded.expires_at
	`

	_, err := s.conn.ExecContext(ctx, query,
		entry.Key,
		entry.Payload,
		entry.WrittenAt.UnixNano(),
		timeToNullNano(entry.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put cache entry %s: %w", entry.Key, err)
	}

	return nil
}

// GetCacheEntry retrieves a cache entry by key. Returns (nil, nil) when the
// key is absent; expiry is NOT evaluated here, that is the cache manager's
// job.
func (s *Store) GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error) {
	query := `SELECT key, payload, written_at, expires_at FROM cache WHERE key = ?`

	var entry CacheEntry
	var writtenAt int64
	var expiresAt sql.NullInt64

	err := s.conn.QueryRowContext(ctx, query, key).Scan(
		&entry.Key,
		&entry.Payload,
		&writtenAt,
		&expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}

	entry.WrittenAt = time.Unix(0, writtenAt).UTC()
	entry.ExpiresAt = nullNanoToTime(expiresAt)

	return &entry, nil
}

// DeleteCacheEntry removes a cache entry. Returns nil if the key doesn't
// exist (idempotent).
func (s *Store) DeleteCacheEntry(ctx context.Context, key string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// DeleteExpiredCacheEntries removes every entry whose expiry is at or
// before cutoff, returning how many were removed.
func (s *Store) DeleteExpiredCacheEntries(ctx context.Context, cutoff time.Time) (int, error) {
	query := `DELETE FROM cache WHERE expires_at IS NOT NULL AND expires_at <= ?`

	res, err := s.conn.ExecContext(ctx, query, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted cache entries: %w", err)
	}

	return int(n), nil
}
