package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetPreference inserts or overwrites a durable setting. Values are opaque
// to the store; callers typically write JSON.
func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO preferences (key, value)
	VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`

	_, err := s.conn.ExecContext(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}

	return nil
}

// GetPreference retrieves a setting. Returns ("", false, nil) when the key
// is absent.
func (s *Store) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get preference %s: %w", key, err)
	}
	return value, true, nil
}

// DeletePreference removes a setting. Returns nil if the key doesn't exist
// (idempotent).
func (s *Store) DeletePreference(ctx context.Context, key string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete preference %s: %w", key, err)
	}
	return nil
}
