package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ActionKind is the remote mutation a queued action performs.
type ActionKind string

const (
	// ActionCreate creates a new remote resource.
	ActionCreate ActionKind = "create"
	// ActionUpdate replaces an existing remote resource.
	ActionUpdate ActionKind = "update"
	// ActionDelete removes a remote resource.
	ActionDelete ActionKind = "delete"
)

// Valid reports whether the kind is one of the three known values.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Action is one row of the write-ahead queue: a remote mutation recorded
// durably before any network attempt.
type Action struct {
	ID         string
	Kind       ActionKind
	Endpoint   string
	Payload    []byte // nil only for delete actions
	EnqueuedAt time.Time
	RetryCount int
}

// InsertAction persists a new queued action.
func (s *Store) InsertAction(ctx context.Context, action *Action) error {
	if !action.Kind.Valid() {
		return fmt.Errorf("invalid action kind: %q", action.Kind)
	}

	query := `
	INSERT INTO actions (id, kind, endpoint, payload, enqueued_at, retry_count)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	var payload sql.NullString
	if action.Payload != nil {
		payload = sql.NullString{String: string(action.Payload), Valid: true}
	}

	_, err := s.conn.ExecContext(ctx, query,
		action.ID,
		string(action.Kind),
		action.Endpoint,
		payload,
		action.EnqueuedAt.UnixNano(),
		action.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert action %s: %w", action.ID, err)
	}

	return nil
}

// ListActions returns all queued actions ordered by enqueue time ascending,
// with the id as a tiebreaker for same-instant enqueues.
func (s *Store) ListActions(ctx context.Context) ([]*Action, error) {
	query := `
	SELECT id, kind, endpoint, payload, enqueued_at, retry_count
	FROM actions
	ORDER BY enqueued_at ASC, id ASC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		var action Action
		var kind string
		var payload sql.NullString
		var enqueuedAt int64

		err := rows.Scan(&action.ID, &kind, &action.Endpoint, &payload, &enqueuedAt, &action.RetryCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		action.Kind = ActionKind(kind)
		if payload.Valid {
			action.Payload = []byte(payload.String)
		}
		action.EnqueuedAt = time.Unix(0, enqueuedAt).UTC()

		actions = append(actions, &action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return actions, nil
}

// GetAction retrieves a single queued action by id. Returns (nil, nil) when
// the action doesn't exist.
func (s *Store) GetAction(ctx context.Context, id string) (*Action, error) {
	query := `
	SELECT id, kind, endpoint, payload, enqueued_at, retry_count
	FROM actions
	WHERE id = ?
	`

	var action Action
	var kind string
	var payload sql.NullString
	var enqueuedAt int64

	err := s.conn.QueryRowContext(ctx, query, id).Scan(
		&action.ID, &kind, &action.Endpoint, &payload, &enqueuedAt, &action.RetryCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action %s: %w", id, err)
	}

	action.Kind = ActionKind(kind)
	if payload.Valid {
		action.Payload = []byte(payload.String)
	}
	action.EnqueuedAt = time.Unix(0, enqueuedAt).UTC()

	return &action, nil
}

// CountActions returns the number of queued actions.
func (s *Store) CountActions(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return count, nil
}

// DeleteAction removes a queued action. Returns nil if the action doesn't
// exist (idempotent).
func (s *Store) DeleteAction(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM actions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete action %s: %w", id, err)
	}
	return nil
}

// IncrementActionRetry bumps the retry counter for an action and returns
// the new count. Returns sql.ErrNoRows (wrapped) if the action is gone.
func (s *Store) IncrementActionRetry(ctx context.Context, id string) (int, error) {
	query := `
	UPDATE actions SET retry_count = retry_count + 1
	WHERE id = ?
	RETURNING retry_count
	`

	var count int
	err := s.conn.QueryRowContext(ctx, query, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("action %s not found: %w", id, err)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry for action %s: %w", id, err)
	}

	return count, nil
}
