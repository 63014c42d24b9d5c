// Package queue provides the durable write-ahead queue of pending remote
// mutations.
//
// Every offline write intent becomes an action row persisted before any
// network attempt. Actions leave the queue only on confirmed delivery or
// after exhausting their retry budget; the latter is reported as a drop
// event so the application can tell the user, never silently.
package queue

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/reviewflow/offline/internal/store"
)

// DefaultMaxRetries is the delivery attempts an action gets before it is
// permanently dropped.
const DefaultMaxRetries = 3

// Kind aliases the store's action kind for callers that never touch the
// store directly.
type Kind = store.ActionKind

const (
	Create = store.ActionCreate
	Update = store.ActionUpdate
	Delete = store.ActionDelete
)

// Action is a queued remote mutation.
type Action = store.Action

// DropEvent describes an action removed after exhausting its retry budget.
// This is a deliberate data-loss boundary: the application layer surfaces
// it to the user as "changes could not be synced".
type DropEvent struct {
	Action     *Action
	RetryCount int
	DroppedAt  time.Time
}

// Config holds queue policy and hooks.
type Config struct {
	// MaxRetries is the retry ceiling; 0 means DefaultMaxRetries.
	MaxRetries int

	// OnDrop is invoked synchronously whenever an action is terminally
	// dropped. May be nil.
	OnDrop func(DropEvent)

	// OnEnqueue is invoked in its own goroutine after each successful
	// enqueue. The daemon wires it to "trigger a drain if online"; enqueue
	// itself never waits on the network. May be nil.
	OnEnqueue func()

	// Logger for queue activity.
	Logger *log.Logger
}

// Queue is the durable FIFO of pending mutations. Construct with New; the
// store handle is injected so tests can run independent queues in
// isolation.
type Queue struct {
	store  *store.Store
	config Config

	// now is the clock; swapped out in tests.
	now func() time.Time
}

// New creates a queue over the given store.
func New(s *store.Store, config Config) *Queue {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}
	return &Queue{
		store:  s,
		config: config,
		now:    time.Now,
	}
}

// MaxRetries returns the configured retry ceiling.
func (q *Queue) MaxRetries() int {
	return q.config.MaxRetries
}

// Enqueue persists a new action and returns its id. The call completes as
// soon as the row is durable; any drain it provokes happens asynchronously
// through the OnEnqueue hook.
//
// payload must be nil for Delete actions and non-nil otherwise.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, endpoint string, payload []byte) (string, error) {
	if kind == Delete && payload != nil {
		return "", fmt.Errorf("delete action must not carry a payload")
	}
	if kind != Delete && payload == nil {
		return "", fmt.Errorf("%s action requires a payload", kind)
	}

	now := q.now().UTC()
	action := &Action{
		ID:         newActionID(now),
		Kind:       kind,
		Endpoint:   endpoint,
		Payload:    payload,
		EnqueuedAt: now,
		RetryCount: 0,
	}

	if err := q.store.InsertAction(ctx, action); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	q.config.Logger.Printf("Enqueued %s %s (%s)", action.Kind, action.Endpoint, action.ID)

	if q.config.OnEnqueue != nil {
		go q.config.OnEnqueue()
	}

	return action.ID, nil
}

// Pending returns a read-only snapshot of the queue ordered by enqueue
// time ascending.
func (q *Queue) Pending(ctx context.Context) ([]*Action, error) {
	actions, err := q.store.ListActions(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending: %w", err)
	}
	return actions, nil
}

// Count returns the number of pending actions.
func (q *Queue) Count(ctx context.Context) (int, error) {
	count, err := q.store.CountActions(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

// Remove deletes an action after confirmed delivery. Idempotent.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if err := q.store.DeleteAction(ctx, id); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// BumpRetry increments an action's retry counter. When the counter reaches
// the ceiling the action is removed in the same operation, dropped is
// true, and the OnDrop hook fires with the terminal state.
func (q *Queue) BumpRetry(ctx context.Context, id string) (retryCount int, dropped bool, err error) {
	retryCount, err = q.store.IncrementActionRetry(ctx, id)
	if err != nil {
		return 0, false, fmt.Errorf("bump retry: %w", err)
	}

	if retryCount < q.config.MaxRetries {
		return retryCount, false, nil
	}

	// Terminal bump: snapshot the action for the drop event, then remove.
	// The increment and delete are separate statements; a crash between
	// them leaves the row at the ceiling and the next pass makes one extra
	// attempt before dropping, which is harmless.
	action, _ := q.store.GetAction(ctx, id)

	if err := q.store.DeleteAction(ctx, id); err != nil {
		return retryCount, false, fmt.Errorf("drop after retry ceiling: %w", err)
	}

	q.config.Logger.Printf("Dropped action %s after %d retries", id, retryCount)

	if q.config.OnDrop != nil {
		q.config.OnDrop(DropEvent{
			Action:     action,
			RetryCount: retryCount,
			DroppedAt:  q.now(),
		})
	}

	return retryCount, true, nil
}

// newActionID derives a unique, chronologically ordered id from the
// enqueue instant plus a random suffix. The suffix keeps ids unique even
// for same-nanosecond enqueues.
func newActionID(now time.Time) string {
	return fmt.Sprintf("%020d-%s", now.UnixNano(), uuid.NewString()[:8])
}
