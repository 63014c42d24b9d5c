package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewflow/offline/internal/store"
)

// setupQueue creates a queue over a temporary store.
func setupQueue(t *testing.T, config Config) *Queue {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.InitSchema(context.Background()))

	return New(s, config)
}

func TestEnqueuePersistsAction(t *testing.T) {
	q := setupQueue(t, Config{})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Create, "/api/reviews/1/response", []byte(`{"response":"thanks"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.Equal(t, Create, pending[0].Kind)
	assert.Equal(t, 0, pending[0].RetryCount)
}

func TestEnqueuePayloadRules(t *testing.T) {
	q := setupQueue(t, Config{})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, Delete, "/api/reviews/1", []byte(`{}`))
	assert.Error(t, err, "delete must not carry a payload")

	_, err = q.Enqueue(ctx, Update, "/api/reviews/1/response", nil)
	assert.Error(t, err, "update requires a payload")

	_, err = q.Enqueue(ctx, Delete, "/api/reviews/1", nil)
	assert.NoError(t, err)
}

func TestEnqueueIDsAreUniqueAndOrdered(t *testing.T) {
	q := setupQueue(t, Config{})
	ctx := context.Background()

	// Rapid-fire enqueues; same-instant ids must still be unique and the
	// snapshot must come back in enqueue order.
	var ids []string
	for i := 0; i < 50; i++ {
		id, err := q.Enqueue(ctx, Delete, "/api/reviews/1", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 50)
	for i, action := range pending {
		assert.Equal(t, ids[i], action.ID, "snapshot order must match enqueue order at %d", i)
	}
}

func TestEnqueueFiresHook(t *testing.T) {
	fired := make(chan struct{}, 1)
	q := setupQueue(t, Config{OnEnqueue: func() { fired <- struct{}{} }})

	_, err := q.Enqueue(context.Background(), Delete, "/api/reviews/1", nil)
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("OnEnqueue hook never fired")
	}
}

func TestBumpRetryBelowCeiling(t *testing.T) {
	q := setupQueue(t, Config{MaxRetries: 3})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Delete, "/api/reviews/1", nil)
	require.NoError(t, err)

	count, dropped, err := q.BumpRetry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.False(t, dropped)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount, "retry count must be persisted")
}

func TestBumpRetryTerminalDrop(t *testing.T) {
	var drops []DropEvent
	q := setupQueue(t, Config{
		MaxRetries: 3,
		OnDrop:     func(e DropEvent) { drops = append(drops, e) },
	})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Update, "/api/reviews/2/response", []byte(`{"response":"x"}`))
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		count, dropped, err := q.BumpRetry(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.False(t, dropped)
	}

	count, dropped, err := q.BumpRetry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.True(t, dropped, "third bump must be terminal")

	// Removed in the same operation.
	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Exactly one drop event, carrying the terminal state.
	require.Len(t, drops, 1)
	assert.Equal(t, 3, drops[0].RetryCount)
	require.NotNil(t, drops[0].Action)
	assert.Equal(t, id, drops[0].Action.ID)
	assert.Equal(t, "/api/reviews/2/response", drops[0].Action.Endpoint)
}

func TestBumpRetryDropAmongOthers(t *testing.T) {
	var drops []DropEvent
	q := setupQueue(t, Config{
		MaxRetries: 1,
		OnDrop:     func(e DropEvent) { drops = append(drops, e) },
	})
	ctx := context.Background()

	other, err := q.Enqueue(ctx, Delete, "/api/reviews/1", nil)
	require.NoError(t, err)
	doomed, err := q.Enqueue(ctx, Update, "/api/reviews/2/response", []byte(`{"response":"x"}`))
	require.NoError(t, err)

	_, dropped, err := q.BumpRetry(ctx, doomed)
	require.NoError(t, err)
	require.True(t, dropped)

	// The event carries the dropped action, not a neighbor.
	require.Len(t, drops, 1)
	require.NotNil(t, drops[0].Action)
	assert.Equal(t, doomed, drops[0].Action.ID)
	assert.Equal(t, Update, drops[0].Action.Kind)

	// The neighbor is untouched.
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, other, pending[0].ID)
	assert.Equal(t, 0, pending[0].RetryCount)
}

func TestRemoveIdempotent(t *testing.T) {
	q := setupQueue(t, Config{})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Delete, "/api/reviews/1", nil)
	require.NoError(t, err)

	require.NoError(t, q.Remove(ctx, id))
	require.NoError(t, q.Remove(ctx, id))

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDefaultMaxRetries(t *testing.T) {
	q := setupQueue(t, Config{})
	assert.Equal(t, DefaultMaxRetries, q.MaxRetries())
}
