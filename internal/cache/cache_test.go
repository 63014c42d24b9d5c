package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/reviewflow/offline/internal/store"
)

// setupManager creates a cache manager over a temporary store.
func setupManager(t *testing.T) *Manager {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	return New(s, nil)
}

func TestPutGet(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	if err := m.Put(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	payload, ok, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if string(payload) != "v" {
		t.Errorf("expected v, got %s", payload)
	}
}

func TestGetMissing(t *testing.T) {
	m := setupManager(t)

	_, ok, err := m.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("expected miss for unknown key")
	}
}

func TestGetExpiredWithoutSweep(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	if err := m.Put(ctx, "k", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Advance the clock past the TTL; no sweep runs.
	m.now = func() time.Time { return time.Now().Add(5 * time.Millisecond) }

	_, ok, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("expired entry must never be returned")
	}

	// The expired row was deleted by the read itself.
	m.now = time.Now
	entry, err := m.store.GetCacheEntry(ctx, "k")
	if err != nil {
		t.Fatalf("GetCacheEntry failed: %v", err)
	}
	if entry != nil {
		t.Error("expired entry should have been deleted lazily on read")
	}
}

func TestGetDoesNotRefreshTTL(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }

	if err := m.Put(ctx, "k", []byte("v"), 10*time.Second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// A read just before expiry must not push the expiry forward.
	m.now = func() time.Time { return base.Add(9 * time.Second) }
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Fatal("entry should still be live")
	}

	m.now = func() time.Time { return base.Add(11 * time.Second) }
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("read must not have refreshed the TTL")
	}
}

func TestPutOverwritesExpiry(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	if err := m.Put(ctx, "k", []byte("v1"), time.Millisecond); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// Re-put with no TTL: the entry must now live forever.
	if err := m.Put(ctx, "k", []byte("v2"), 0); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	m.now = func() time.Time { return time.Now().Add(time.Hour) }

	payload, ok, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("overwritten entry should have no expiry")
	}
	if string(payload) != "v2" {
		t.Errorf("expected v2, got %s", payload)
	}
}

func TestInvalidate(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	if err := m.Put(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := m.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("expected miss after invalidate")
	}

	// Idempotent.
	if err := m.Invalidate(ctx, "k"); err != nil {
		t.Errorf("second Invalidate failed: %v", err)
	}
}

func TestClearExpired(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }

	if err := m.Put(ctx, "short", []byte("a"), time.Second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := m.Put(ctx, "long", []byte("b"), time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	m.now = func() time.Time { return base.Add(time.Minute) }

	n, err := m.ClearExpired(ctx)
	if err != nil {
		t.Fatalf("ClearExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 swept entry, got %d", n)
	}

	// Idempotent: nothing left to sweep.
	n, err = m.ClearExpired(ctx)
	if err != nil {
		t.Fatalf("second ClearExpired failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 swept entries, got %d", n)
	}

	if _, ok, _ := m.Get(ctx, "long"); !ok {
		t.Error("unexpired entry should have survived")
	}
}
