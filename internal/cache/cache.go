// Package cache provides the time-bounded read cache over the device store.
//
// Expiry is lazy-on-read: Get never returns an entry past its expiry, even
// if no sweep has ever run. The background sweep is a cleanup optimization
// only, it reclaims rows for entries nobody reads anymore.
package cache

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/reviewflow/offline/internal/store"
)

// Manager is the read cache. It holds no state of its own beyond the
// injected store handle, so independent managers over separate stores are
// fully isolated.
type Manager struct {
	store  *store.Store
	logger *log.Logger

	// now is the clock; swapped out in tests.
	now func() time.Time
}

// New creates a cache manager over the given store.
//
// If logger is nil, a default logger writing to stderr is used.
func New(s *store.Store, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	return &Manager{
		store:  s,
		logger: logger,
		now:    time.Now,
	}
}

// Put stores a payload under key, unconditionally overwriting any existing
// entry. A ttl of zero means the entry never expires.
func (m *Manager) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	now := m.now()

	entry := &store.CacheEntry{
		Key:       key,
		Payload:   payload,
		WrittenAt: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		entry.ExpiresAt = &expires
	}

	if err := m.store.PutCacheEntry(ctx, entry); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Get returns the payload stored under key, or (nil, false, nil) when the
// key is absent or expired. An expired entry is deleted on the spot. The
// TTL is never refreshed by a read.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := m.store.GetCacheEntry(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	if entry == nil {
		return nil, false, nil
	}

	if entry.ExpiresAt != nil && m.now().After(*entry.ExpiresAt) {
		if err := m.store.DeleteCacheEntry(ctx, key); err != nil {
			return nil, false, fmt.Errorf("cache expire: %w", err)
		}
		return nil, false, nil
	}

	return entry.Payload, true, nil
}

// Invalidate removes an entry regardless of its expiry. Idempotent.
func (m *Manager) Invalidate(ctx context.Context, key string) error {
	if err := m.store.DeleteCacheEntry(ctx, key); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// ClearExpired sweeps out every entry past its expiry and returns how many
// were removed. Safe to call at any time, idempotent.
func (m *Manager) ClearExpired(ctx context.Context) (int, error) {
	n, err := m.store.DeleteExpiredCacheEntries(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}
	return n, nil
}

// RunSweeper periodically calls ClearExpired until ctx is cancelled.
// Correctness never depends on this running; Get alone upholds the expiry
// invariant.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			n, err := m.ClearExpired(ctx)
			if err != nil {
				m.logger.Printf("Sweep error: %v", err)
				continue
			}
			if n > 0 {
				m.logger.Printf("Swept %d expired entries", n)
			}
		}
	}
}
