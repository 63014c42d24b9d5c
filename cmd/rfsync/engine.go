package main

import (
	"context"
	"fmt"

	"github.com/reviewflow/offline/internal/auth"
	"github.com/reviewflow/offline/internal/cache"
	"github.com/reviewflow/offline/internal/config"
	"github.com/reviewflow/offline/internal/netmon"
	"github.com/reviewflow/offline/internal/queue"
	"github.com/reviewflow/offline/internal/reviews"
	"github.com/reviewflow/offline/internal/store"
	"github.com/reviewflow/offline/internal/syncer"
)

// engine bundles the wired components a command works with. Everything
// hangs off one injected store handle; there are no process-wide
// singletons, so tests and commands alike can build isolated engines.
type engine struct {
	cfg     *config.Config
	store   *store.Store
	cache   *cache.Manager
	queue   *queue.Queue
	tokens  *auth.Client
	monitor *netmon.Probe
	coord   *syncer.Coordinator
	mirror  *reviews.Mirror
}

// openEngine opens the device store and wires every component. The
// caller must Close when done.
func openEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		// Storage being unavailable is fatal for the session.
		return nil, fmt.Errorf("open device store: %w", err)
	}

	if err := s.InitSchema(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	e := &engine{cfg: cfg, store: s}

	e.cache = cache.New(s, newLogger(cfg, "[cache] "))
	e.tokens = auth.NewClient(s, auth.ClientConfig{
		RefreshURL: cfg.AuthRefreshURL,
		Logger:     newLogger(cfg, "[auth] "),
	})

	e.monitor = netmon.NewProbe(netmon.ProbeConfig{
		URL:      cfg.ProbeURL,
		Interval: cfg.ProbeInterval,
		Logger:   newLogger(cfg, "[netmon] "),
	})

	e.queue = queue.New(s, queue.Config{
		MaxRetries: cfg.MaxRetries,
		Logger:     newLogger(cfg, "[queue] "),
		OnDrop: func(ev queue.DropEvent) {
			// Terminal drops must reach the user; the CLI surfaces them
			// on stderr, the app layer shows a notification.
			endpoint := "?"
			if ev.Action != nil {
				endpoint = ev.Action.Endpoint
			}
			fmt.Fprintf(rootCmd.ErrOrStderr(),
				"Warning: change to %s could not be synced and was discarded after %d attempts\n",
				endpoint, ev.RetryCount)
		},
		OnEnqueue: func() {
			if e.monitor.IsOnline() {
				e.coord.TriggerDrain()
			}
		},
	})

	e.coord = syncer.New(e.queue, e.monitor, e.tokens, syncer.Config{
		BaseURL:        cfg.APIBaseURL,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         newLogger(cfg, "[sync] "),
	})

	e.mirror = reviews.NewMirror(s, e.queue, e.tokens, reviews.MirrorConfig{
		CollectionURL: cfg.APIBaseURL + "/api/reviews",
		Logger:        newLogger(cfg, "[reviews] "),
	})

	return e, nil
}

// Close releases the store.
func (e *engine) Close() error {
	return e.store.Close()
}
