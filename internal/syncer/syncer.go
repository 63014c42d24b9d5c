// Package syncer drains the mutation queue against the remote API.
//
// The coordinator is a two-state machine, Idle or Draining, with a
// mandatory re-entrancy guard: a trigger that arrives mid-drain coalesces
// into exactly one follow-up pass instead of a concurrent one, so no
// action is ever in flight twice at the same time.
//
// A drain pass walks the queue snapshot strictly in enqueue order and
// never short-circuits: one stuck action must not block unrelated ones.
// Transient delivery failures are fully contained here; the application
// only ever observes storage failures and terminal drops.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/reviewflow/offline/internal/auth"
	"github.com/reviewflow/offline/internal/netmon"
	"github.com/reviewflow/offline/internal/queue"
)

// DefaultRequestTimeout bounds each remote call. A timeout is a transient
// failure, it feeds into the action's retry budget.
const DefaultRequestTimeout = 30 * time.Second

var (
	passesTotal    = metrics.GetOrCreateCounter(`offline_drain_passes_total`)
	deliveredTotal = metrics.GetOrCreateCounter(`offline_actions_delivered_total`)
	retriedTotal   = metrics.GetOrCreateCounter(`offline_actions_retried_total`)
	droppedTotal   = metrics.GetOrCreateCounter(`offline_actions_dropped_total`)
	refreshesTotal = metrics.GetOrCreateCounter(`offline_token_refreshes_total`)
)

// Config holds coordinator settings.
type Config struct {
	// BaseURL is prepended to relative action endpoints.
	BaseURL string

	// RequestTimeout bounds each remote call; 0 means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// HTTPClient used for deliveries; nil means http.DefaultClient (each
	// call is already bounded per-request by RequestTimeout).
	HTTPClient *http.Client

	// Logger for drain activity.
	Logger *log.Logger
}

// Coordinator owns the queue's network side. Only the coordinator mutates
// queued actions; the application layer only enqueues and reads counts.
type Coordinator struct {
	queue   *queue.Queue
	monitor netmon.Monitor
	tokens  auth.TokenSource
	client  *http.Client
	config  Config
	logger  *log.Logger

	mu       sync.Mutex
	draining bool
	rerun    bool // trigger arrived mid-drain; run one more pass
	ctx      context.Context

	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// New creates a coordinator. Call Start to wire it to the connectivity
// monitor and run the startup drain.
func New(q *queue.Queue, monitor netmon.Monitor, tokens auth.TokenSource, config Config) *Coordinator {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	return &Coordinator{
		queue:   q,
		monitor: monitor,
		tokens:  tokens,
		client:  client,
		config:  config,
		logger:  logger,
		ctx:     context.Background(),
	}
}

// Start subscribes to connectivity transitions and, when the process comes
// up online with a non-empty queue, kicks off the startup drain. It
// returns immediately; draining happens in the background until Stop.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.unsubscribe = c.monitor.Subscribe(func(online bool) {
		if online {
			c.logger.Printf("Connectivity restored, draining")
			c.TriggerDrain()
		}
	})

	if c.monitor.IsOnline() {
		count, err := c.queue.Count(ctx)
		if err != nil {
			return fmt.Errorf("startup queue check: %w", err)
		}
		if count > 0 {
			c.logger.Printf("Startup with %d pending actions, draining", count)
			c.TriggerDrain()
		}
	}

	return nil
}

// Stop unsubscribes from the monitor, cancels any in-flight pass, and
// waits for the drain worker to exit.
func (c *Coordinator) Stop() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// TriggerDrain requests a drain pass. Non-blocking: if a pass is already
// running the request coalesces into a single follow-up pass after the
// current one completes.
func (c *Coordinator) TriggerDrain() {
	c.mu.Lock()
	if c.draining {
		c.rerun = true
		c.mu.Unlock()
		return
	}
	c.draining = true
	ctx := c.ctx
	c.mu.Unlock()

	c.wg.Add(1)
	go c.drainLoop(ctx)
}

// Draining reports whether a drain is currently in progress.
func (c *Coordinator) Draining() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draining
}

// DrainNow runs drain passes synchronously until the queue settles,
// including any passes coalesced while it ran. If a background drain is
// already in progress, it coalesces into that drain and returns nil. Used
// by the one-shot CLI sync.
func (c *Coordinator) DrainNow(ctx context.Context) error {
	c.mu.Lock()
	if c.draining {
		c.rerun = true
		c.mu.Unlock()
		return nil
	}
	c.draining = true
	c.mu.Unlock()

	return c.runPasses(ctx)
}

// drainLoop is the background drain worker started by TriggerDrain.
func (c *Coordinator) drainLoop(ctx context.Context) {
	defer c.wg.Done()

	if err := c.runPasses(ctx); err != nil {
		c.logger.Printf("Drain aborted: %v", err)
	}
}

// runPasses executes drain passes until no coalesced trigger is left,
// then releases the Draining state. The caller must hold the Draining
// state on entry.
func (c *Coordinator) runPasses(ctx context.Context) error {
	var firstErr error
	for {
		if err := c.drainPass(ctx); err != nil && firstErr == nil {
			firstErr = err
		}

		c.mu.Lock()
		if c.rerun && ctx.Err() == nil && firstErr == nil {
			c.rerun = false
			c.mu.Unlock()
			continue
		}
		c.draining = false
		c.rerun = false
		c.mu.Unlock()
		return firstErr
	}
}

// drainPass delivers every action in the snapshot taken at pass start. An
// action enqueued mid-pass waits for the coalesced next pass. The returned
// error is a storage failure; delivery failures are handled per-action and
// never abort the pass.
func (c *Coordinator) drainPass(ctx context.Context) error {
	passesTotal.Inc()

	snapshot, err := c.queue.Pending(ctx)
	if err != nil {
		return fmt.Errorf("snapshot queue: %w", err)
	}
	if len(snapshot) == 0 {
		return nil
	}

	c.logger.Printf("Drain pass: %d actions", len(snapshot))

	for _, action := range snapshot {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delivered, err := c.deliver(ctx, action)
		if err != nil {
			return err
		}
		if delivered {
			if err := c.queue.Remove(ctx, action.ID); err != nil {
				return fmt.Errorf("remove delivered action: %w", err)
			}
			deliveredTotal.Inc()
			c.logger.Printf("Delivered %s %s (%s)", action.Kind, action.Endpoint, action.ID)
			continue
		}

		retries, dropped, err := c.queue.BumpRetry(ctx, action.ID)
		if err != nil {
			return fmt.Errorf("bump retry: %w", err)
		}
		if dropped {
			droppedTotal.Inc()
			c.logger.Printf("Gave up on %s after %d attempts", action.ID, retries)
		} else {
			retriedTotal.Inc()
			c.logger.Printf("Delivery of %s failed (attempt %d), will retry", action.ID, retries)
		}
	}

	return nil
}

// deliver makes at most two attempts at one action: the initial call, plus
// a single retry with a fresh credential when the remote answers 401.
// Delivered is true on a 2xx response; a non-nil error is a local storage
// failure and aborts the pass, never a delivery failure.
func (c *Coordinator) deliver(ctx context.Context, action *queue.Action) (delivered bool, _ error) {
	token, err := c.tokens.Token(ctx)
	refreshed := false
	switch {
	case errors.Is(err, auth.ErrNoToken):
		// No usable credential; spend the one refresh up front rather
		// than on a guaranteed 401 round trip.
		refreshed = true
		refreshesTotal.Inc()
		if token, err = c.tokens.Refresh(ctx); err != nil {
			c.logger.Printf("Token refresh failed: %v", err)
			token = ""
		}
	case err != nil:
		// Not a missing credential but a failure to read it from the
		// device store; retrying or refreshing cannot help.
		return false, fmt.Errorf("load token: %w", err)
	}

	status, err := c.send(ctx, action, token)
	if err != nil {
		c.logger.Printf("Request error for %s: %v", action.ID, err)
		return false, nil
	}
	if status >= 200 && status < 300 {
		return true, nil
	}

	if status == http.StatusUnauthorized && !refreshed {
		refreshesTotal.Inc()
		token, err = c.tokens.Refresh(ctx)
		if err != nil {
			// A failed refresh is a plain delivery failure. Logging the
			// user out is the application's decision, not the drain's;
			// forcing it here would discard still-queued unrelated
			// actions.
			c.logger.Printf("Token refresh failed: %v", err)
			return false, nil
		}

		status, err = c.send(ctx, action, token)
		if err != nil {
			c.logger.Printf("Request error for %s after refresh: %v", action.ID, err)
			return false, nil
		}
		return status >= 200 && status < 300, nil
	}

	return false, nil
}

// send performs one HTTP call for the action, bounded by the configured
// timeout.
func (c *Coordinator) send(ctx context.Context, action *queue.Action, token string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var method string
	switch action.Kind {
	case queue.Create:
		method = http.MethodPost
	case queue.Update:
		method = http.MethodPut
	case queue.Delete:
		method = http.MethodDelete
	default:
		return 0, fmt.Errorf("unknown action kind %q", action.Kind)
	}

	var body *bytes.Reader
	if action.Payload != nil {
		body = bytes.NewReader(action.Payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolveURL(action.Endpoint), body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if action.Payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

// resolveURL prepends BaseURL to relative endpoints; absolute endpoints
// pass through untouched.
func (c *Coordinator) resolveURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return strings.TrimSuffix(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(endpoint, "/")
}
