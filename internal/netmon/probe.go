package netmon

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// DefaultProbeInterval is how often the probe monitor checks reachability.
const DefaultProbeInterval = 15 * time.Second

// DefaultProbeTimeout bounds a single reachability check.
const DefaultProbeTimeout = 5 * time.Second

// ProbeConfig configures a Probe monitor.
type ProbeConfig struct {
	// URL is the endpoint probed for reachability, typically the API
	// host's health endpoint.
	URL string

	// Interval between probes; 0 means DefaultProbeInterval.
	Interval time.Duration

	// Timeout bounds each probe request; 0 means DefaultProbeTimeout.
	Timeout time.Duration

	// Client is the HTTP client used for probes; nil means a dedicated
	// client with the configured timeout.
	Client *http.Client

	// Logger for probe activity.
	Logger *log.Logger
}

// Probe is a Monitor that derives reachability from periodic HTTP checks
// against a configured URL. Any response at all counts as online; the
// remote being unhappy (5xx) still proves the network path works.
type Probe struct {
	notifier

	config ProbeConfig
	client *http.Client
	logger *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProbe creates a probe monitor. Call Start to begin probing.
func NewProbe(config ProbeConfig) *Probe {
	if config.Interval <= 0 {
		config.Interval = DefaultProbeInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultProbeTimeout
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Probe{
		config: config,
		client: client,
		logger: config.Logger,
	}
}

// IsOnline implements Monitor.
func (p *Probe) IsOnline() bool { return p.isOnline() }

// Subscribe implements Monitor.
func (p *Probe) Subscribe(fn func(online bool)) func() { return p.subscribe(fn) }

// Start probes immediately, then on every interval tick, until ctx is
// cancelled or Stop is called.
func (p *Probe) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.check(ctx)

		ticker := time.NewTicker(p.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.check(ctx)
			}
		}
	}()
}

// Stop halts probing and waits for the probe goroutine to exit.
func (p *Probe) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// check performs one reachability probe and records the observation.
func (p *Probe) check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.config.URL, nil)
	if err != nil {
		p.logger.Printf("Probe request error: %v", err)
		p.set(false)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.set(false)
		return
	}
	_ = resp.Body.Close()

	p.set(true)
}
