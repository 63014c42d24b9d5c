package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/reviewflow/offline/internal/store"
)

// tokenPreferenceKey is where the current bearer token is persisted so it
// survives process restarts.
const tokenPreferenceKey = "auth.token"

// ClientConfig configures an HTTP-backed token source.
type ClientConfig struct {
	// RefreshURL is POSTed to mint a replacement token. The request body
	// carries the current (rejected) token; the response is expected to be
	// {"token": "..."} with a 2xx status.
	RefreshURL string

	// HTTPClient used for refresh calls; nil means a 30s-timeout client.
	HTTPClient *http.Client

	// Logger for refresh activity.
	Logger *log.Logger
}

// Client is a TokenSource backed by the remote auth provider, persisting
// the current token in the device store's preferences relation.
type Client struct {
	store  *store.Store
	config ClientConfig
	client *http.Client
	logger *log.Logger

	mu    sync.Mutex
	token string // in-memory copy of the persisted token
}

// NewClient creates a token source over the given store. Any token
// persisted by a previous session is picked up lazily on first use.
func NewClient(s *store.Store, config ClientConfig) *Client {
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[auth] ", log.LstdFlags)
	}
	return &Client{
		store:  s,
		config: config,
		client: client,
		logger: logger,
	}
}

// SetToken stores a freshly issued token, e.g. after an interactive login
// handled elsewhere in the application.
func (c *Client) SetToken(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.SetPreference(ctx, tokenPreferenceKey, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	c.token = token
	return nil
}

// Token implements TokenSource. A token whose JWT exp claim is already in
// the past is reported as ErrNoToken so the caller can refresh before
// wasting a network round trip; tokens without a parseable exp are handed
// out as-is and left for the remote to judge.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" {
		stored, ok, err := c.store.GetPreference(ctx, tokenPreferenceKey)
		if err != nil {
			return "", fmt.Errorf("load token: %w", err)
		}
		if !ok {
			return "", ErrNoToken
		}
		c.token = stored
	}

	if expired(c.token, time.Now()) {
		return "", ErrNoToken
	}

	return c.token, nil
}

// Refresh implements TokenSource: one POST to the refresh endpoint, no
// internal retries.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	current := c.token
	c.mu.Unlock()

	body, err := json.Marshal(map[string]string{"token": current})
	if err != nil {
		return "", fmt.Errorf("encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.RefreshURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrRefreshFailed, err)
	}
	if payload.Token == "" {
		return "", fmt.Errorf("%w: empty token in response", ErrRefreshFailed)
	}

	if err := c.SetToken(ctx, payload.Token); err != nil {
		return "", err
	}

	c.logger.Printf("Token refreshed")
	return payload.Token, nil
}

// expired reports whether the token carries an exp claim in the past. The
// signature is NOT verified here; the device has no business holding the
// signing key, and the remote re-validates every request anyway.
func expired(token string, now time.Time) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
