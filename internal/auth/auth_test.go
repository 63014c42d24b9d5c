package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/reviewflow/offline/internal/store"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	return s
}

// signedToken mints an HS256 token with the given expiry.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestStaticSource(t *testing.T) {
	s := &Static{Current: "tok-1", Next: "tok-2"}
	ctx := context.Background()

	got, err := s.Token(ctx)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if got != "tok-1" {
		t.Errorf("expected tok-1, got %s", got)
	}

	got, err = s.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got != "tok-2" {
		t.Errorf("expected tok-2, got %s", got)
	}
	if s.Refreshes != 1 {
		t.Errorf("expected 1 refresh, got %d", s.Refreshes)
	}

	// No next token left: refresh must fail, not loop.
	if _, err := s.Refresh(ctx); err == nil {
		t.Error("expected refresh failure with no next token")
	}
}

func TestClientTokenPersistsAcrossInstances(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	c1 := NewClient(s, ClientConfig{})
	token := signedToken(t, time.Now().Add(time.Hour))
	if err := c1.SetToken(ctx, token); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}

	// A new client over the same store sees the persisted token.
	c2 := NewClient(s, ClientConfig{})
	got, err := c2.Token(ctx)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if got != token {
		t.Error("persisted token not loaded by fresh client")
	}
}

func TestClientRejectsExpiredToken(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	c := NewClient(s, ClientConfig{})
	if err := c.SetToken(ctx, signedToken(t, time.Now().Add(-time.Minute))); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}

	if _, err := c.Token(ctx); err == nil {
		t.Error("expected ErrNoToken for locally expired credential")
	}
}

func TestClientOpaqueTokenHandedOut(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	c := NewClient(s, ClientConfig{})
	if err := c.SetToken(ctx, "not-a-jwt"); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}

	got, err := c.Token(ctx)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if got != "not-a-jwt" {
		t.Errorf("opaque token should pass through, got %s", got)
	}
}

func TestClientRefresh(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	replacement := signedToken(t, time.Now().Add(time.Hour))
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": replacement})
	}))
	defer srv.Close()

	c := NewClient(s, ClientConfig{RefreshURL: srv.URL})
	if err := c.SetToken(ctx, signedToken(t, time.Now().Add(time.Minute))); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}

	got, err := c.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got != replacement {
		t.Error("Refresh did not return the replacement token")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 refresh call, got %d", calls)
	}

	// The replacement is now the current, persisted token.
	current, err := c.Token(ctx)
	if err != nil {
		t.Fatalf("Token after refresh failed: %v", err)
	}
	if current != replacement {
		t.Error("refreshed token not current")
	}
}

func TestClientRefreshFailure(t *testing.T) {
	s := setupStore(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(s, ClientConfig{RefreshURL: srv.URL})
	if _, err := c.Refresh(context.Background()); err == nil {
		t.Error("expected refresh failure on 401")
	}
}
