// Package auth supplies the bearer credential the sync engine attaches to
// remote requests.
//
// The engine itself never decides to log the user out: a failed refresh is
// reported as an error and the affected action follows the normal retry
// path. Re-authentication is the application layer's call.
package auth

import (
	"context"
	"errors"
)

// ErrNoToken is returned when no credential is available at all.
var ErrNoToken = errors.New("auth: no token available")

// ErrRefreshFailed is returned when the provider could not mint a
// replacement credential.
var ErrRefreshFailed = errors.New("auth: token refresh failed")

// TokenSource provides the current bearer credential and a way to replace
// it after the remote rejects it.
//
// Refresh is called at most once per rejected request; the source never
// retries internally, so a broken provider cannot cause a refresh storm.
type TokenSource interface {
	// Token returns the current bearer token.
	Token(ctx context.Context) (string, error)

	// Refresh obtains a replacement token and makes it current.
	Refresh(ctx context.Context) (string, error)
}

// Static is a fixed-token source for tests and tooling. Refresh rotates to
// Next if set, else fails.
type Static struct {
	Current string
	Next    string

	// Refreshes counts Refresh calls, for test assertions.
	Refreshes int
}

// Token implements TokenSource.
func (s *Static) Token(ctx context.Context) (string, error) {
	if s.Current == "" {
		return "", ErrNoToken
	}
	return s.Current, nil
}

// Refresh implements TokenSource.
func (s *Static) Refresh(ctx context.Context) (string, error) {
	s.Refreshes++
	if s.Next == "" {
		return "", ErrRefreshFailed
	}
	s.Current, s.Next = s.Next, ""
	return s.Current, nil
}
