// Package reviews maintains the local mirror of the remote review
// collection and the offline write path for review responses.
//
// The mirror is replaced wholesale on each successful fetch; it is a
// snapshot for offline reading, not a merge target. Writes never touch
// the remote directly: responding to a review enqueues a mutation and
// returns immediately.
package reviews

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/reviewflow/offline/internal/auth"
	"github.com/reviewflow/offline/internal/queue"
	"github.com/reviewflow/offline/internal/store"
)

// Review is the client-side view of a remote review, matching the API's
// JSON shape.
type Review struct {
	ID              int64  `json:"id"`
	Platform        string `json:"platform"`
	ReviewerName    string `json:"reviewer_name"`
	Rating          int    `json:"rating"`
	Content         string `json:"content"`
	Sentiment       string `json:"sentiment"`
	ResponseStatus  string `json:"response_status"`
	ReviewDate      string `json:"review_date"`
	ResponseContent string `json:"response_content"`
}

// MirrorConfig configures a reviews mirror.
type MirrorConfig struct {
	// CollectionURL is the remote reviews collection endpoint.
	CollectionURL string

	// HTTPClient used for fetches; nil means a 30s-timeout client.
	HTTPClient *http.Client

	// Logger for mirror activity.
	Logger *log.Logger
}

// Mirror is the local snapshot of the remote review collection.
type Mirror struct {
	store  *store.Store
	queue  *queue.Queue
	tokens auth.TokenSource
	config MirrorConfig
	client *http.Client
	logger *log.Logger

	// now is the clock; swapped out in tests.
	now func() time.Time
}

// NewMirror creates a mirror over the given store and queue.
func NewMirror(s *store.Store, q *queue.Queue, tokens auth.TokenSource, config MirrorConfig) *Mirror {
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[reviews] ", log.LstdFlags)
	}
	return &Mirror{
		store:  s,
		queue:  q,
		tokens: tokens,
		config: config,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Refresh fetches the remote collection and replaces the local snapshot
// wholesale. The previous snapshot survives any fetch failure untouched.
func (m *Mirror) Refresh(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.config.CollectionURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build fetch request: %w", err)
	}
	if token, err := m.tokens.Token(ctx); err == nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch reviews: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("fetch reviews: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Reviews []Review `json:"reviews"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode reviews: %w", err)
	}

	now := m.now().UTC()
	rows := make([]*store.Review, 0, len(payload.Reviews))
	for _, r := range payload.Reviews {
		row := &store.Review{
			ID:              r.ID,
			Platform:        r.Platform,
			ReviewerName:    r.ReviewerName,
			Rating:          r.Rating,
			Content:         r.Content,
			Sentiment:       r.Sentiment,
			ResponseStatus:  r.ResponseStatus,
			ResponseContent: r.ResponseContent,
			FetchedAt:       now,
			IsSynced:        true,
		}
		if t, err := time.Parse(time.RFC3339, r.ReviewDate); err == nil {
			row.ReviewDate = &t
		}
		rows = append(rows, row)
	}

	if err := m.store.ReplaceReviews(ctx, rows); err != nil {
		return 0, fmt.Errorf("replace snapshot: %w", err)
	}

	m.logger.Printf("Mirrored %d reviews", len(rows))
	return len(rows), nil
}

// List returns the locally mirrored reviews, usable fully offline.
func (m *Mirror) List(ctx context.Context) ([]*store.Review, error) {
	return m.store.ListReviews(ctx)
}

// Count returns the number of mirrored reviews.
func (m *Mirror) Count(ctx context.Context) (int, error) {
	return m.store.CountReviews(ctx)
}

// QueueResponse records a response to a review as a pending remote
// mutation and returns the queued action id. It never blocks on the
// network; delivery is the sync coordinator's job.
func (m *Mirror) QueueResponse(ctx context.Context, reviewID int64, response string) (string, error) {
	payload, err := json.Marshal(map[string]string{"response_content": response})
	if err != nil {
		return "", fmt.Errorf("encode response: %w", err)
	}

	endpoint := fmt.Sprintf("/api/reviews/%d/response", reviewID)
	id, err := m.queue.Enqueue(ctx, queue.Update, endpoint, payload)
	if err != nil {
		return "", fmt.Errorf("queue response: %w", err)
	}

	return id, nil
}
