package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Review is one row of the mirrored remote review collection. The mirror
// is a denormalized snapshot: rows are replaced wholesale on each
// successful fetch, never merged field-by-field.
type Review struct {
	ID              int64
	Platform        string
	ReviewerName    string
	Rating          int
	Content         string
	Sentiment       string
	ResponseStatus  string
	ReviewDate      *time.Time
	ResponseContent string
	FetchedAt       time.Time
	IsSynced        bool
}

// ReplaceReviews swaps the entire local review snapshot for the given set
// in a single transaction. An empty slice clears the mirror.
func (s *Store) ReplaceReviews(ctx context.Context, reviews []*Review) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reviews`); err != nil {
		return fmt.Errorf("failed to clear review snapshot: %w", err)
	}

	query := `
	INSERT INTO reviews (
		id, platform, reviewer_name, rating, content, sentiment,
		response_status, review_date, response_content, fetched_at, is_synced
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, r := range reviews {
		synced := 0
		if r.IsSynced {
			synced = 1
		}

		_, err := tx.ExecContext(ctx, query,
			r.ID,
			r.Platform,
			r.ReviewerName,
			r.Rating,
			r.Content,
			r.Sentiment,
			r.ResponseStatus,
			timeToNullString(r.ReviewDate),
			r.ResponseContent,
			r.FetchedAt.Format(time.RFC3339Nano),
			synced,
		)
		if err != nil {
			return fmt.Errorf("failed to insert review %d: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review snapshot: %w", err)
	}

	return nil
}

// ListReviews returns the locally mirrored reviews, newest review first.
func (s *Store) ListReviews(ctx context.Context) ([]*Review, error) {
	query := `
	SELECT id, platform, reviewer_name, rating, content, sentiment,
	       response_status, review_date, response_content, fetched_at, is_synced
	FROM reviews
	ORDER BY review_date DESC, id DESC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*Review
	for rows.Next() {
		var r Review
		var reviewDate sql.NullString
		var fetchedAt string
		var synced int

		err := rows.Scan(
			&r.ID,
			&r.Platform,
			&r.ReviewerName,
			&r.Rating,
			&r.Content,
			&r.Sentiment,
			&r.ResponseStatus,
			&reviewDate,
			&r.ResponseContent,
			&fetchedAt,
			&synced,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}

		r.ReviewDate = nullStringToTime(reviewDate)
		if t, err := time.Parse(time.RFC3339Nano, fetchedAt); err == nil {
			r.FetchedAt = t
		}
		r.IsSynced = synced != 0

		reviews = append(reviews, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}

	return reviews, nil
}

// CountReviews returns the number of mirrored reviews.
func (s *Store) CountReviews(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return count, nil
}
