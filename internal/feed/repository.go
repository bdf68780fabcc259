package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type FeedPost struct {
	PostID       string    `json:"post_id"`
	Title        string    `json:"title"`
	AuthorID     string    `json:"author_id"`
	Category     string    `json:"category"`
	Status       string    `json:"status"`
	Upvotes      int       `json:"upvotes"`
	Downvotes    int       `json:"downvotes"`
	VoteCount    int       `json:"vote_count"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// FeedRepository is the read side of the feed projection.
type FeedRepository interface {
	GetFeed(ctx context.Context, limit int) ([]FeedPost, error)
}

type PGFeedRepository struct {
	pool *pgxpool.Pool
}

func NewPGFeedRepository(pool *pgxpool.Pool) *PGFeedRepository {
	return &PGFeedRepository{
		pool: pool,
	}
}

// GetFeed returns active posts, best-voted first.
func (r *PGFeedRepository) GetFeed(ctx context.Context, limit int) ([]FeedPost, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT post_id, title, author_id, category, status,
			upvotes, downvotes, vote_count, comment_count, created_at
		FROM feed.posts
		WHERE status = 'active' AND is_deleted = FALSE
		ORDER BY vote_count DESC, created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	defer rows.Close()

	results := make([]FeedPost, 0)
	for rows.Next() {
		var fp FeedPost
		if err := rows.Scan(
			&fp.PostID,
			&fp.Title,
			&fp.AuthorID,
			&fp.Category,
			&fp.Status,
			&fp.Upvotes,
			&fp.Downvotes,
			&fp.VoteCount,
			&fp.CommentCount,
			&fp.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, fp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return results, nil
}

// decode converts event data to a typed payload. Payloads arrive as
// map[string]any off the wire, so a JSON round trip is the common path.
func decode(data, out any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("decode event data: %w", err)
	}
	return nil
}
