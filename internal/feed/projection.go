package feed

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"postsvc/internal/es"
	"postsvc/internal/post"
)

// Projection folds the global post event log into a flat feed table so
// list queries never replay streams.
type Projection struct {
	pool *pgxpool.Pool
}

func NewProjection(pool *pgxpool.Pool) *Projection {
	return &Projection{pool: pool}
}

func (p *Projection) Name() string {
	return "feed"
}

func (p *Projection) SubscribedEvents() []es.EventType {
	return []es.EventType{
		post.PostCreated,
		post.PostUpdated,
		post.PostVoted,
		post.CommentAdded,
		post.PostModerated,
		post.PostDeleted,
	}
}

func (p *Projection) ApplyMigration(ctx context.Context) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func(ctx context.Context) {
		_ = tx.Rollback(ctx)
	}(ctx)

	if _, err := tx.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS feed;`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS feed.posts (
			post_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			author_id TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			upvotes INTEGER NOT NULL DEFAULT 0,
			downvotes INTEGER NOT NULL DEFAULT 0,
			vote_count INTEGER NOT NULL DEFAULT 0,
			comment_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE
		);
	`); err != nil {
		return fmt.Errorf("create posts table: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS feed.last_processed_position (
			position BIGINT NOT NULL,
			CONSTRAINT single_row CHECK (position >= 0)
		);

		-- Ensure only one row exists
		INSERT INTO feed.last_processed_position (position)
		SELECT 0
		WHERE NOT EXISTS (
			SELECT 1 FROM feed.last_processed_position
		);
	`); err != nil {
		return fmt.Errorf("create last_processed_position table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (p *Projection) LatestPosition(ctx context.Context) (int64, error) {
	var position int64
	err := p.pool.QueryRow(ctx, `
		SELECT position
		FROM feed.last_processed_position
		LIMIT 1
	`).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("read latest position: %w", err)
	}
	return position, nil
}

func (p *Projection) Apply(ctx context.Context, events ...es.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func(ctx context.Context) {
		_ = tx.Rollback(ctx)
	}(ctx)

	maxPosition := int64(0)

	for _, event := range events {
		if event.Metadata.Position > maxPosition {
			maxPosition = event.Metadata.Position
		}

		switch event.Type {
		case post.PostCreated:
			if err := p.handlePostCreated(ctx, tx, event); err != nil {
				return fmt.Errorf("handle PostCreated: %w", err)
			}

		case post.PostUpdated:
			if err := p.handlePostUpdated(ctx, tx, event); err != nil {
				return fmt.Errorf("handle PostUpdated: %w", err)
			}

		case post.PostVoted:
			if err := p.handlePostVoted(ctx, tx, event); err != nil {
				return fmt.Errorf("handle PostVoted: %w", err)
			}

		case post.CommentAdded:
			if err := p.handleCommentAdded(ctx, tx, event); err != nil {
				return fmt.Errorf("handle CommentAdded: %w", err)
			}

		case post.PostModerated:
			if err := p.handlePostModerated(ctx, tx, event); err != nil {
				return fmt.Errorf("handle PostModerated: %w", err)
			}

		case post.PostDeleted:
			if err := p.handlePostDeleted(ctx, tx, event); err != nil {
				return fmt.Errorf("handle PostDeleted: %w", err)
			}
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE feed.last_processed_position
		SET position = $1
	`, maxPosition)
	if err != nil {
		return fmt.Errorf("update last_processed_position: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (p *Projection) handlePostCreated(ctx context.Context, tx pgx.Tx, event es.Event) error {
	var data post.PostCreatedData
	if err := decode(event.Data, &data); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO feed.posts (post_id, title, author_id, category, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (post_id) DO UPDATE SET
			title = EXCLUDED.title,
			author_id = EXCLUDED.author_id,
			category = EXCLUDED.category,
			status = EXCLUDED.status,
			created_at = EXCLUDED.created_at
	`, data.PostID, data.Title, data.AuthorID, data.Category, string(post.StatusActive), data.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (p *Projection) handlePostUpdated(ctx context.Context, tx pgx.Tx, event es.Event) error {
	var data post.PostUpdatedData
	if err := decode(event.Data, &data); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		UPDATE feed.posts
		SET title = $2, category = $3
		WHERE post_id = $1
	`, event.Metadata.AggregateID, data.Title, data.Category)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

func (p *Projection) handlePostVoted(ctx context.Context, tx pgx.Tx, event es.Event) error {
	var data post.PostVotedData
	if err := decode(event.Data, &data); err != nil {
		return err
	}

	up, down := 0, 0
	switch data.VoteType {
	case post.VoteUp:
		up = 1
	case post.VoteDown:
		down = 1
	default:
		return fmt.Errorf("invalid vote type %q", data.VoteType)
	}

	_, err := tx.Exec(ctx, `
		UPDATE feed.posts
		SET upvotes = upvotes + $2,
			downvotes = downvotes + $3,
			vote_count = vote_count + $2 - $3
		WHERE post_id = $1
	`, event.Metadata.AggregateID, up, down)
	if err != nil {
		return fmt.Errorf("update vote tallies: %w", err)
	}
	return nil
}

func (p *Projection) handleCommentAdded(ctx context.Context, tx pgx.Tx, event es.Event) error {
	_, err := tx.Exec(ctx, `
		UPDATE feed.posts
		SET comment_count = comment_count + 1
		WHERE post_id = $1
	`, event.Metadata.AggregateID)
	if err != nil {
		return fmt.Errorf("update comment count: %w", err)
	}
	return nil
}

func (p *Projection) handlePostModerated(ctx context.Context, tx pgx.Tx, event es.Event) error {
	var data post.PostModeratedData
	if err := decode(event.Data, &data); err != nil {
		return err
	}

	var status post.Status
	switch data.Action {
	case post.ActionApprove:
		status = post.StatusActive
	case post.ActionReject:
		status = post.StatusRejected
	case post.ActionFlag:
		status = post.StatusFlagged
	case post.ActionRemove:
		status = post.StatusRemoved
	default:
		return fmt.Errorf("invalid moderation action %q", data.Action)
	}

	_, err := tx.Exec(ctx, `
		UPDATE feed.posts
		SET status = $2
		WHERE post_id = $1
	`, event.Metadata.AggregateID, string(status))
	if err != nil {
		return fmt.Errorf("update post status: %w", err)
	}
	return nil
}

func (p *Projection) handlePostDeleted(ctx context.Context, tx pgx.Tx, event es.Event) error {
	_, err := tx.Exec(ctx, `
		UPDATE feed.posts
		SET is_deleted = TRUE, status = $2
		WHERE post_id = $1
	`, event.Metadata.AggregateID, string(post.StatusDeleted))
	if err != nil {
		return fmt.Errorf("mark post deleted: %w", err)
	}
	return nil
}
