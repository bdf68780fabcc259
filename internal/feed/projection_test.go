package feed_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postsvc/internal/es"
	"postsvc/internal/feed"
	"postsvc/internal/post"
)

type testContext struct {
	pool       *pgxpool.Pool
	projection *feed.Projection
	ctx        context.Context
}

func setupTestContext(t *testing.T) *testContext {
	t.Helper()

	connStr := os.Getenv("PG_TEST_CONNSTRING")
	if connStr == "" {
		t.Skip("PG_TEST_CONNSTRING not set")
	}

	ctx := t.Context()

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	// Isolate each run in its own schema via a fresh database.
	defaultConn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = defaultConn.Exec(ctx, "DROP SCHEMA IF EXISTS feed CASCADE")
	defaultConn.Release()
	require.NoError(t, err)

	projection := feed.NewProjection(pool)
	require.NoError(t, projection.ApplyMigration(ctx))

	return &testContext{
		pool:       pool,
		projection: projection,
		ctx:        ctx,
	}
}

func TestFeedProjection(t *testing.T) {
	t.Run("post lifecycle lands in the feed table", func(t *testing.T) {
		tc := setupTestContext(t)

		events := []es.Event{
			createdEvent("1001", 1, "First post"),
			votedEvent("1001", 2, post.VoteUp),
			votedEvent("1001", 3, post.VoteUp),
			votedEvent("1001", 4, post.VoteDown),
			commentEvent("1001", 5),
		}

		require.NoError(t, tc.projection.Apply(tc.ctx, events...))

		var title, status string
		var up, down, voteCount, comments int
		err := tc.pool.QueryRow(tc.ctx, `
			SELECT title, status, upvotes, downvotes, vote_count, comment_count
			FROM feed.posts
			WHERE post_id = $1
		`, "1001").Scan(&title, &status, &up, &down, &voteCount, &comments)
		require.NoError(t, err)

		assert.Equal(t, "First post", title)
		assert.Equal(t, "active", status)
		assert.Equal(t, 2, up)
		assert.Equal(t, 1, down)
		assert.Equal(t, 1, voteCount)
		assert.Equal(t, 1, comments)

		position, err := tc.projection.LatestPosition(tc.ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(5), position)
	})

	t.Run("moderation and deletion update status", func(t *testing.T) {
		tc := setupTestContext(t)

		require.NoError(t, tc.projection.Apply(tc.ctx,
			createdEvent("1001", 1, "First post"),
			moderatedEvent("1001", 2, post.ActionFlag),
		))

		var status string
		err := tc.pool.QueryRow(tc.ctx,
			`SELECT status FROM feed.posts WHERE post_id = $1`, "1001").Scan(&status)
		require.NoError(t, err)
		assert.Equal(t, "flagged", status)

		require.NoError(t, tc.projection.Apply(tc.ctx, deletedEvent("1001", 3)))

		var isDeleted bool
		err = tc.pool.QueryRow(tc.ctx,
			`SELECT is_deleted FROM feed.posts WHERE post_id = $1`, "1001").Scan(&isDeleted)
		require.NoError(t, err)
		assert.True(t, isDeleted)
	})

	t.Run("feed serves active posts best voted first", func(t *testing.T) {
		tc := setupTestContext(t)

		require.NoError(t, tc.projection.Apply(tc.ctx,
			createdEvent("1001", 1, "Quiet post"),
			createdEvent("1002", 2, "Popular post"),
			votedEvent("1002", 3, post.VoteUp),
			votedEvent("1002", 4, post.VoteUp),
			createdEvent("1003", 5, "Removed post"),
			moderatedEvent("1003", 6, post.ActionRemove),
		))

		repo := feed.NewPGFeedRepository(tc.pool)
		posts, err := repo.GetFeed(tc.ctx, 10)
		require.NoError(t, err)

		require.Len(t, posts, 2)
		assert.Equal(t, "Popular post", posts[0].Title)
		assert.Equal(t, "Quiet post", posts[1].Title)
	})
}

var eventClock = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func meta(postID string, position int64) es.Metadata {
	return es.Metadata{
		AggregateID:   postID,
		AggregateType: post.PostType,
		Version:       int(position),
		Position:      position,
		Timestamp:     eventClock,
	}
}

func createdEvent(postID string, position int64, title string) es.Event {
	return es.Event{
		Type: post.PostCreated,
		Data: post.PostCreatedData{
			PostID:    postID,
			AuthorID:  "author-1",
			Title:     title,
			Content:   "Body",
			Category:  "general",
			Tags:      []string{},
			CreatedAt: eventClock,
		},
		Metadata: meta(postID, position),
	}
}

func votedEvent(postID string, position int64, voteType post.VoteType) es.Event {
	return es.Event{
		Type: post.PostVoted,
		Data: post.PostVotedData{
			UserID:   fmt.Sprintf("user-%d", position),
			VoteType: voteType,
			VotedAt:  eventClock,
		},
		Metadata: meta(postID, position),
	}
}

func commentEvent(postID string, position int64) es.Event {
	return es.Event{
		Type: post.CommentAdded,
		Data: post.CommentAddedData{
			CommentID: fmt.Sprintf("c-%d", position),
			AuthorID:  "author-2",
			Content:   "nice",
			AddedAt:   eventClock,
		},
		Metadata: meta(postID, position),
	}
}

func moderatedEvent(postID string, position int64, action post.ModerationAction) es.Event {
	return es.Event{
		Type: post.PostModerated,
		Data: post.PostModeratedData{
			ModeratorID: "mod-1",
			Action:      action,
			Reason:      "because",
			ModeratedAt: eventClock,
		},
		Metadata: meta(postID, position),
	}
}

func deletedEvent(postID string, position int64) es.Event {
	return es.Event{
		Type: post.PostDeleted,
		Data: post.PostDeletedData{
			DeletedBy: "author-1",
			Reason:    "cleanup",
			DeletedAt: eventClock,
		},
		Metadata: meta(postID, position),
	}
}
