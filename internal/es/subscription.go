package es

import (
	"context"
	"log/slog"
	"time"
)

// Subscription feeds a projection from the store's global event log,
// batch by batch, resuming from the projection's own checkpoint.
type Subscription struct {
	client       *Client
	batchSize    int
	streamPrefix string
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewSubscription(client *Client, batchSize int, streamPrefix string) *Subscription {
	if batchSize <= 0 || batchSize > MaxReadCount {
		batchSize = 100
	}
	return &Subscription{
		client:       client,
		batchSize:    batchSize,
		streamPrefix: streamPrefix,
		pollInterval: time.Second,
		logger:       slog.Default().With("component", "subscription"),
	}
}

// CatchUp applies every log entry after the projection's checkpoint and
// returns once the head of the log is reached.
func (s *Subscription) CatchUp(ctx context.Context, projection ProjectionWriter) error {
	if err := projection.ApplyMigration(ctx); err != nil {
		return err
	}

	lastPosition, err := projection.LatestPosition(ctx)
	if err != nil {
		return err
	}

	for {
		events, err := s.client.ReadAll(ctx, ReadAllOptions{
			FromPosition: lastPosition + 1,
			MaxCount:     s.batchSize,
			StreamPrefix: s.streamPrefix,
		})
		if err != nil {
			return err
		}

		if len(events) == 0 {
			return nil
		}

		// The projection sees the whole batch so its checkpoint can
		// advance past event types it does not handle.
		if err := projection.Apply(ctx, events...); err != nil {
			return err
		}

		lastPosition = events[len(events)-1].Metadata.Position
	}
}

// Listen runs CatchUp in a poll loop until the context is cancelled.
func (s *Subscription) Listen(ctx context.Context, projection ProjectionWriter) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if err := s.CatchUp(ctx, projection); err != nil {
			s.logger.Error("projection catch-up failed", "projection", projection.Name(), "error", err)
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
