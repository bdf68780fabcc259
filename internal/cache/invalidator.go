package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient creates a Redis client and verifies connectivity before
// returning it.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return client, nil
}

// Invalidator broadcasts aggregate IDs over Redis pub/sub after every
// successful save so other service instances can evict their local cache
// entries. Messages from this instance are ignored on receipt: the sender
// just refreshed its own entry.
type Invalidator struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     *slog.Logger
}

func NewInvalidator(client *redis.Client, channel string) *Invalidator {
	return &Invalidator{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		logger:     slog.Default().With("component", "cache-invalidator"),
	}
}

func (i *Invalidator) Publish(ctx context.Context, aggregateID string) error {
	payload := i.instanceID + " " + aggregateID
	return i.client.Publish(ctx, i.channel, payload).Err()
}

// Listen blocks until the context is cancelled, calling evict for every
// aggregate ID another instance saved.
func (i *Invalidator) Listen(ctx context.Context, evict func(aggregateID string)) {
	sub := i.client.Subscribe(ctx, i.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			sender, aggregateID, found := strings.Cut(msg.Payload, " ")
			if !found {
				i.logger.Warn("malformed invalidation message", "payload", msg.Payload)
				continue
			}
			if sender == i.instanceID {
				continue
			}
			invalidationsReceived.Inc()
			evict(aggregateID)
		}
	}
}
