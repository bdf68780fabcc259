package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"postsvc/internal"
	"postsvc/internal/config"
	"postsvc/internal/es"
	"postsvc/internal/feed"
	"postsvc/internal/util"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg := util.Must(config.Load())

	pool := util.Must(internal.DBPool(ctx, cfg.PGConnString))
	defer pool.Close()

	client := es.NewClient(es.ClientConfig{
		BaseURL:       cfg.EventStoreURL,
		Timeout:       cfg.RequestTimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
		ServiceName:   cfg.ServiceName + "-projections",
	})

	projection := feed.NewProjection(pool)
	subscription := es.NewSubscription(client, cfg.ProjectionBatchSize, "post-")

	if err := subscription.Listen(ctx, projection); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("unable to listen to event stream: ", err)
	}
}
