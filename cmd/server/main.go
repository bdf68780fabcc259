package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"postsvc/internal"
	"postsvc/internal/cache"
	"postsvc/internal/config"
	"postsvc/internal/es"
	"postsvc/internal/feed"
	"postsvc/internal/post"
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

	client := es.NewClient(es.ClientConfig{
		BaseURL:       cfg.EventStoreURL,
		Timeout:       cfg.RequestTimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
		ServiceName:   cfg.ServiceName,
	})

	var repoOptions []post.RepositoryOption
	if cfg.RedisAddr != "" {
		redisClient := util.Must(cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}))
		defer redisClient.Close()
		repoOptions = append(repoOptions, post.WithInvalidator(
			cache.NewInvalidator(redisClient, cfg.InvalidationChannel),
		))
	}

	repository := post.NewRepository(client, post.RepositoryConfig{
		SnapshotFrequency: cfg.SnapshotFrequency,
		CacheTTL:          cfg.CacheTTL,
	}, repoOptions...)

	go repository.ListenInvalidations(ctx)

	var feedRepository feed.FeedRepository
	if cfg.PGConnString != "" {
		pool := util.Must(internal.DBPool(ctx, cfg.PGConnString))
		defer pool.Close()
		feedRepository = feed.NewPGFeedRepository(pool)
	}

	app := internal.NewAPI(repository, feedRepository)

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			slog.Error("server stopped", "error", err)
			stop()
		}
	}()

	slog.Info("application started", "addr", cfg.ListenAddr)

	<-ctx.Done()
	slog.Info("received shutdown signal, exiting")

	util.MustSucceed(app.ShutdownWithTimeout(5 * time.Second))
}
