package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	EventStoreURL     string        `env:"EVENT_STORE_URL" envDefault:"http://localhost:3002"`
	RequestTimeout    time.Duration `env:"EVENT_STORE_TIMEOUT" envDefault:"5s"`
	RetryAttempts     uint          `env:"EVENT_STORE_RETRY_ATTEMPTS" envDefault:"3"`
	RetryDelay        time.Duration `env:"EVENT_STORE_RETRY_DELAY" envDefault:"100ms"`
	SnapshotFrequency int           `env:"SNAPSHOT_FREQUENCY" envDefault:"10"`
	CacheTTL          time.Duration `env:"CACHE_TTL" envDefault:"30s"`
	ServiceName       string        `env:"SERVICE_NAME" envDefault:"post-service"`
	ListenAddr        string        `env:"LISTEN_ADDR" envDefault:":5001"`

	// Optional collaborators: postgres backs the feed projection, redis
	// carries cache invalidation broadcasts. Either may be left unset.
	PGConnString        string `env:"PG_CONNSTRING"`
	RedisAddr           string `env:"REDIS_ADDR"`
	RedisPassword       string `env:"REDIS_PASSWORD"`
	InvalidationChannel string `env:"CACHE_INVALIDATION_CHANNEL" envDefault:"post-cache-invalidation"`

	ProjectionBatchSize int `env:"PROJECTION_BATCH_SIZE" envDefault:"100"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
