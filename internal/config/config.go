// Package config loads service configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every runtime setting for the ledger engine.
type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	// DatabaseURL selects PostgreSQL; empty falls back to the in-memory
	// store (dev only, nothing persists).
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// RedisURL enables the snapshot read-through cache.
	RedisURL string        `envconfig:"REDIS_URL"`
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"30s"`

	// NatsURL enables publishing ledger events to JetStream.
	NatsURL string `envconfig:"NATS_URL"`

	// AdminIDs is the comma-separated allow-list of admin identities.
	AdminIDs []string `envconfig:"ADMIN_IDS"`

	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

// Load reads configuration from the environment. A missing .env file is
// fine; explicit environment variables always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if cfg.RequestTimeout < time.Second {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be at least 1s, got %s", cfg.RequestTimeout)
	}
	return &cfg, nil
}
