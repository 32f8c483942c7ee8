// Package config loads service configuration from the environment. A
// .env file in the working directory is honored when present; explicit
// environment variables always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default values applied when the corresponding variable is unset.
const (
	DefaultHTTPAddr      = ":8080"
	DefaultStatusTTL     = 10 * time.Minute
	DefaultMaxConcurrent = 5
	DefaultQueueBuffer   = 100
)

// Config is the full runtime configuration for the api and worker
// binaries.
type Config struct {
	HTTPAddr    string
	DatabaseURL string

	AggregatorBaseURL string
	AggregatorToken   string

	// KafkaBrokers enables completion events when non-empty.
	KafkaBrokers []string

	// StatusTTL is the lock/status key expiry. Keep it well above the
	// worst-case pipeline duration.
	StatusTTL time.Duration

	// MaxConcurrent bounds simultaneously running account pipelines.
	MaxConcurrent int

	// QueueBuffer is the in-memory job queue capacity.
	QueueBuffer int
}

// Load reads configuration from the environment, falling back to .env.
func Load() (Config, error) {
	// Missing .env is fine; real deployments inject the environment.
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:          getEnv("HTTP_ADDR", DefaultHTTPAddr),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AggregatorBaseURL: os.Getenv("AGGREGATOR_BASE_URL"),
		AggregatorToken:   os.Getenv("AGGREGATOR_TOKEN"),
		StatusTTL:         DefaultStatusTTL,
		MaxConcurrent:     DefaultMaxConcurrent,
		QueueBuffer:       DefaultQueueBuffer,
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	if raw := os.Getenv("SYNC_STATUS_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("Load: parsing SYNC_STATUS_TTL %q: %w", raw, err)
		}
		cfg.StatusTTL = ttl
	}

	if raw := os.Getenv("SYNC_MAX_CONCURRENT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("Load: invalid SYNC_MAX_CONCURRENT %q", raw)
		}
		cfg.MaxConcurrent = n
	}

	if raw := os.Getenv("JOB_QUEUE_BUFFER"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("Load: invalid JOB_QUEUE_BUFFER %q", raw)
		}
		cfg.QueueBuffer = n
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
