package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN        string `env:"DATABASE_DSN,required=true"`
	RedisURL           string `env:"REDIS_URL,required=true"`
	IntrospectionURL   string `env:"INTROSPECTION_URL,required=true"`
	IntrospectionToken string `env:"INTROSPECTION_TOKEN"`

	// Delivery policy. Defaults mirror the production webhook contract:
	// 30s scan cadence, batches of 50, 3 attempts, breaker at 10 failures,
	// 5s per-attempt timeout.
	DispatchIntervalSec int `env:"DISPATCH_INTERVAL_SEC,default=30"`
	DispatchBatchSize   int `env:"DISPATCH_BATCH_SIZE,default=50"`
	DispatchConcurrency int `env:"DISPATCH_CONCURRENCY,default=8"`
	MaxAttempts         int `env:"MAX_ATTEMPTS,default=3"`
	FailureThreshold    int `env:"FAILURE_THRESHOLD,default=10"`
	DeliveryTimeoutMS   int `env:"DELIVERY_TIMEOUT_MS,default=5000"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
