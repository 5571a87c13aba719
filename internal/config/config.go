package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN         string        `env:"DATABASE_DSN,required=true"`
	RabbitMQURL         string        `env:"RABBITMQ_URL,required=true"`
	RedisURL            string        `env:"REDIS_URL,required=true"`
	MailRelayURL        string        `env:"MAIL_RELAY_URL"`
	MailRelayTimeout    time.Duration `env:"MAIL_RELAY_TIMEOUT,default=10s"`
	RateLimitPerSec     int           `env:"RATE_LIMIT_PER_SEC,default=20"`
	DispatchConcurrency int           `env:"DISPATCH_CONCURRENCY,default=8"`
	SchedulerInterval   time.Duration `env:"SCHEDULER_INTERVAL,default=15s"`
	StalePendingAfter   time.Duration `env:"STALE_PENDING_AFTER,default=15m"`
	APIPort             int           `env:"API_PORT,default=8080"`
	LogLevel            string        `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
