package redis

import "time"

// Config describes the Redis connection. Fields are populated from the
// environment via caarlos0/env.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL,required" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`

	// EventTTL bounds how long processed webhook event ids are remembered
	// for replay suppression.
	EventTTL time.Duration `env:"REDIS_EVENT_TTL" envDefault:"72h"`
}
