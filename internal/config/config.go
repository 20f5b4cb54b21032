// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, parsed from the environment. A .env
// file is loaded by the godotenv autoload import in cmd/server.
type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	// DatabaseURL empty means the in-memory store (local development only).
	DatabaseURL string `env:"DATABASE_URL"`

	// RedisAddr empty disables the push-notification queue.
	RedisAddr string `env:"REDIS_ADDR"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`
	PushQueue string `env:"PUSH_QUEUE_NAME" envDefault:"skatevs_push"`

	// Clip storage. Empty bucket falls back to a static CDN-style resolver.
	ClipBucket       string        `env:"CLIP_BUCKET"`
	ClipEndpoint     string        `env:"CLIP_S3_ENDPOINT"`
	ClipRegion       string        `env:"CLIP_S3_REGION" envDefault:"auto"`
	ClipAccessKey    string        `env:"CLIP_S3_ACCESS_KEY_ID"`
	ClipAccessSecret string        `env:"CLIP_S3_ACCESS_KEY_SECRET"`
	ClipURLTTL       time.Duration `env:"CLIP_URL_TTL" envDefault:"15m"`
	ClipCDNBaseURL   string        `env:"CLIP_CDN_BASE_URL" envDefault:"https://clips.local"`

	DeadlineSweepInterval  time.Duration `env:"DEADLINE_SWEEP_INTERVAL" envDefault:"10s"`
	HeartbeatSweepInterval time.Duration `env:"HEARTBEAT_SWEEP_INTERVAL" envDefault:"30s"`
	GraceSweepInterval     time.Duration `env:"GRACE_SWEEP_INTERVAL" envDefault:"15s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
