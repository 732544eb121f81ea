// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string
	RedisAddr   string
	ServerPort  string
	// LockTTL bounds best-effort distributed locks.
	LockTTL time.Duration
	// MaxRetries bounds internal retries of transient errors.
	MaxRetries int
}

// FromEnv loads configuration. DATABASE_URL is the only required setting;
// everything else has a sensible default. REDIS_ADDR may be empty, in which
// case locks and the fast-path publisher are disabled.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		LockTTL:     getDuration("LOCK_TTL", 30*time.Second),
		MaxRetries:  getInt("MAX_RETRIES", 3),
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
