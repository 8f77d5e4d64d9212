package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	RedisURL        string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	TemplateDir     string
	MaxAttempts     int
	InitialDelay    time.Duration
	CacheTTL        time.Duration
}

func Load() Config {
	return Config{
		Port:            envInt("ATTEST_PORT", 8760),
		NatsURL:         envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		RedisURL:        envStr("REDIS_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("ATTEST_MODEL", "claude-sonnet-4-20250514"),
		TemplateDir:     envStr("ATTEST_TEMPLATE_DIR", "templates"),
		MaxAttempts:     envInt("ATTEST_MAX_ATTEMPTS", 3),
		InitialDelay:    envDuration("ATTEST_RETRY_DELAY", time.Second),
		CacheTTL:        envDuration("ATTEST_CACHE_TTL", 15*time.Minute),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
