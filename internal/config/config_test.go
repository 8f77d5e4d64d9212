package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8760 {
		t.Errorf("Port = %d, want 8760", cfg.Port)
	}
	if cfg.NatsURL != "nats://localhost:4222" {
		t.Errorf("NatsURL = %q", cfg.NatsURL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.TemplateDir != "templates" {
		t.Errorf("TemplateDir = %q", cfg.TemplateDir)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %v", cfg.InitialDelay)
	}
	if cfg.CacheTTL != 15*time.Minute {
		t.Errorf("CacheTTL = %v", cfg.CacheTTL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ATTEST_PORT", "9001")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("ATTEST_MAX_ATTEMPTS", "5")
	t.Setenv("ATTEST_RETRY_DELAY", "250ms")
	t.Setenv("ATTEST_CACHE_TTL", "1h")

	cfg := Load()

	if cfg.Port != 9001 {
		t.Errorf("Port = %d, want 9001", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.RedisURL != "redis://localhost:6379/2" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != 250*time.Millisecond {
		t.Errorf("InitialDelay = %v", cfg.InitialDelay)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v", cfg.CacheTTL)
	}
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	t.Setenv("ATTEST_PORT", "not-a-port")
	t.Setenv("ATTEST_RETRY_DELAY", "soon")

	cfg := Load()

	if cfg.Port != 8760 {
		t.Errorf("Port = %d, want default on malformed value", cfg.Port)
	}
	if cfg.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %v, want default on malformed value", cfg.InitialDelay)
	}
}
