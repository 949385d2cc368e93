package config

import (
	"testing"
	"time"
)

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "18080")
	t.Setenv("DB_USER", "tracker")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "cards_test")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("CACHE_ENCRYPTION_SECRET", "cache-secret")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("CACHE_LOCATION_TTL", "90s")
	t.Setenv("SCHEDULER_INTERVAL", "30s")
	t.Setenv("SCHEDULER_LOOKAHEAD", "20m")

	cfg := Load()
	if cfg.Port != "18080" {
		t.Fatalf("expected APP_PORT override, got %s", cfg.Port)
	}
	if cfg.Cache.Addr != "redis:6380" {
		t.Fatalf("expected host:port to win over REDIS_ADDR, got %s", cfg.Cache.Addr)
	}
	if cfg.Cache.LocationTTL != 90*time.Second {
		t.Fatalf("expected CACHE_LOCATION_TTL 90s, got %s", cfg.Cache.LocationTTL)
	}
	if cfg.Cache.EncryptionSecret != "cache-secret" {
		t.Fatalf("expected encryption secret override")
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Fatalf("expected SCHEDULER_INTERVAL 30s, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.Lookahead != 20*time.Minute {
		t.Fatalf("expected SCHEDULER_LOOKAHEAD 20m, got %s", cfg.Scheduler.Lookahead)
	}
	if cfg.Scheduler.TickTimeout > cfg.Scheduler.Interval {
		t.Fatalf("tick timeout %s must not exceed interval %s", cfg.Scheduler.TickTimeout, cfg.Scheduler.Interval)
	}
}

func TestSchedulerDefaults(t *testing.T) {
	cfg := LoadSchedulerConfig()
	if cfg.Interval != time.Minute || cfg.Lookahead != 15*time.Minute {
		t.Fatalf("unexpected defaults: interval=%s lookahead=%s", cfg.Interval, cfg.Lookahead)
	}
}

func TestSchedulerLookaheadZeroAllowed(t *testing.T) {
	t.Setenv("SCHEDULER_LOOKAHEAD", "0s")
	if cfg := LoadSchedulerConfig(); cfg.Lookahead != 0 {
		t.Fatalf("zero lookahead replaced with %s", cfg.Lookahead)
	}
	t.Setenv("SCHEDULER_LOOKAHEAD", "-5m")
	if cfg := LoadSchedulerConfig(); cfg.Lookahead != 15*time.Minute {
		t.Fatalf("negative lookahead should reset, got %s", cfg.Lookahead)
	}
}

func TestBrokerPublishTimeout(t *testing.T) {
	if cfg := LoadBrokerConfig(); cfg.PublishTimeout != 2*time.Second {
		t.Fatalf("default publish timeout = %s", cfg.PublishTimeout)
	}
	t.Setenv("RABBITMQ_PUBLISH_TIMEOUT", "500ms")
	if cfg := LoadBrokerConfig(); cfg.PublishTimeout != 500*time.Millisecond {
		t.Fatalf("publish timeout = %s", cfg.PublishTimeout)
	}
}

func TestRateLimitBurstOverride(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "10s")
	cfg := LoadRateLimitConfig()
	if cfg.Capacity != 5 {
		t.Fatalf("expected capacity 5, got %d", cfg.Capacity)
	}
	if cfg.RefillTokens != 1 || cfg.RefillInterval != 10*time.Second {
		t.Fatalf("unexpected refill %d/%s", cfg.RefillTokens, cfg.RefillInterval)
	}
	if cfg.TTL < 50*time.Second {
		t.Fatalf("ttl should be raised to 5 refill intervals, got %s", cfg.TTL)
	}
}
