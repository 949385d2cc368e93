package config

import (
	"time"
)

// CacheConfig defines settings for the Redis-backed location cache.
// Prefix namespaces every key written by the service so a shared Redis can
// be flushed selectively.  LocationTTL bounds how long a cached "last
// location" snapshot is trusted before the store is consulted again.
// OpTimeout caps every individual cache call; DialTimeout and IOTimeout are
// handed to the Redis client itself.  EncryptionSecret seeds the key used
// for field-level encryption of cached coordinates.
type CacheConfig struct {
	Enabled          bool
	Addr             string
	Password         string
	DB               int
	TLS              bool
	Prefix           string
	GeoIndex         string
	LocationTTL      time.Duration
	OpTimeout        time.Duration
	DialTimeout      time.Duration
	IOTimeout        time.Duration
	MaxGeoResults    int
	EncryptionSecret string
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
// Defaults are used when variables are not set.  REDIS_HOST/REDIS_PORT take
// precedence over REDIS_ADDR when both are present.
func LoadCacheConfig() CacheConfig {
	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
		addr = host + ":" + port
	}
	cfg := CacheConfig{
		Enabled:          envBool("CACHE_ENABLED", true),
		Addr:             addr,
		Password:         envStr("REDIS_PASSWORD", ""),
		DB:               envInt("REDIS_DB", 0),
		TLS:              envBool("REDIS_TLS", false),
		Prefix:           envStr("CACHE_PREFIX", "ct"),
		GeoIndex:         envStr("CACHE_GEO_INDEX", "cards:geo"),
		LocationTTL:      envDur("CACHE_LOCATION_TTL", 10*time.Minute),
		OpTimeout:        envDur("CACHE_OP_TIMEOUT", 300*time.Millisecond),
		DialTimeout:      envDur("CACHE_DIAL_TIMEOUT", 2*time.Second),
		IOTimeout:        envDur("CACHE_IO_TIMEOUT", 500*time.Millisecond),
		MaxGeoResults:    envInt("CACHE_MAX_GEO_RESULTS", 50),
		EncryptionSecret: envStr("CACHE_ENCRYPTION_SECRET", ""),
	}
	if cfg.Enabled && cfg.EncryptionSecret == "" {
		cfg.EncryptionSecret = must("CACHE_ENCRYPTION_SECRET")
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 300 * time.Millisecond
	}
	if cfg.MaxGeoResults < 1 {
		cfg.MaxGeoResults = 50
	}
	return cfg
}
