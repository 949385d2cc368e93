package config

// This file defines the Redis client constructor.  Redis backs the location
// cache, the geo index and the ingest rate limiter.  If the connection
// fails during startup the function returns nil and callers degrade
// gracefully: the cache reports itself unavailable and every read falls
// back to MySQL.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient instantiates a Redis client from the cache configuration.
// Dial and read/write timeouts are bounded so a degraded Redis cannot stall
// the request path.  The returned client is nil when caching is disabled or
// the server does not answer a ping.
func NewRedisClient(cfg CacheConfig) *redis.Client {
	if !cfg.Enabled {
		return nil
	}
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		TLSConfig:    tlsConf,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.IOTimeout,
		WriteTimeout: cfg.IOTimeout,
	})
	// Ping the server with a short timeout.  Return nil on failure.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
