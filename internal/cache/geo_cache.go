// Package cache wraps Redis as the best-effort location cache.  Values are
// JSON, optionally encrypted according to the key prefix, and a single geo
// set per index name backs radius searches.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/card-tracking/internal/config"
	"github.com/iliyamo/card-tracking/internal/encryption"
)

// ErrUnavailable is returned for every call when no Redis client is
// configured.
var ErrUnavailable = errors.New("cache: unavailable")

// ErrNoNamespace is returned by Flush when the cache has no key prefix:
// the match would cover the whole Redis keyspace.
var ErrNoNamespace = errors.New("cache: flush needs a namespace")

const (
	LocationPrefix = "card:location:"
	UnitMeters     = "m"
	UnitKilometers = "km"
)

var ops = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "card_tracking_cache_operations_total",
	Help: "Cache calls by operation and result (hit, miss, ok, error).",
}, []string{"op", "result"})

type mode int

const (
	plain mode = iota
	fields
	whole
)

// Prefixes listed here are sensitive.  Structured location and chat
// payloads keep their shape and only the fields below are sealed; visitor
// and session payloads are sealed as a whole.
var policies = []struct {
	prefix string
	mode   mode
}{
	{LocationPrefix, fields},
	{"chat:", fields},
	{"visitor:", whole},
	{"session:", whole},
}

var sealedFields = map[string]bool{
	"latitude":  true,
	"longitude": true,
	"accuracy":  true,
	"content":   true,
}

func policyFor(key string) mode {
	for _, p := range policies {
		if strings.HasPrefix(key, p.prefix) {
			return p.mode
		}
	}
	return plain
}

// LocationKey is the cache key holding a card's last location snapshot.
func LocationKey(cardID string) string { return LocationPrefix + cardID }

// GeoHit is one member returned by GeoSearch.  Distance is expressed in
// the unit passed to the search.
type GeoHit struct {
	Member    string
	Distance  float64
	Longitude float64
	Latitude  float64
}

type GeoCache struct {
	rdb        *redis.Client
	cipher     *encryption.Cipher
	namespace  string
	opTimeout  time.Duration
	maxResults int
	log        logrus.FieldLogger
}

// New returns a cache over rdb.  rdb may be nil, in which case every call
// fails fast with ErrUnavailable.
func New(rdb *redis.Client, cipher *encryption.Cipher, cfg config.CacheConfig, log logrus.FieldLogger) *GeoCache {
	limit := cfg.MaxGeoResults
	if limit <= 0 {
		limit = 50
	}
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	return &GeoCache{
		rdb:        rdb,
		cipher:     cipher,
		namespace:  cfg.Prefix,
		opTimeout:  timeout,
		maxResults: limit,
		log:        log.WithField("component", "cache"),
	}
}

// Available reports whether a Redis client is configured.
func (c *GeoCache) Available() bool { return c != nil && c.rdb != nil }

// Healthy pings Redis within the operation timeout.
func (c *GeoCache) Healthy(ctx context.Context) bool {
	if !c.Available() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.rdb.Ping(ctx).Err() == nil
}

func (c *GeoCache) key(k string) string {
	if c.namespace == "" {
		return k
	}
	return c.namespace + ":" + k
}

func (c *GeoCache) fail(op, key string, err error) error {
	ops.WithLabelValues(op, "error").Inc()
	c.log.WithFields(logrus.Fields{"op": op, "key": key}).WithError(err).Warn("cache operation failed")
	return fmt.Errorf("cache %s %s: %w", op, key, err)
}

// Set stores value as JSON under key.  A ttl of zero keeps the key until
// it is deleted or flushed.
func (c *GeoCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.Available() {
		return ErrUnavailable
	}
	payload, err := c.seal(key, value)
	if err != nil {
		return c.fail("set", key, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.rdb.Set(ctx, c.key(key), payload, ttl).Err(); err != nil {
		return c.fail("set", key, err)
	}
	ops.WithLabelValues("set", "ok").Inc()
	return nil
}

// Get decodes the value under key into dest.  A miss returns false and a
// nil error.
func (c *GeoCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.Available() {
		return false, ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		ops.WithLabelValues("get", "miss").Inc()
		return false, nil
	}
	if err != nil {
		return false, c.fail("get", key, err)
	}
	payload, err := c.open(key, raw)
	if err != nil {
		return false, c.fail("get", key, err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, c.fail("get", key, err)
	}
	ops.WithLabelValues("get", "hit").Inc()
	return true, nil
}

func (c *GeoCache) Delete(ctx context.Context, keys ...string) error {
	if !c.Available() {
		return ErrUnavailable
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.rdb.Del(ctx, full...).Err(); err != nil {
		return c.fail("del", strings.Join(keys, ","), err)
	}
	return nil
}

// Flush removes every key under the cache namespace, including geo
// indexes, and returns how many were deleted.  It scans in batches so a
// large keyspace does not block Redis; each SCAN and DEL gets the
// operation timeout.
func (c *GeoCache) Flush(ctx context.Context) (int, error) {
	if !c.Available() {
		return 0, ErrUnavailable
	}
	if c.namespace == "" {
		return 0, ErrNoNamespace
	}
	match := c.key("*")
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.scan(ctx, cursor, match)
		if err != nil {
			return deleted, c.fail("flush", match, err)
		}
		if len(keys) > 0 {
			n, err := c.del(ctx, keys)
			if err != nil {
				return deleted, c.fail("flush", match, err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

func (c *GeoCache) scan(ctx context.Context, cursor uint64, match string) ([]string, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.rdb.Scan(ctx, cursor, match, 200).Result()
}

func (c *GeoCache) del(ctx context.Context, keys []string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.rdb.Del(ctx, keys...).Result()
}

// GeoAdd places member at lon/lat in the named index, replacing any
// previous position.
func (c *GeoCache) GeoAdd(ctx context.Context, index, member string, lon, lat float64) error {
	if !c.Available() {
		return ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	err := c.rdb.GeoAdd(ctx, c.key(index), &redis.GeoLocation{
		Name:      member,
		Longitude: lon,
		Latitude:  lat,
	}).Err()
	if err != nil {
		return c.fail("geoadd", index, err)
	}
	return nil
}

func (c *GeoCache) GeoRemove(ctx context.Context, index string, members ...string) error {
	if !c.Available() {
		return ErrUnavailable
	}
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.rdb.ZRem(ctx, c.key(index), args...).Err(); err != nil {
		return c.fail("georem", index, err)
	}
	return nil
}

// GeoSearch returns members within radius of lon/lat, nearest first,
// with distance and coordinates.  At most the configured number of
// results (50 by default) is returned.
func (c *GeoCache) GeoSearch(ctx context.Context, index string, lon, lat, radius float64, unit string) ([]GeoHit, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}
	if unit == "" {
		unit = UnitMeters
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	locs, err := c.rdb.GeoRadius(ctx, c.key(index), lon, lat, &redis.GeoRadiusQuery{
		Radius:    radius,
		Unit:      unit,
		WithCoord: true,
		WithDist:  true,
		Count:     c.maxResults,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, c.fail("geosearch", index, err)
	}
	hits := make([]GeoHit, 0, len(locs))
	for _, l := range locs {
		hits = append(hits, GeoHit{
			Member:    l.Name,
			Distance:  l.Dist,
			Longitude: l.Longitude,
			Latitude:  l.Latitude,
		})
	}
	ops.WithLabelValues("geosearch", "ok").Inc()
	return hits, nil
}
