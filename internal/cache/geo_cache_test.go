package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/iliyamo/card-tracking/internal/config"
	"github.com/iliyamo/card-tracking/internal/encryption"
)

type snapshot struct {
	CardID    string    `json:"card_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

func newTestCache(t *testing.T) (*GeoCache, *miniredis.Miniredis, *test.Hook) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cipher, err := encryption.New("test-secret")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	log, hook := test.NewNullLogger()
	c := New(rdb, cipher, config.CacheConfig{Prefix: "ct", OpTimeout: time.Second, MaxGeoResults: 50}, log)
	return c, mr, hook
}

func TestLocationPayloadIsFieldEncrypted(t *testing.T) {
	c, mr, _ := newTestCache(t)
	ctx := context.Background()
	acc := 5.0
	in := snapshot{CardID: "C1", Latitude: 40.7128, Longitude: -74.0060, Accuracy: &acc, Timestamp: time.Unix(1700000000, 0).UTC()}

	if err := c.Set(ctx, LocationKey("C1"), in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, err := mr.Get("ct:card:location:C1")
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	var stored map[string]any
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("stored payload should stay a JSON object: %v", err)
	}
	for _, f := range []string{"latitude", "longitude", "accuracy"} {
		s, ok := stored[f].(string)
		if !ok || !encryption.IsEncrypted(s) {
			t.Fatalf("field %s not encrypted: %v", f, stored[f])
		}
	}
	if stored["card_id"] != "C1" {
		t.Fatalf("non-sensitive field should be plain, got %v", stored["card_id"])
	}
	if strings.Contains(raw, "40.7128") {
		t.Fatalf("plaintext latitude leaked into redis: %s", raw)
	}

	var out snapshot
	ok, err := c.Get(ctx, LocationKey("C1"), &out)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if out.Latitude != in.Latitude || out.Longitude != in.Longitude || *out.Accuracy != acc {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if ttl := mr.TTL("ct:card:location:C1"); ttl != time.Minute {
		t.Fatalf("expected ttl 1m, got %s", ttl)
	}
}

func TestVisitorPayloadIsWhollyEncrypted(t *testing.T) {
	c, mr, _ := newTestCache(t)
	ctx := context.Background()
	if err := c.Set(ctx, "visitor:V1", map[string]string{"name": "Ada"}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, _ := mr.Get("ct:visitor:V1")
	if !encryption.IsEncrypted(raw) {
		t.Fatalf("visitor payload should be sealed, got %q", raw)
	}
	var out map[string]string
	if ok, err := c.Get(ctx, "visitor:V1", &out); err != nil || !ok || out["name"] != "Ada" {
		t.Fatalf("unexpected get result ok=%v err=%v out=%v", ok, err, out)
	}
}

func TestPlainKeysStayReadable(t *testing.T) {
	c, mr, _ := newTestCache(t)
	if err := c.Set(context.Background(), "stats:daily", map[string]int{"pings": 3}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, _ := mr.Get("ct:stats:daily")
	if raw != `{"pings":3}` {
		t.Fatalf("expected plain JSON, got %q", raw)
	}
}

func TestGetMiss(t *testing.T) {
	c, _, _ := newTestCache(t)
	var out snapshot
	ok, err := c.Get(context.Background(), LocationKey("nope"), &out)
	if ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestGeoSearchOrdersByDistance(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()
	points := map[string][2]float64{
		"near": {-74.0060, 40.7128},
		"mid":  {-74.0100, 40.7150},
		"far":  {-73.9000, 40.8000},
	}
	for m, p := range points {
		if err := c.GeoAdd(ctx, "cards:geo", m, p[0], p[1]); err != nil {
			t.Fatalf("geoadd %s: %v", m, err)
		}
	}
	hits, err := c.GeoSearch(ctx, "cards:geo", -74.0061, 40.7129, 1000, UnitMeters)
	if err != nil {
		t.Fatalf("geosearch: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits within 1km, got %d: %+v", len(hits), hits)
	}
	if hits[0].Member != "near" || hits[1].Member != "mid" {
		t.Fatalf("unexpected order: %+v", hits)
	}
	if hits[0].Distance > 20 || hits[0].Distance < 5 {
		t.Fatalf("expected ~14m for nearest, got %.2f", hits[0].Distance)
	}
	if hits[0].Latitude == 0 || hits[0].Longitude == 0 {
		t.Fatalf("expected coordinates on hits: %+v", hits[0])
	}

	if err := c.GeoRemove(ctx, "cards:geo", "near"); err != nil {
		t.Fatalf("georemove: %v", err)
	}
	hits, _ = c.GeoSearch(ctx, "cards:geo", -74.0061, 40.7129, 1000, UnitMeters)
	if len(hits) != 1 || hits[0].Member != "mid" {
		t.Fatalf("expected only mid after removal, got %+v", hits)
	}
}

func TestFlushOnlyTouchesNamespace(t *testing.T) {
	c, mr, _ := newTestCache(t)
	ctx := context.Background()
	_ = c.Set(ctx, "stats:a", 1, 0)
	_ = c.Set(ctx, "stats:b", 2, 0)
	_ = c.GeoAdd(ctx, "cards:geo", "C1", 1, 1)
	_ = mr.Set("other:key", "x")

	n, err := c.Flush(ctx)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}
	if !mr.Exists("other:key") {
		t.Fatalf("flush removed a key outside the namespace")
	}
}

func TestFlushRefusesEmptyNamespace(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	log, _ := test.NewNullLogger()
	c := New(rdb, nil, config.CacheConfig{OpTimeout: time.Second}, log)
	_ = mr.Set("unrelated", "x")

	if _, err := c.Flush(context.Background()); !errors.Is(err, ErrNoNamespace) {
		t.Fatalf("expected ErrNoNamespace, got %v", err)
	}
	if !mr.Exists("unrelated") {
		t.Fatalf("flush without namespace deleted keys")
	}
}

func TestFlushBoundedByOpTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		var held []net.Conn
		defer func() {
			for _, conn := range held {
				_ = conn.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			held = append(held, conn)
		}
	}()

	rdb := redis.NewClient(&redis.Options{Addr: ln.Addr().String(), ReadTimeout: time.Minute, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	log, _ := test.NewNullLogger()
	c := New(rdb, nil, config.CacheConfig{Prefix: "ct", OpTimeout: 100 * time.Millisecond}, log)

	start := time.Now()
	if _, err := c.Flush(context.Background()); err == nil {
		t.Fatalf("expected flush against a silent server to fail")
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("flush took %s, op timeout not applied", took)
	}
}

func TestBackendErrorIsLoggedAndReturned(t *testing.T) {
	c, mr, hook := newTestCache(t)
	mr.Close()
	_, err := c.GeoSearch(context.Background(), "cards:geo", 0, 0, 100, UnitMeters)
	if err == nil {
		t.Fatalf("expected error with backend down")
	}
	last := hook.LastEntry()
	if last == nil || last.Level != logrus.WarnLevel {
		t.Fatalf("expected a warning log entry, got %+v", last)
	}
}

func TestNilClientIsUnavailable(t *testing.T) {
	log, _ := test.NewNullLogger()
	c := New(nil, nil, config.CacheConfig{}, log)
	if err := c.Set(context.Background(), "k", 1, 0); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := c.GeoSearch(context.Background(), "cards:geo", 0, 0, 1, ""); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
