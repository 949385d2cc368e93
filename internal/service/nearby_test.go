package service

import (
	"context"
	"math/rand"
	"testing"

	"github.com/iliyamo/card-tracking/internal/geo"
	"github.com/iliyamo/card-tracking/internal/model"
)

func TestNearbyFromGeoIndex(t *testing.T) {
	f := newFixture(t, true)
	f.card("C1")
	f.card("C2")
	ctx := context.Background()
	if _, err := f.svc.RecordLocation(ctx, "C1", 40.7128, -74.0060, ptr(5.0)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := f.svc.RecordLocation(ctx, "C2", 40.7200, -74.0100, nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := f.svc.GetNearbyCards(ctx, 40.7129, -74.0061, 100)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 1 || got[0].CardID != "C1" || got[0].Source != SourceCache {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got[0].DistanceMeters < 10 || got[0].DistanceMeters > 18 {
		t.Fatalf("expected ~14m, got %v", got[0].DistanceMeters)
	}
	if got[0].DistanceMeters != float64(int(got[0].DistanceMeters)) {
		t.Fatalf("distance should be whole metres, got %v", got[0].DistanceMeters)
	}
}

func TestNearbyFallsBackToStore(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.store.PutCard(model.Card{ID: "C1", IsActive: true, Latitude: ptr(40.7128), Longitude: ptr(-74.0060)})
	f.store.PutCard(model.Card{ID: "C2", IsActive: true, Latitude: ptr(40.7135), Longitude: ptr(-74.0061)})
	f.store.PutCard(model.Card{ID: "FAR", IsActive: true, Latitude: ptr(40.7300), Longitude: ptr(-74.0061)})
	f.store.PutCard(model.Card{ID: "OFF", IsActive: false, Latitude: ptr(40.7129), Longitude: ptr(-74.0061)})
	f.store.PutCard(model.Card{ID: "NOPOS", IsActive: true})

	got, err := f.svc.GetNearbyCards(ctx, 40.7129, -74.0061, 100)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 2 || got[0].CardID != "C1" || got[1].CardID != "C2" {
		t.Fatalf("unexpected fallback result: %+v", got)
	}
	if got[0].DistanceMeters != 14 {
		t.Fatalf("expected 14m for C1, got %v", got[0].DistanceMeters)
	}
	for _, s := range got {
		if s.Source != SourceStore {
			t.Fatalf("expected store source, got %s", s.Source)
		}
	}
}

func TestNearbyFallbackIsRadiusBoundedAndSorted(t *testing.T) {
	f := newFixture(t, false)
	rng := rand.New(rand.NewSource(7))
	centerLat, centerLon, radius := 48.8566, 2.3522, 750.0
	for i := 0; i < 300; i++ {
		lat := centerLat + (rng.Float64()-0.5)*0.04
		lon := centerLon + (rng.Float64()-0.5)*0.06
		f.store.PutCard(model.Card{ID: string(rune('a'+i%26)) + string(rune('0'+i/26)), IsActive: true, Latitude: ptr(lat), Longitude: ptr(lon)})
	}

	got, err := f.svc.GetNearbyCards(context.Background(), centerLat, centerLon, radius)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("expected some cards within %vm", radius)
	}
	for i, s := range got {
		if d := geo.Haversine(centerLat, centerLon, s.Latitude, s.Longitude); d > radius {
			t.Fatalf("%s is %.1fm away, outside radius", s.CardID, d)
		}
		if i > 0 && got[i-1].DistanceMeters > s.DistanceMeters {
			t.Fatalf("results not sorted at %d: %v > %v", i, got[i-1].DistanceMeters, s.DistanceMeters)
		}
	}
}

func TestNearbyRejectsBadInput(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.GetNearbyCards(context.Background(), 0, 0, 0)
	wantCode(t, err, ErrInvalidInput, CodeInvalidRadius)
	_, err = f.svc.GetNearbyCards(context.Background(), 100, 0, 10)
	wantCode(t, err, ErrInvalidInput, CodeInvalidCoordinates)
}
