package service

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/card-tracking/internal/cache"
	"github.com/iliyamo/card-tracking/internal/geo"
)

// CardSummary is one result of a proximity search.  CardNumber is only
// known on the store path; the geo index holds card ids alone.
type CardSummary struct {
	CardID         string
	CardNumber     string
	Latitude       float64
	Longitude      float64
	DistanceMeters float64
	Source         string
}

// GetNearbyCards returns cards within radius metres of lat/lon, nearest
// first.  The geo index answers when it can; if the cache errors, active
// cards are pulled from the store with a bounding box and filtered by
// great-circle distance.  The two paths may disagree on membership (the
// index only knows cards that pinged since it was last flushed) but both
// are radius-bounded and sorted.
func (s *TrackingService) GetNearbyCards(ctx context.Context, lat, lon, radius float64) ([]CardSummary, error) {
	if !geo.ValidCoordinates(lat, lon) {
		return nil, newError(ErrInvalidInput, CodeInvalidCoordinates, "latitude must be within [-90,90] and longitude within [-180,180]")
	}
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius <= 0 {
		return nil, newError(ErrInvalidInput, CodeInvalidRadius, "radius must be a positive number of metres")
	}

	if s.cache != nil {
		hits, err := s.cache.GeoSearch(ctx, s.opts.GeoIndex, lon, lat, radius, cache.UnitMeters)
		if err == nil {
			return s.fromIndex(hits, radius), nil
		}
		s.log.WithError(err).WithFields(logrus.Fields{"lat": lat, "lon": lon, "radius": radius}).
			Warn("geo search failed, using store")
	}
	return s.fromStore(ctx, lat, lon, radius)
}

func (s *TrackingService) fromIndex(hits []cache.GeoHit, radius float64) []CardSummary {
	out := make([]CardSummary, 0, len(hits))
	for _, h := range hits {
		if h.Distance > radius {
			continue
		}
		out = append(out, CardSummary{
			CardID:         h.Member,
			Latitude:       h.Latitude,
			Longitude:      h.Longitude,
			DistanceMeters: geo.RoundMeters(h.Distance),
			Source:         SourceCache,
		})
	}
	sortSummaries(out)
	if len(out) > s.opts.NearbyLimit {
		out = out[:s.opts.NearbyLimit]
	}
	return out
}

func (s *TrackingService) fromStore(ctx context.Context, lat, lon, radius float64) ([]CardSummary, error) {
	cards, err := s.store.CardsInBox(ctx, geo.BoundingBox(lat, lon, radius))
	if err != nil {
		return nil, err
	}
	out := make([]CardSummary, 0, len(cards))
	for _, c := range cards {
		if !c.IsActive || !c.HasPosition() {
			continue
		}
		d := geo.Haversine(lat, lon, *c.Latitude, *c.Longitude)
		if d > radius {
			continue
		}
		out = append(out, CardSummary{
			CardID:         c.ID,
			CardNumber:     c.CardNumber,
			Latitude:       *c.Latitude,
			Longitude:      *c.Longitude,
			DistanceMeters: geo.RoundMeters(d),
			Source:         SourceStore,
		})
	}
	sortSummaries(out)
	if len(out) > s.opts.NearbyLimit {
		out = out[:s.opts.NearbyLimit]
	}
	return out, nil
}

func sortSummaries(in []CardSummary) {
	slices.SortStableFunc(in, func(a, b CardSummary) int {
		if c := cmp.Compare(a.DistanceMeters, b.DistanceMeters); c != 0 {
			return c
		}
		return cmp.Compare(a.CardID, b.CardID)
	})
}
