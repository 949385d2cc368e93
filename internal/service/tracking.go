// Package service implements card tracking: location ingest, proximity
// queries, and the card/visitor/appointment state machine shared by the
// HTTP API and the scheduler.
package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/card-tracking/internal/cache"
	"github.com/iliyamo/card-tracking/internal/geo"
	"github.com/iliyamo/card-tracking/internal/model"
	"github.com/iliyamo/card-tracking/internal/queue"
	"github.com/iliyamo/card-tracking/internal/repository"
)

const (
	SourceCache = "cache"
	SourceStore = "store"
)

// Options tune the cache interaction.  Zero values get defaults.
type Options struct {
	LocationTTL       time.Duration
	GeoIndex          string
	NearbyLimit       int
	RepopulateTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.LocationTTL <= 0 {
		o.LocationTTL = 10 * time.Minute
	}
	if o.GeoIndex == "" {
		o.GeoIndex = "cards:geo"
	}
	if o.NearbyLimit <= 0 {
		o.NearbyLimit = 50
	}
	if o.RepopulateTimeout <= 0 {
		o.RepopulateTimeout = 2 * time.Second
	}
	return o
}

// Location is a card position as returned to callers and as cached under
// cache.LocationKey.  Source tells whether it came from the cache or the
// store and is not cached itself.
type Location struct {
	CardID    string    `json:"card_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"-"`
}

func locationOf(l *model.CardLocation) Location {
	return Location{
		CardID:    l.CardID,
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		Accuracy:  l.Accuracy,
		Timestamp: l.Timestamp,
	}
}

// Ping is one report from card hardware.  RecordedAt is optional; the
// service clock is used when it is zero.
type Ping struct {
	CardID            string
	Latitude          float64
	Longitude         float64
	Accuracy          *float64
	BatteryPercentage *int
	RecordedAt        time.Time
}

type TrackingService struct {
	store  Store
	cache  LocationCache
	events EventPublisher
	clock  Clock
	log    logrus.FieldLogger
	opts   Options
	locks  *keyedMutex
	bg     sync.WaitGroup
}

func NewTrackingService(store Store, c LocationCache, events EventPublisher, clock Clock, log logrus.FieldLogger, opts Options) *TrackingService {
	if events == nil {
		events = NopPublisher{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &TrackingService{
		store:  store,
		cache:  c,
		events: events,
		clock:  clock,
		log:    log.WithField("component", "tracking"),
		opts:   opts.withDefaults(),
		locks:  newKeyedMutex(),
	}
}

// Wait blocks until background cache repopulation has finished.
func (s *TrackingService) Wait() { s.bg.Wait() }

func (s *TrackingService) publish(ctx context.Context, evt queue.CardEvent) {
	evt.OccurredAt = s.clock.Now().UTC()
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.WithError(err).WithField("event", evt.Type).Warn("event publish failed")
	}
}

func cardNotFound(id string) *Error {
	return newError(ErrNotFound, CodeCardNotFound, "card %s does not exist", id)
}

func validPosition(lat, lon float64, acc *float64) error {
	if !geo.ValidCoordinates(lat, lon) {
		return newError(ErrInvalidInput, CodeInvalidCoordinates, "latitude must be within [-90,90] and longitude within [-180,180]")
	}
	if acc != nil && (math.IsNaN(*acc) || math.IsInf(*acc, 0) || *acc < 0) {
		return newError(ErrInvalidInput, CodeInvalidCoordinates, "accuracy must be a non-negative number")
	}
	return nil
}

// RecordLocation stores a ping without a battery reading.
func (s *TrackingService) RecordLocation(ctx context.Context, cardID string, lat, lon float64, accuracy *float64) (*model.CardLocation, error) {
	return s.RecordPing(ctx, Ping{CardID: cardID, Latitude: lat, Longitude: lon, Accuracy: accuracy})
}

// RecordPing appends the ping to the card's history and, unless a newer
// ping was already seen, mirrors it on the card row in one transaction.
// The cache snapshot and geo index follow the card row best-effort: a
// cache failure is logged and the ping still counts as recorded.
func (s *TrackingService) RecordPing(ctx context.Context, p Ping) (*model.CardLocation, error) {
	if err := validPosition(p.Latitude, p.Longitude, p.Accuracy); err != nil {
		return nil, err
	}
	if b := p.BatteryPercentage; b != nil && (*b < 0 || *b > 100) {
		return nil, newError(ErrInvalidInput, CodeInvalidBattery, "battery percentage must be within [0,100]")
	}
	if _, err := s.store.GetCard(ctx, p.CardID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, cardNotFound(p.CardID)
		}
		return nil, err
	}
	at := p.RecordedAt
	if at.IsZero() {
		at = s.clock.Now()
	}
	loc := &model.CardLocation{
		CardID:    p.CardID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Accuracy:  p.Accuracy,
		Timestamp: at.UTC(),
	}
	current, err := s.store.RecordLocation(ctx, loc, p.BatteryPercentage)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, cardNotFound(p.CardID)
		}
		return nil, err
	}

	if !current {
		s.log.WithFields(logrus.Fields{"card_id": loc.CardID, "recorded_at": loc.Timestamp}).
			Debug("late ping kept in history only")
	} else if err := s.cacheLocation(ctx, loc); err != nil {
		s.log.WithError(err).WithField("card_id", loc.CardID).Warn("location cache write failed")
	}
	s.publish(ctx, queue.CardEvent{
		Type:      queue.EventLocationRecorded,
		CardID:    loc.CardID,
		Latitude:  &loc.Latitude,
		Longitude: &loc.Longitude,
		Accuracy:  loc.Accuracy,
	})
	return loc, nil
}

// cacheLocation writes the encrypted snapshot and the geo index entry.
func (s *TrackingService) cacheLocation(ctx context.Context, loc *model.CardLocation) error {
	if s.cache == nil {
		return cache.ErrUnavailable
	}
	if err := s.cache.Set(ctx, cache.LocationKey(loc.CardID), locationOf(loc), s.opts.LocationTTL); err != nil {
		return err
	}
	return s.cache.GeoAdd(ctx, s.opts.GeoIndex, loc.CardID, loc.Longitude, loc.Latitude)
}

// GetLastLocation reads the cached snapshot first.  On a miss or a cache
// error it falls back to the newest history row and, if there is one,
// refreshes the cache in the background.  A card that never reported
// yields nil and no error.
func (s *TrackingService) GetLastLocation(ctx context.Context, cardID string) (*Location, error) {
	if s.cache != nil {
		var cached Location
		ok, err := s.cache.Get(ctx, cache.LocationKey(cardID), &cached)
		switch {
		case err != nil:
			s.log.WithError(err).WithField("card_id", cardID).Warn("location cache read failed, using store")
		case ok:
			cached.Source = SourceCache
			return &cached, nil
		}
	}

	latest, err := s.store.LatestLocation(ctx, cardID)
	if errors.Is(err, repository.ErrNotFound) {
		if _, cerr := s.store.GetCard(ctx, cardID); errors.Is(cerr, repository.ErrNotFound) {
			return nil, cardNotFound(cardID)
		} else if cerr != nil {
			return nil, cerr
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.bg.Add(1)
	go func(loc model.CardLocation) {
		defer s.bg.Done()
		rctx, cancel := context.WithTimeout(context.Background(), s.opts.RepopulateTimeout)
		defer cancel()
		if err := s.cacheLocation(rctx, &loc); err != nil {
			s.log.WithError(err).WithField("card_id", loc.CardID).Debug("cache repopulation skipped")
		}
	}(*latest)

	out := locationOf(latest)
	out.Source = SourceStore
	return &out, nil
}

// LocationHistory pages through a card's pings, newest first.
func (s *TrackingService) LocationHistory(ctx context.Context, cardID string, limit, offset int) ([]model.CardLocation, error) {
	if _, err := s.store.GetCard(ctx, cardID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, cardNotFound(cardID)
		}
		return nil, err
	}
	return s.store.LocationHistory(ctx, cardID, limit, offset)
}

// FindAvailableCards lists active, unassigned cards, oldest first.
func (s *TrackingService) FindAvailableCards(ctx context.Context, limit int) ([]model.Card, error) {
	return s.store.AvailableCards(ctx, limit)
}
