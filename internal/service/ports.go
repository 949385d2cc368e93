package service

import (
	"context"
	"time"

	"github.com/iliyamo/card-tracking/internal/cache"
	"github.com/iliyamo/card-tracking/internal/geo"
	"github.com/iliyamo/card-tracking/internal/model"
	"github.com/iliyamo/card-tracking/internal/queue"
	"github.com/iliyamo/card-tracking/internal/repository"
)

// Store is the system of record.  repository.Store implements it against
// MySQL; it must report missing rows as repository.ErrNotFound and lost
// compare-and-swap races as repository.ErrStaleVersion.  RecordLocation
// reports whether the ping became the card's latest position.
type Store interface {
	GetCard(ctx context.Context, id string) (*model.Card, error)
	GetVisitor(ctx context.Context, id string) (*model.Visitor, error)
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)

	CreateCard(ctx context.Context, c *model.Card) error
	AssignCard(ctx context.Context, p repository.AssignParams) error
	ReleaseCard(ctx context.Context, p repository.ReleaseParams) error
	RecordLocation(ctx context.Context, loc *model.CardLocation, battery *int) (current bool, err error)

	LatestLocation(ctx context.Context, cardID string) (*model.CardLocation, error)
	LocationHistory(ctx context.Context, cardID string, limit, offset int) ([]model.CardLocation, error)
	CardsInBox(ctx context.Context, box geo.Box) ([]model.Card, error)
	AvailableCards(ctx context.Context, limit int) ([]model.Card, error)

	SetAppointmentStatus(ctx context.Context, id string, from, to model.AppointmentStatus) error
	SetVisitorState(ctx context.Context, id string, version uint32, from, to model.VisitorState) error
}

// LocationCache is the subset of cache.GeoCache the service relies on.
type LocationCache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, dest any) (bool, error)
	GeoAdd(ctx context.Context, index, member string, lon, lat float64) error
	GeoSearch(ctx context.Context, index string, lon, lat, radius float64, unit string) ([]cache.GeoHit, error)
}

// EventPublisher receives events after the matching state change has
// committed.  Failures are logged, never propagated.
type EventPublisher interface {
	Publish(ctx context.Context, evt queue.CardEvent) error
}
