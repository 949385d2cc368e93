// Package memstore is an in-memory system of record with the same
// compare-and-swap semantics as the MySQL repository.  It backs the
// service and scheduler tests.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/iliyamo/card-tracking/internal/geo"
	"github.com/iliyamo/card-tracking/internal/model"
	"github.com/iliyamo/card-tracking/internal/repository"
)

type Store struct {
	mu            sync.Mutex
	cards         map[string]model.Card
	visitors      map[string]model.Visitor
	appointments  map[string]model.Appointment
	subscriptions map[string]model.Subscription
	locations     []model.CardLocation
	nextLocID     uint64
}

func New() *Store {
	return &Store{
		cards:         make(map[string]model.Card),
		visitors:      make(map[string]model.Visitor),
		appointments:  make(map[string]model.Appointment),
		subscriptions: make(map[string]model.Subscription),
	}
}

func (s *Store) PutCard(c model.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.cards[c.ID] = c
}

func (s *Store) PutVisitor(v model.Visitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.Card = nil
	s.visitors[v.ID] = v
}

func (s *Store) PutAppointment(a model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Visitor = nil
	s.appointments[a.ID] = a
}

func (s *Store) PutSubscription(sub model.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.SupplierID] = sub
}

// Card returns a snapshot of the stored card.
func (s *Store) Card(id string) (model.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	return c, ok
}

func (s *Store) Visitor(id string) (model.Visitor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visitors[id]
	return v, ok
}

func (s *Store) Appointment(id string) (model.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	return a, ok
}

// Locations returns every stored ping of cardID in insertion order.
func (s *Store) Locations(cardID string) []model.CardLocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CardLocation
	for _, l := range s.locations {
		if l.CardID == cardID {
			out = append(out, l)
		}
	}
	return out
}

func (s *Store) CardCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards)
}

func (s *Store) GetCard(_ context.Context, id string) (*model.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s *Store) GetVisitor(_ context.Context, id string) (*model.Visitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visitors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (s *Store) GetAppointment(_ context.Context, id string) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.attach(&a)
	return &a, nil
}

// attach loads the visitor and its card.  Caller holds mu.
func (s *Store) attach(a *model.Appointment) {
	v, ok := s.visitors[a.VisitorID]
	if !ok {
		return
	}
	if v.CardID != nil {
		if c, ok := s.cards[*v.CardID]; ok {
			v.Card = &c
		}
	}
	a.Visitor = &v
}

func (s *Store) CreateCard(_ context.Context, c *model.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[c.SupplierID]
	if !ok || !sub.Active || !sub.CardTrackingEnabled {
		return repository.ErrTrackingDisabled
	}
	n := 0
	for _, existing := range s.cards {
		if existing.CardNumber == c.CardNumber {
			return repository.ErrConflict
		}
		if existing.SupplierID == c.SupplierID {
			n++
		}
	}
	if n >= sub.MaxCardCount {
		return repository.ErrQuotaExceeded
	}
	s.cards[c.ID] = *c
	return nil
}

func (s *Store) AssignCard(_ context.Context, p repository.AssignParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[p.CardID]
	if !ok || c.Version != p.CardVersion || c.VisitorID != nil || !c.IsActive {
		return repository.ErrStaleVersion
	}
	v, ok := s.visitors[p.VisitorID]
	if !ok || v.Version != p.VisitorVersion || v.CardID != nil || v.State == model.VisitorCompleted {
		return repository.ErrStaleVersion
	}
	visitorID, cardID, issued := p.VisitorID, p.CardID, p.IssuedAt
	c.VisitorID = &visitorID
	c.IssuedAt = &issued
	c.Version++
	v.CardID = &cardID
	v.State = model.VisitorInProgress
	v.Version++
	s.cards[c.ID] = c
	s.visitors[v.ID] = v
	return nil
}

func (s *Store) ReleaseCard(_ context.Context, p repository.ReleaseParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[p.CardID]
	if !ok || c.Version != p.CardVersion || c.VisitorID == nil || *c.VisitorID != p.VisitorID {
		return repository.ErrStaleVersion
	}
	v, ok := s.visitors[p.VisitorID]
	if !ok || v.Version != p.VisitorVersion || v.CardID == nil || *v.CardID != p.CardID {
		return repository.ErrStaleVersion
	}
	c.VisitorID = nil
	c.IssuedAt = nil
	c.Version++
	v.CardID = nil
	v.State = model.VisitorCompleted
	v.Version++
	s.cards[c.ID] = c
	s.visitors[v.ID] = v
	return nil
}

func (s *Store) RecordLocation(_ context.Context, loc *model.CardLocation, battery *int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[loc.CardID]
	if !ok {
		return false, repository.ErrNotFound
	}
	current := c.LastSeenAt == nil || !loc.Timestamp.Before(*c.LastSeenAt)
	if current {
		lat, lon, seen := loc.Latitude, loc.Longitude, loc.Timestamp
		c.Latitude, c.Longitude, c.Accuracy, c.LastSeenAt = &lat, &lon, loc.Accuracy, &seen
		if battery != nil {
			b := *battery
			c.BatteryPercentage = &b
		}
		s.cards[c.ID] = c
	}
	s.nextLocID++
	loc.ID = s.nextLocID
	s.locations = append(s.locations, *loc)
	return current, nil
}

func (s *Store) LatestLocation(ctx context.Context, cardID string) (*model.CardLocation, error) {
	page, _ := s.LocationHistory(ctx, cardID, 1, 0)
	if len(page) == 0 {
		return nil, repository.ErrNotFound
	}
	return &page[0], nil
}

func (s *Store) LocationHistory(_ context.Context, cardID string, limit, offset int) ([]model.CardLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > repository.MaxHistoryPage {
		limit = repository.MaxHistoryPage
	}
	var all []model.CardLocation
	for _, l := range s.locations {
		if l.CardID == cardID {
			all = append(all, l)
		}
	}
	slices.SortStableFunc(all, func(a, b model.CardLocation) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if offset >= len(all) {
		return []model.CardLocation{}, nil
	}
	all = all[max(offset, 0):]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) CardsInBox(_ context.Context, box geo.Box) ([]model.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Card
	for _, c := range s.cards {
		if c.IsActive && c.HasPosition() && box.Contains(*c.Latitude, *c.Longitude) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) AvailableCards(_ context.Context, limit int) ([]model.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Card
	for _, c := range s.cards {
		if c.IsActive && c.VisitorID == nil {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b model.Card) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SetAppointmentStatus(_ context.Context, id string, from, to model.AppointmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok || a.Status != from {
		return repository.ErrStaleVersion
	}
	a.Status = to
	s.appointments[id] = a
	return nil
}

func (s *Store) SetVisitorState(_ context.Context, id string, version uint32, from, to model.VisitorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visitors[id]
	if !ok || v.Version != version || v.State != from {
		return repository.ErrStaleVersion
	}
	v.State = to
	v.Version++
	s.visitors[id] = v
	return nil
}

func (s *Store) DueForCheckIn(_ context.Context, from, to time.Time) ([]model.Appointment, error) {
	return s.filter(func(a model.Appointment) bool {
		return a.Status == model.AppointmentPending && !a.CheckInTime.Before(from) && !a.CheckInTime.After(to)
	}, func(a model.Appointment) time.Time { return a.CheckInTime }), nil
}

func (s *Store) DueForCheckOut(_ context.Context, before time.Time) ([]model.Appointment, error) {
	return s.filter(func(a model.Appointment) bool {
		return a.Status == model.AppointmentInProgress && a.CheckOutTime.Before(before)
	}, func(a model.Appointment) time.Time { return a.CheckOutTime }), nil
}

func (s *Store) filter(keep func(model.Appointment) bool, by func(model.Appointment) time.Time) []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appointments {
		if keep(a) {
			s.attach(&a)
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b model.Appointment) int {
		if c := by(a).Compare(by(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
