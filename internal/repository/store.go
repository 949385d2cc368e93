package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/card-tracking/internal/geo"
	"github.com/iliyamo/card-tracking/internal/model"
)

// Store groups the table repositories and runs the multi-row writes that
// must commit together.
type Store struct {
	db           *sql.DB
	Cards        *CardRepo
	Locations    *CardLocationRepo
	Visitors     *VisitorRepo
	Appointments *AppointmentRepo
	Suppliers    *SupplierRepo
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:           db,
		Cards:        NewCardRepo(db),
		Locations:    NewCardLocationRepo(db),
		Visitors:     NewVisitorRepo(db),
		Appointments: NewAppointmentRepo(db),
		Suppliers:    NewSupplierRepo(db),
	}
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// AssignParams carries the versions both rows were read at.  The update
// only lands if neither row changed since.
type AssignParams struct {
	CardID         string
	CardVersion    uint32
	VisitorID      string
	VisitorVersion uint32
	IssuedAt       time.Time
}

type ReleaseParams struct {
	CardID         string
	CardVersion    uint32
	VisitorID      string
	VisitorVersion uint32
}

func (s *Store) GetCard(ctx context.Context, id string) (*model.Card, error) {
	return s.Cards.GetByID(ctx, id)
}

func (s *Store) GetVisitor(ctx context.Context, id string) (*model.Visitor, error) {
	return s.Visitors.GetByID(ctx, id)
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	return s.Appointments.GetByID(ctx, id)
}

// AssignCard links card and visitor in one transaction.  Either both
// rows change or neither does.
func (s *Store) AssignCard(ctx context.Context, p AssignParams) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.Cards.AssignTx(ctx, tx, p.CardID, p.CardVersion, p.VisitorID, p.IssuedAt); err != nil {
			return fmt.Errorf("assign card %s: %w", p.CardID, err)
		}
		if err := s.Visitors.AssignTx(ctx, tx, p.VisitorID, p.VisitorVersion, p.CardID); err != nil {
			return fmt.Errorf("assign visitor %s: %w", p.VisitorID, err)
		}
		return nil
	})
}

// ReleaseCard unlinks card and visitor and completes the visitor.
func (s *Store) ReleaseCard(ctx context.Context, p ReleaseParams) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.Cards.ReleaseTx(ctx, tx, p.CardID, p.CardVersion, p.VisitorID); err != nil {
			return fmt.Errorf("release card %s: %w", p.CardID, err)
		}
		if err := s.Visitors.ReleaseTx(ctx, tx, p.VisitorID, p.VisitorVersion, p.CardID); err != nil {
			return fmt.Errorf("release visitor %s: %w", p.VisitorID, err)
		}
		return nil
	})
}

// RecordLocation appends loc to the history and mirrors it onto the card
// row when it is the newest ping so far.  current is false for a ping that
// arrived after a newer one; it is still kept in the history.  loc.ID is
// filled in on success.
func (s *Store) RecordLocation(ctx context.Context, loc *model.CardLocation, battery *int) (current bool, err error) {
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		var uerr error
		if current, uerr = s.Cards.UpdatePositionTx(ctx, tx, loc, battery); uerr != nil {
			return uerr
		}
		return s.Locations.InsertTx(ctx, tx, loc)
	})
	if err != nil {
		return false, err
	}
	return current, nil
}

func (s *Store) LatestLocation(ctx context.Context, cardID string) (*model.CardLocation, error) {
	return s.Locations.Latest(ctx, cardID)
}

func (s *Store) LocationHistory(ctx context.Context, cardID string, limit, offset int) ([]model.CardLocation, error) {
	return s.Locations.ListByCard(ctx, cardID, limit, offset)
}

func (s *Store) CardsInBox(ctx context.Context, box geo.Box) ([]model.Card, error) {
	return s.Cards.InBox(ctx, box)
}

func (s *Store) AvailableCards(ctx context.Context, limit int) ([]model.Card, error) {
	return s.Cards.Available(ctx, limit)
}

// CreateCard inserts c after checking the supplier's subscription.  The
// subscription row is locked so concurrent provisioning for one supplier
// cannot overshoot the quota.  Nothing is written when a check fails.
func (s *Store) CreateCard(ctx context.Context, c *model.Card) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		sub, err := s.Suppliers.SubscriptionForUpdateTx(ctx, tx, c.SupplierID)
		if errors.Is(err, ErrNotFound) {
			return ErrTrackingDisabled
		}
		if err != nil {
			return err
		}
		if !sub.Active || !sub.CardTrackingEnabled {
			return ErrTrackingDisabled
		}
		n, err := s.Cards.CountBySupplierTx(ctx, tx, c.SupplierID)
		if err != nil {
			return err
		}
		if n >= sub.MaxCardCount {
			return ErrQuotaExceeded
		}
		return s.Cards.CreateTx(ctx, tx, c)
	})
}

func (s *Store) SetAppointmentStatus(ctx context.Context, id string, from, to model.AppointmentStatus) error {
	return s.Appointments.SetStatus(ctx, id, from, to)
}

func (s *Store) SetVisitorState(ctx context.Context, id string, version uint32, from, to model.VisitorState) error {
	return s.Visitors.SetState(ctx, id, version, from, to)
}

func (s *Store) DueForCheckIn(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	return s.Appointments.DueForCheckIn(ctx, from, to)
}

func (s *Store) DueForCheckOut(ctx context.Context, before time.Time) ([]model.Appointment, error) {
	return s.Appointments.DueForCheckOut(ctx, before)
}

// placeholders returns "?,?,...,?" with n markers and the ids as args.
func placeholders(ids []string) (string, []interface{}) {
	args := make([]interface{}, 0, len(ids))
	marks := make([]string, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
		marks = append(marks, "?")
	}
	return strings.Join(marks, ","), args
}

// rowsAffectedOne maps a zero-row update to ErrStaleVersion.
func rowsAffectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleVersion
	}
	return nil
}
