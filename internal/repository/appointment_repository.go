package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/card-tracking/internal/model"
)

const appointmentSelect = `SELECT a.id, a.visitor_id, a.scheduled_time, a.check_in_time, a.check_out_time, a.status, a.created_at,
	v.id, v.name, v.supplier_id, v.card_id, v.state, v.version, v.created_at, v.updated_at
	FROM appointments a
	JOIN visitors v ON v.id = a.visitor_id`

// AppointmentRepo reads appointments together with their visitor and the
// visitor's card.
type AppointmentRepo struct {
	db    *sql.DB
	cards *CardRepo
}

func NewAppointmentRepo(db *sql.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db, cards: NewCardRepo(db)}
}

func scanAppointment(s rowScanner) (*model.Appointment, error) {
	var (
		a model.Appointment
		v model.Visitor
	)
	err := s.Scan(&a.ID, &a.VisitorID, &a.ScheduledTime, &a.CheckInTime, &a.CheckOutTime, &a.Status, &a.CreatedAt,
		&v.ID, &v.Name, &v.SupplierID, &v.CardID, &v.State, &v.Version, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Visitor = &v
	return &a, nil
}

func (r *AppointmentRepo) GetByID(ctx context.Context, id string) (*model.Appointment, error) {
	a, err := scanAppointment(r.db.QueryRowContext(ctx, appointmentSelect+` WHERE a.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadCards(ctx, []*model.Appointment{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// DueForCheckIn lists pending appointments whose check-in time falls in
// [from, to], earliest first.
func (r *AppointmentRepo) DueForCheckIn(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	return r.query(ctx,
		appointmentSelect+` WHERE a.status = ? AND a.check_in_time BETWEEN ? AND ? ORDER BY a.check_in_time ASC, a.id ASC`,
		model.AppointmentPending, from.UTC(), to.UTC())
}

// DueForCheckOut lists in-progress appointments whose check-out time is
// before the given instant.
func (r *AppointmentRepo) DueForCheckOut(ctx context.Context, before time.Time) ([]model.Appointment, error) {
	return r.query(ctx,
		appointmentSelect+` WHERE a.status = ? AND a.check_out_time < ? ORDER BY a.check_out_time ASC, a.id ASC`,
		model.AppointmentInProgress, before.UTC())
}

// SetStatus moves an appointment from one status to another.  It returns
// ErrStaleVersion when the appointment is no longer in status from.
func (r *AppointmentRepo) SetStatus(ctx context.Context, id string, from, to model.AppointmentStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE appointments SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return err
	}
	return rowsAffectedOne(res)
}

func (r *AppointmentRepo) query(ctx context.Context, q string, args ...interface{}) ([]model.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var ptrs []*model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		ptrs = append(ptrs, a)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := r.loadCards(ctx, ptrs); err != nil {
		return nil, err
	}
	out := make([]model.Appointment, 0, len(ptrs))
	for _, a := range ptrs {
		out = append(out, *a)
	}
	return out, nil
}

// loadCards attaches each visitor's card with a single IN query.
func (r *AppointmentRepo) loadCards(ctx context.Context, appts []*model.Appointment) error {
	var ids []string
	for _, a := range appts {
		if a.Visitor != nil && a.Visitor.CardID != nil {
			ids = append(ids, *a.Visitor.CardID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	cards, err := r.cards.ByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, a := range appts {
		if a.Visitor != nil && a.Visitor.CardID != nil {
			a.Visitor.Card = cards[*a.Visitor.CardID]
		}
	}
	return nil
}
