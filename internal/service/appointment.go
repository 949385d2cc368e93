package service

import (
	"context"
	"errors"

	"github.com/iliyamo/card-tracking/internal/model"
	"github.com/iliyamo/card-tracking/internal/queue"
	"github.com/iliyamo/card-tracking/internal/repository"
)

func (s *TrackingService) loadAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, CodeAppointmentNotFound, "appointment %s does not exist", id)
		}
		return nil, err
	}
	if a.Visitor == nil {
		v, err := s.store.GetVisitor(ctx, a.VisitorID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, newError(ErrNotFound, CodeVisitorNotFound, "visitor %s does not exist", a.VisitorID)
			}
			return nil, err
		}
		a.Visitor = v
	}
	return a, nil
}

func stateConflict(err error, what, id string) error {
	if errors.Is(err, repository.ErrStaleVersion) {
		return newError(ErrConflict, CodeStateConflict, "%s %s changed concurrently", what, id)
	}
	return err
}

// CheckIn starts a pending appointment.  A pending visitor moves to
// in_progress; a visitor already in progress (for instance because a
// card was just assigned) is left as is.
func (s *TrackingService) CheckIn(ctx context.Context, appointmentID string) (*model.Appointment, error) {
	a, err := s.loadAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AppointmentPending {
		return nil, newError(ErrRuleViolation, CodeInvalidTransition, "appointment %s is %s, not pending", a.ID, a.Status)
	}
	v := a.Visitor
	switch v.State {
	case model.VisitorCompleted:
		return nil, newError(ErrRuleViolation, CodeVisitorCompleted, "visitor %s has already completed the visit", v.ID)
	case model.VisitorPending:
		if err := s.store.SetVisitorState(ctx, v.ID, v.Version, model.VisitorPending, model.VisitorInProgress); err != nil {
			return nil, stateConflict(err, "visitor", v.ID)
		}
		v.State = model.VisitorInProgress
		v.Version++
	}
	if err := s.store.SetAppointmentStatus(ctx, a.ID, model.AppointmentPending, model.AppointmentInProgress); err != nil {
		return nil, stateConflict(err, "appointment", a.ID)
	}
	a.Status = model.AppointmentInProgress
	s.publish(ctx, queue.CardEvent{Type: queue.EventAppointmentStarted, AppointmentID: a.ID, VisitorID: v.ID})
	return a, nil
}

// CheckOut completes an in-progress appointment.  A card still held by
// the visitor is released, which also completes the visitor; otherwise
// the visitor is completed directly.
func (s *TrackingService) CheckOut(ctx context.Context, appointmentID string) (*model.Appointment, error) {
	a, err := s.loadAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AppointmentInProgress {
		return nil, newError(ErrRuleViolation, CodeInvalidTransition, "appointment %s is %s, not in_progress", a.ID, a.Status)
	}
	v := a.Visitor
	switch {
	case v.HasCard():
		if _, err := s.UnassignFromVisitor(ctx, *v.CardID); err != nil {
			return nil, err
		}
		v.CardID = nil
		v.Card = nil
		v.State = model.VisitorCompleted
		v.Version++
	case v.State == model.VisitorInProgress:
		if err := s.store.SetVisitorState(ctx, v.ID, v.Version, model.VisitorInProgress, model.VisitorCompleted); err != nil {
			return nil, stateConflict(err, "visitor", v.ID)
		}
		v.State = model.VisitorCompleted
		v.Version++
	}
	if err := s.store.SetAppointmentStatus(ctx, a.ID, model.AppointmentInProgress, model.AppointmentCompleted); err != nil {
		return nil, stateConflict(err, "appointment", a.ID)
	}
	a.Status = model.AppointmentCompleted
	s.publish(ctx, queue.CardEvent{Type: queue.EventAppointmentCompleted, AppointmentID: a.ID, VisitorID: v.ID})
	return a, nil
}
