package service

import (
	"context"
	"testing"
	"time"

	"github.com/iliyamo/card-tracking/internal/model"
	"github.com/iliyamo/card-tracking/internal/queue"
)

func (f *fixture) appointment(id, visitorID string, status model.AppointmentStatus) {
	f.store.PutAppointment(model.Appointment{
		ID:           id,
		VisitorID:    visitorID,
		CheckInTime:  t0,
		CheckOutTime: t0.Add(time.Hour),
		Status:       status,
	})
}

func TestCheckInAndOutWithoutCard(t *testing.T) {
	f := newFixture(t, true)
	f.visitor("V1")
	f.appointment("A1", "V1", model.AppointmentPending)
	ctx := context.Background()

	a, err := f.svc.CheckIn(ctx, "A1")
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if a.Status != model.AppointmentInProgress {
		t.Fatalf("expected in_progress, got %s", a.Status)
	}
	if v, _ := f.store.Visitor("V1"); v.State != model.VisitorInProgress {
		t.Fatalf("visitor should be in progress, got %s", v.State)
	}

	_, err = f.svc.CheckIn(ctx, "A1")
	wantCode(t, err, ErrRuleViolation, CodeInvalidTransition)

	if _, err := f.svc.CheckOut(ctx, "A1"); err != nil {
		t.Fatalf("check-out: %v", err)
	}
	stored, _ := f.store.Appointment("A1")
	v, _ := f.store.Visitor("V1")
	if stored.Status != model.AppointmentCompleted || v.State != model.VisitorCompleted {
		t.Fatalf("expected completed/completed, got %s/%s", stored.Status, v.State)
	}

	_, err = f.svc.CheckOut(ctx, "A1")
	wantCode(t, err, ErrRuleViolation, CodeInvalidTransition)
}

func TestCheckOutReleasesHeldCard(t *testing.T) {
	f := newFixture(t, true)
	f.card("C1")
	f.visitor("V1")
	f.appointment("A1", "V1", model.AppointmentPending)
	ctx := context.Background()

	if _, err := f.svc.AssignToVisitor(ctx, "C1", "V1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.CheckIn(ctx, "A1"); err != nil {
		t.Fatalf("check-in with card: %v", err)
	}
	if _, err := f.svc.CheckOut(ctx, "A1"); err != nil {
		t.Fatalf("check-out: %v", err)
	}
	c, _ := f.store.Card("C1")
	v, _ := f.store.Visitor("V1")
	if c.VisitorID != nil || v.CardID != nil || v.State != model.VisitorCompleted {
		t.Fatalf("card not released: card=%+v visitor=%+v", c, v)
	}
	want := []queue.EventType{queue.EventCardAssigned, queue.EventAppointmentStarted, queue.EventCardReleased, queue.EventAppointmentCompleted}
	got := f.events.types()
	if len(got) != len(want) {
		t.Fatalf("events: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events: got %v want %v", got, want)
		}
	}
}

func TestCheckInCompletedVisitor(t *testing.T) {
	f := newFixture(t, true)
	f.store.PutVisitor(model.Visitor{ID: "V1", State: model.VisitorCompleted})
	f.appointment("A2", "V1", model.AppointmentPending)
	_, err := f.svc.CheckIn(context.Background(), "A2")
	wantCode(t, err, ErrRuleViolation, CodeVisitorCompleted)

	_, err = f.svc.CheckIn(context.Background(), "missing")
	wantCode(t, err, ErrNotFound, CodeAppointmentNotFound)
}
