package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/card-tracking/internal/model"
	"github.com/iliyamo/card-tracking/internal/queue"
	"github.com/iliyamo/card-tracking/internal/repository"
)

// AssignToVisitor hands cardID to visitorID.  Checks run in a fixed order
// so the caller always learns the first reason that applies: visitor
// exists, visitor not completed, visitor has no card, card exists, card
// active, card unassigned.  Both rows are written in one transaction
// guarded by their versions; a concurrent writer surfaces as
// card_conflict.  The event goes out after the card lock is released.
func (s *TrackingService) AssignToVisitor(ctx context.Context, cardID, visitorID string) (*model.Card, error) {
	c, err := s.assign(ctx, cardID, visitorID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, queue.CardEvent{Type: queue.EventCardAssigned, CardID: c.ID, VisitorID: visitorID, SupplierID: c.SupplierID})
	return c, nil
}

// assign runs the checks and the write under the card lock.
func (s *TrackingService) assign(ctx context.Context, cardID, visitorID string) (*model.Card, error) {
	defer s.locks.Lock(cardID)()

	v, err := s.store.GetVisitor(ctx, visitorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, CodeVisitorNotFound, "visitor %s does not exist", visitorID)
		}
		return nil, err
	}
	if v.State == model.VisitorCompleted {
		return nil, newError(ErrRuleViolation, CodeVisitorCompleted, "visitor %s has already completed the visit", visitorID)
	}
	if v.HasCard() {
		return nil, newError(ErrRuleViolation, CodeVisitorHasCard, "visitor %s already holds card %s", visitorID, *v.CardID)
	}

	c, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, cardNotFound(cardID)
		}
		return nil, err
	}
	if !c.IsActive {
		return nil, newError(ErrRuleViolation, CodeCardInactive, "card %s is not active", cardID)
	}
	if c.Assigned() {
		return nil, newError(ErrRuleViolation, CodeCardAlreadyAssigned, "card %s is already assigned", cardID)
	}

	now := s.clock.Now().UTC()
	err = s.store.AssignCard(ctx, repository.AssignParams{
		CardID:         c.ID,
		CardVersion:    c.Version,
		VisitorID:      v.ID,
		VisitorVersion: v.Version,
		IssuedAt:       now,
	})
	if errors.Is(err, repository.ErrStaleVersion) {
		return nil, newError(ErrConflict, CodeCardConflict, "card %s or visitor %s changed concurrently", cardID, visitorID)
	}
	if err != nil {
		return nil, err
	}

	c.VisitorID = &v.ID
	c.IssuedAt = &now
	c.Version++
	s.log.WithFields(logrus.Fields{"card_id": c.ID, "visitor_id": v.ID}).Info("card assigned")
	return c, nil
}

// UnassignFromVisitor takes cardID back from its visitor and completes
// the visitor.
func (s *TrackingService) UnassignFromVisitor(ctx context.Context, cardID string) (*model.Card, error) {
	c, visitorID, err := s.release(ctx, cardID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, queue.CardEvent{Type: queue.EventCardReleased, CardID: c.ID, VisitorID: visitorID, SupplierID: c.SupplierID})
	return c, nil
}

func (s *TrackingService) release(ctx context.Context, cardID string) (*model.Card, string, error) {
	defer s.locks.Lock(cardID)()

	c, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", cardNotFound(cardID)
		}
		return nil, "", err
	}
	if !c.Assigned() {
		return nil, "", newError(ErrRuleViolation, CodeCardNotAssigned, "card %s is not assigned", cardID)
	}
	visitorID := *c.VisitorID
	v, err := s.store.GetVisitor(ctx, visitorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", newError(ErrNotFound, CodeVisitorNotFound, "visitor %s does not exist", visitorID)
		}
		return nil, "", err
	}

	err = s.store.ReleaseCard(ctx, repository.ReleaseParams{
		CardID:         c.ID,
		CardVersion:    c.Version,
		VisitorID:      v.ID,
		VisitorVersion: v.Version,
	})
	if errors.Is(err, repository.ErrStaleVersion) {
		return nil, "", newError(ErrConflict, CodeCardConflict, "card %s or visitor %s changed concurrently", cardID, visitorID)
	}
	if err != nil {
		return nil, "", err
	}

	c.VisitorID = nil
	c.IssuedAt = nil
	c.Version++
	s.log.WithFields(logrus.Fields{"card_id": c.ID, "visitor_id": visitorID}).Info("card released")
	return c, visitorID, nil
}
