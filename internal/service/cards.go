package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/card-tracking/internal/model"
	"github.com/iliyamo/card-tracking/internal/queue"
	"github.com/iliyamo/card-tracking/internal/repository"
)

// NewCard is the input for provisioning a card.
type NewCard struct {
	CardNumber     string
	SupplierID     string
	EmployeeID     *string
	ExpiresAt      *time.Time
	AdditionalInfo json.RawMessage
}

// CreateCard provisions an active, unassigned card subject to the
// supplier's subscription quota.
func (s *TrackingService) CreateCard(ctx context.Context, in NewCard) (*model.Card, error) {
	in.CardNumber = strings.TrimSpace(in.CardNumber)
	if in.CardNumber == "" || in.SupplierID == "" {
		return nil, newError(ErrInvalidInput, CodeInvalidCard, "card_number and supplier_id are required")
	}
	if len(in.AdditionalInfo) > 0 && !json.Valid(in.AdditionalInfo) {
		return nil, newError(ErrInvalidInput, CodeInvalidCard, "additional_info must be valid JSON")
	}
	now := s.clock.Now().UTC()
	c := &model.Card{
		ID:             uuid.NewString(),
		CardNumber:     in.CardNumber,
		SupplierID:     in.SupplierID,
		EmployeeID:     in.EmployeeID,
		IsActive:       true,
		ExpiresAt:      in.ExpiresAt,
		AdditionalInfo: in.AdditionalInfo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.store.CreateCard(ctx, c)
	switch {
	case errors.Is(err, repository.ErrQuotaExceeded):
		return nil, newError(ErrRuleViolation, CodeQuotaExceeded, "supplier %s reached its card quota", in.SupplierID)
	case errors.Is(err, repository.ErrTrackingDisabled):
		return nil, newError(ErrRuleViolation, CodeTrackingDisabled, "card tracking is not enabled for supplier %s", in.SupplierID)
	case errors.Is(err, repository.ErrConflict):
		return nil, newError(ErrConflict, CodeCardNumberTaken, "card number %s is already registered", in.CardNumber)
	case err != nil:
		return nil, err
	}
	s.publish(ctx, queue.CardEvent{Type: queue.EventCardCreated, CardID: c.ID, SupplierID: c.SupplierID})
	return c, nil
}
