package model

import "time"

// VisitorState tracks a visitor through a visit.  It only moves forward:
// pending -> in_progress -> completed.
type VisitorState string

const (
	VisitorPending    VisitorState = "pending"
	VisitorInProgress VisitorState = "in_progress"
	VisitorCompleted  VisitorState = "completed"
)

// CanMoveTo reports whether next is a legal successor of s.
func (s VisitorState) CanMoveTo(next VisitorState) bool {
	switch s {
	case VisitorPending:
		return next == VisitorInProgress
	case VisitorInProgress:
		return next == VisitorCompleted
	}
	return false
}

// Visitor mirrors the `visitors` table.  CardID and the card's
// VisitorID are always written together.  Card is only populated by
// queries that eager-load it (the appointment scans).
type Visitor struct {
	ID         string       // visitors.id
	Name       string       // visitors.name
	SupplierID *string      // visitors.supplier_id (nullable)
	CardID     *string      // visitors.card_id (nullable)
	State      VisitorState // visitors.state
	Version    uint32       // visitors.version
	CreatedAt  time.Time    // visitors.created_at
	UpdatedAt  time.Time    // visitors.updated_at

	Card *Card
}

// HasCard reports whether the visitor currently holds a card.
func (v *Visitor) HasCard() bool { return v.CardID != nil }
