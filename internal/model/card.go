package model

import (
	"encoding/json"
	"time"
)

// Card represents a physical visitor access card as stored in the
// `cards` table.  The position fields mirror the most recent ping so
// proximity queries can run against the card row without touching the
// location history.  Version is bumped on every assignment change and
// is used for compare-and-swap updates; position updates leave it alone.
//
// Fields:
//  ID                – UUID primary key.
//  CardNumber        – printed number, unique across suppliers.
//  SupplierID        – supplier that provisioned the card.
//  VisitorID         – visitor currently holding the card (nullable).
//  EmployeeID        – employee the card is registered to (nullable).
//  IsActive          – inactive cards are never handed out.
//  IssuedAt          – set on assignment, cleared on release.
//  Latitude/Longitude/Accuracy – mirror of the last ping (nullable).
//  BatteryPercentage – last reported battery level (nullable).
//  AdditionalInfo    – free-form JSON supplied at provisioning.
type Card struct {
	ID                string          // cards.id
	CardNumber        string          // cards.card_number
	SupplierID        string          // cards.supplier_id
	VisitorID         *string         // cards.visitor_id (nullable)
	EmployeeID        *string         // cards.employee_id (nullable)
	IsActive          bool            // cards.is_active
	IssuedAt          *time.Time      // cards.issued_at (nullable)
	ExpiresAt         *time.Time      // cards.expires_at (nullable)
	Latitude          *float64        // cards.last_latitude
	Longitude         *float64        // cards.last_longitude
	Accuracy          *float64        // cards.last_accuracy
	LastSeenAt        *time.Time      // cards.last_seen_at
	BatteryPercentage *int            // cards.battery_level
	AdditionalInfo    json.RawMessage // cards.additional_info
	Version           uint32          // cards.version
	CreatedAt         time.Time       // cards.created_at
	UpdatedAt         time.Time       // cards.updated_at
}

// Assigned reports whether the card is linked to a visitor.
func (c *Card) Assigned() bool { return c.VisitorID != nil }

// HasPosition reports whether the card has ever reported a location.
func (c *Card) HasPosition() bool { return c.Latitude != nil && c.Longitude != nil }
