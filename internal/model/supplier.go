package model

import "time"

// Supplier owns cards.  Card provisioning is gated by the supplier's
// Subscription: tracking must be enabled and the number of cards the
// supplier already owns must be below MaxCardCount.
type Supplier struct {
	ID        string    // suppliers.id
	Name      string    // suppliers.name
	CreatedAt time.Time // suppliers.created_at
}

type Subscription struct {
	ID                  string // subscriptions.id
	SupplierID          string // subscriptions.supplier_id
	CardTrackingEnabled bool   // subscriptions.card_tracking_enabled
	MaxCardCount        int    // subscriptions.max_card_count
	Active              bool   // subscriptions.active
}
