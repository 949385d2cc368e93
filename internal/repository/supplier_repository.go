package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/card-tracking/internal/model"
)

// SupplierRepo reads supplier subscriptions for quota checks.
type SupplierRepo struct {
	db *sql.DB
}

func NewSupplierRepo(db *sql.DB) *SupplierRepo { return &SupplierRepo{db: db} }

// SubscriptionForUpdateTx locks and returns the supplier's subscription.
// The lock is held until tx ends, serialising card provisioning per
// supplier.
func (r *SupplierRepo) SubscriptionForUpdateTx(ctx context.Context, tx *sql.Tx, supplierID string) (*model.Subscription, error) {
	var s model.Subscription
	err := tx.QueryRowContext(ctx,
		`SELECT id, supplier_id, card_tracking_enabled, max_card_count, active
		 FROM subscriptions WHERE supplier_id = ? FOR UPDATE`, supplierID).
		Scan(&s.ID, &s.SupplierID, &s.CardTrackingEnabled, &s.MaxCardCount, &s.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
