package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/card-tracking/internal/model"
)

const visitorColumns = `id, name, supplier_id, card_id, state, version, created_at, updated_at`

// VisitorRepo provides data access to the visitors table.  Every state or
// card change is a compare-and-swap on version.
type VisitorRepo struct {
	db *sql.DB
}

func NewVisitorRepo(db *sql.DB) *VisitorRepo { return &VisitorRepo{db: db} }

func scanVisitor(s rowScanner) (*model.Visitor, error) {
	var v model.Visitor
	if err := s.Scan(&v.ID, &v.Name, &v.SupplierID, &v.CardID, &v.State, &v.Version, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VisitorRepo) GetByID(ctx context.Context, id string) (*model.Visitor, error) {
	v, err := scanVisitor(r.db.QueryRowContext(ctx, `SELECT `+visitorColumns+` FROM visitors WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// AssignTx links cardID to the visitor and moves it to in_progress.  A
// completed visitor or one that already holds a card never matches.
func (r *VisitorRepo) AssignTx(ctx context.Context, tx *sql.Tx, visitorID string, version uint32, cardID string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE visitors SET card_id = ?, state = ?, version = version + 1
		 WHERE id = ? AND version = ? AND card_id IS NULL AND state <> ?`,
		cardID, model.VisitorInProgress, visitorID, version, model.VisitorCompleted)
	if err != nil {
		return err
	}
	return rowsAffectedOne(res)
}

// ReleaseTx clears the card link and completes the visitor.
func (r *VisitorRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, visitorID string, version uint32, cardID string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE visitors SET card_id = NULL, state = ?, version = version + 1
		 WHERE id = ? AND version = ? AND card_id = ?`,
		model.VisitorCompleted, visitorID, version, cardID)
	if err != nil {
		return err
	}
	return rowsAffectedOne(res)
}

// SetState moves a visitor from one state to the next.
func (r *VisitorRepo) SetState(ctx context.Context, id string, version uint32, from, to model.VisitorState) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE visitors SET state = ?, version = version + 1 WHERE id = ? AND version = ? AND state = ?`,
		to, id, version, from)
	if err != nil {
		return err
	}
	return rowsAffectedOne(res)
}
