package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/card-tracking/internal/geo"
	"github.com/iliyamo/card-tracking/internal/model"
)

const cardColumns = `id, card_number, supplier_id, visitor_id, employee_id, is_active,
	issued_at, expires_at, last_latitude, last_longitude, last_accuracy, last_seen_at,
	battery_level, additional_info, version, created_at, updated_at`

// CardRepo provides data access to the cards table.
type CardRepo struct {
	db *sql.DB
}

func NewCardRepo(db *sql.DB) *CardRepo { return &CardRepo{db: db} }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCard(s rowScanner) (*model.Card, error) {
	var (
		c    model.Card
		info []byte
	)
	err := s.Scan(&c.ID, &c.CardNumber, &c.SupplierID, &c.VisitorID, &c.EmployeeID, &c.IsActive,
		&c.IssuedAt, &c.ExpiresAt, &c.Latitude, &c.Longitude, &c.Accuracy, &c.LastSeenAt,
		&c.BatteryPercentage, &info, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.AdditionalInfo = info
	return &c, nil
}

func (r *CardRepo) list(ctx context.Context, query string, args ...interface{}) ([]model.Card, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cards []model.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

// GetByID returns the card or ErrNotFound.
func (r *CardRepo) GetByID(ctx context.Context, id string) (*model.Card, error) {
	c, err := scanCard(r.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ByIDs loads several cards at once, keyed by id.  Missing ids are simply
// absent from the map.
func (r *CardRepo) ByIDs(ctx context.Context, ids []string) (map[string]*model.Card, error) {
	out := make(map[string]*model.Card, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	marks, args := placeholders(ids)
	cards, err := r.list(ctx, `SELECT `+cardColumns+` FROM cards WHERE id IN (`+marks+`)`, args...)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		out[cards[i].ID] = &cards[i]
	}
	return out, nil
}

// CreateTx inserts a new card.  Duplicate card numbers map to ErrConflict.
func (r *CardRepo) CreateTx(ctx context.Context, tx *sql.Tx, c *model.Card) error {
	var info interface{}
	if len(c.AdditionalInfo) > 0 {
		info = []byte(c.AdditionalInfo)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO cards (id, card_number, supplier_id, employee_id, is_active, expires_at, additional_info, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		c.ID, c.CardNumber, c.SupplierID, c.EmployeeID, c.IsActive, c.ExpiresAt, info)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *CardRepo) CountBySupplierTx(ctx context.Context, tx *sql.Tx, supplierID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE supplier_id = ?`, supplierID).Scan(&n)
	return n, err
}

// UpdatePositionTx mirrors a ping onto the card row unless the card has
// already seen a newer one.  It reports whether the row now reflects loc.
// The version column is left alone: pings must never invalidate a pending
// assignment.  Battery is only overwritten when the ping carried a reading.
func (r *CardRepo) UpdatePositionTx(ctx context.Context, tx *sql.Tx, loc *model.CardLocation, battery *int) (bool, error) {
	at := loc.Timestamp.UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE cards
		 SET last_latitude = ?, last_longitude = ?, last_accuracy = ?, last_seen_at = ?,
		     battery_level = COALESCE(?, battery_level)
		 WHERE id = ? AND (last_seen_at IS NULL OR last_seen_at <= ?)`,
		loc.Latitude, loc.Longitude, loc.Accuracy, at, battery, loc.CardID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	// Either the card is gone or the ping is older than last_seen_at.
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM cards WHERE id = ?`, loc.CardID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	return false, err
}

// AssignTx links the card to visitorID if it is still unassigned, active
// and at the expected version.
func (r *CardRepo) AssignTx(ctx context.Context, tx *sql.Tx, cardID string, version uint32, visitorID string, issuedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE cards SET visitor_id = ?, issued_at = ?, version = version + 1
		 WHERE id = ? AND version = ? AND visitor_id IS NULL AND is_active = 1`,
		visitorID, issuedAt.UTC(), cardID, version)
	if err != nil {
		return err
	}
	return rowsAffectedOne(res)
}

// ReleaseTx clears the visitor link and issue timestamp if the card is
// still held by visitorID at the expected version.
func (r *CardRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, cardID string, version uint32, visitorID string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE cards SET visitor_id = NULL, issued_at = NULL, version = version + 1
		 WHERE id = ? AND version = ? AND visitor_id = ?`,
		cardID, version, visitorID)
	if err != nil {
		return err
	}
	return rowsAffectedOne(res)
}

// Available lists active, unassigned cards, oldest first.
func (r *CardRepo) Available(ctx context.Context, limit int) ([]model.Card, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx,
		`SELECT `+cardColumns+` FROM cards
		 WHERE is_active = 1 AND visitor_id IS NULL
		 ORDER BY created_at ASC, id ASC LIMIT ?`, limit)
}

// InBox returns active cards whose mirrored position lies inside box.
// A box crossing the antimeridian is queried as two longitude ranges.
func (r *CardRepo) InBox(ctx context.Context, box geo.Box) ([]model.Card, error) {
	q := `SELECT ` + cardColumns + ` FROM cards
		  WHERE is_active = 1
		    AND last_latitude IS NOT NULL AND last_longitude IS NOT NULL
		    AND last_latitude BETWEEN ? AND ?`
	args := []interface{}{box.MinLat, box.MaxLat}
	if box.Wraps() {
		q += ` AND (last_longitude >= ? OR last_longitude <= ?)`
	} else {
		q += ` AND last_longitude BETWEEN ? AND ?`
	}
	args = append(args, box.MinLon, box.MaxLon)
	return r.list(ctx, q, args...)
}
