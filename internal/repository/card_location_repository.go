package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/card-tracking/internal/model"
)

// MaxHistoryPage caps a single history page.
const MaxHistoryPage = 500

// CardLocationRepo provides data access to the append-only
// card_locations table.  Rows are inserted, never updated.
type CardLocationRepo struct {
	db *sql.DB
}

func NewCardLocationRepo(db *sql.DB) *CardLocationRepo { return &CardLocationRepo{db: db} }

func (r *CardLocationRepo) InsertTx(ctx context.Context, tx *sql.Tx, loc *model.CardLocation) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO card_locations (card_id, latitude, longitude, accuracy, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		loc.CardID, loc.Latitude, loc.Longitude, loc.Accuracy, loc.Timestamp.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	loc.ID = uint64(id)
	return nil
}

// Latest returns the newest location of a card or ErrNotFound when the
// card never reported.
func (r *CardLocationRepo) Latest(ctx context.Context, cardID string) (*model.CardLocation, error) {
	var l model.CardLocation
	err := r.db.QueryRowContext(ctx,
		`SELECT id, card_id, latitude, longitude, accuracy, recorded_at
		 FROM card_locations WHERE card_id = ?
		 ORDER BY recorded_at DESC, id DESC LIMIT 1`, cardID).
		Scan(&l.ID, &l.CardID, &l.Latitude, &l.Longitude, &l.Accuracy, &l.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListByCard pages through a card's history, newest first.
func (r *CardLocationRepo) ListByCard(ctx context.Context, cardID string, limit, offset int) ([]model.CardLocation, error) {
	if limit <= 0 || limit > MaxHistoryPage {
		limit = MaxHistoryPage
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, card_id, latitude, longitude, accuracy, recorded_at
		 FROM card_locations WHERE card_id = ?
		 ORDER BY recorded_at DESC, id DESC LIMIT ? OFFSET ?`, cardID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.CardLocation{}
	for rows.Next() {
		var l model.CardLocation
		if err := rows.Scan(&l.ID, &l.CardID, &l.Latitude, &l.Longitude, &l.Accuracy, &l.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
