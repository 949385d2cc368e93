package model

import "time"

// CardLocation is one row of the append-only `card_locations` history.
// Rows are never updated; the newest by Timestamp is the card's last
// known location.
type CardLocation struct {
	ID        uint64    // card_locations.id
	CardID    string    // card_locations.card_id
	Latitude  float64   // card_locations.latitude
	Longitude float64   // card_locations.longitude
	Accuracy  *float64  // card_locations.accuracy (nullable)
	Timestamp time.Time // card_locations.recorded_at
}
