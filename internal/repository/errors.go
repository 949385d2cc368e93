// Package repository is the MySQL system of record for cards, their
// location history, visitors and appointments.  Sentinel errors below let
// the service layer tell missing rows from lost races and quota failures
// without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrStaleVersion is returned when a compare-and-swap update matched no
// row: another writer changed the row (or its precondition) first.
// Callers should reload and decide again rather than retry blindly.
var ErrStaleVersion = errors.New("stale version")

// ErrConflict is returned when an insert collides with a unique key, such
// as a duplicate card number.
var ErrConflict = errors.New("conflict")

// ErrTrackingDisabled is returned when a supplier without an active
// card-tracking subscription tries to provision a card.
var ErrTrackingDisabled = errors.New("card tracking not enabled for supplier")

// ErrQuotaExceeded is returned when a supplier already owns as many
// cards as its subscription allows.
var ErrQuotaExceeded = errors.New("card quota exceeded")

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
