package service

import (
	"errors"
	"fmt"
)

// Error kinds.  Every *Error unwraps to exactly one of these so callers
// can branch with errors.Is without knowing individual codes.
var (
	ErrNotFound      = errors.New("not found")
	ErrRuleViolation = errors.New("rule violation")
	ErrConflict      = errors.New("conflict")
	ErrInvalidInput  = errors.New("invalid input")
)

const (
	CodeCardNotFound        = "card_not_found"
	CodeVisitorNotFound     = "visitor_not_found"
	CodeAppointmentNotFound = "appointment_not_found"
	CodeVisitorCompleted    = "visitor_completed"
	CodeVisitorHasCard      = "visitor_has_card"
	CodeCardInactive        = "card_inactive"
	CodeCardAlreadyAssigned = "card_already_assigned"
	CodeCardNotAssigned     = "card_not_assigned"
	CodeCardConflict        = "card_conflict"
	CodeStateConflict       = "state_conflict"
	CodeCardNumberTaken     = "card_number_taken"
	CodeTrackingDisabled    = "tracking_disabled"
	CodeQuotaExceeded       = "quota_exceeded"
	CodeInvalidCoordinates  = "invalid_coordinates"
	CodeInvalidRadius       = "invalid_radius"
	CodeInvalidBattery      = "invalid_battery"
	CodeInvalidCard         = "invalid_card"
	CodeInvalidTransition   = "invalid_transition"
)

// Error is a validation or business-rule failure with a stable code.
type Error struct {
	Code    string
	Message string
	Kind    error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Kind: kind}
}

// CodeOf returns the code of err if it is an *Error, or "" otherwise.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
