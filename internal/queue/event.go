// Package queue carries card lifecycle events over RabbitMQ and defines
// the event payload shared with the NATS telemetry bus.
package queue

import "time"

type EventType string

const (
	EventCardCreated          EventType = "card.created"
	EventCardAssigned         EventType = "card.assigned"
	EventCardReleased         EventType = "card.released"
	EventLocationRecorded     EventType = "card.location.recorded"
	EventAppointmentStarted   EventType = "appointment.started"
	EventAppointmentCompleted EventType = "appointment.completed"
)

// CardEvent is published after a state change commits.  Consumers get
// enough context to audit or notify without reading the database.
// Coordinates are only set on location events.
type CardEvent struct {
	Type          EventType `json:"type"`
	CardID        string    `json:"card_id,omitempty"`
	VisitorID     string    `json:"visitor_id,omitempty"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	SupplierID    string    `json:"supplier_id,omitempty"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
	Accuracy      *float64  `json:"accuracy,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Lifecycle reports whether the event changes ownership or appointment
// state.  Those are durable; location telemetry is not.
func (e CardEvent) Lifecycle() bool { return e.Type != EventLocationRecorded }
