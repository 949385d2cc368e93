package model

import "time"

type AppointmentStatus string

const (
	AppointmentPending    AppointmentStatus = "pending"
	AppointmentInProgress AppointmentStatus = "in_progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
)

// Appointment is a scheduled visit.  CheckInTime drives card assignment,
// CheckOutTime drives release.  Visitor is eager-loaded (with its card)
// by the scheduler queries.
type Appointment struct {
	ID            string            // appointments.id
	VisitorID     string            // appointments.visitor_id
	ScheduledTime time.Time         // appointments.scheduled_time
	CheckInTime   time.Time         // appointments.check_in_time
	CheckOutTime  time.Time         // appointments.check_out_time
	Status        AppointmentStatus // appointments.status
	CreatedAt     time.Time         // appointments.created_at

	Visitor *Visitor
}
