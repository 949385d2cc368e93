package handler

import (
	"encoding/json"
	"time"

	"github.com/iliyamo/card-tracking/internal/model"
	"github.com/iliyamo/card-tracking/internal/service"
)

type cardResponse struct {
	ID                string          `json:"id"`
	CardNumber        string          `json:"card_number"`
	SupplierID        string          `json:"supplier_id"`
	VisitorID         *string         `json:"visitor_id"`
	EmployeeID        *string         `json:"employee_id,omitempty"`
	IsActive          bool            `json:"is_active"`
	IssuedAt          *time.Time      `json:"issued_at"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty"`
	Latitude          *float64        `json:"latitude"`
	Longitude         *float64        `json:"longitude"`
	LastSeenAt        *time.Time      `json:"last_seen_at"`
	BatteryPercentage *int            `json:"battery_percentage"`
	AdditionalInfo    json.RawMessage `json:"additional_info,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

func toCard(c *model.Card) cardResponse {
	return cardResponse{
		ID:                c.ID,
		CardNumber:        c.CardNumber,
		SupplierID:        c.SupplierID,
		VisitorID:         c.VisitorID,
		EmployeeID:        c.EmployeeID,
		IsActive:          c.IsActive,
		IssuedAt:          c.IssuedAt,
		ExpiresAt:         c.ExpiresAt,
		Latitude:          c.Latitude,
		Longitude:         c.Longitude,
		LastSeenAt:        c.LastSeenAt,
		BatteryPercentage: c.BatteryPercentage,
		AdditionalInfo:    c.AdditionalInfo,
		CreatedAt:         c.CreatedAt,
	}
}

type locationResponse struct {
	CardID    string    `json:"card_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

func fromHistory(l model.CardLocation) locationResponse {
	return locationResponse{CardID: l.CardID, Latitude: l.Latitude, Longitude: l.Longitude, Accuracy: l.Accuracy, Timestamp: l.Timestamp}
}

func fromLocation(l *service.Location) locationResponse {
	return locationResponse{CardID: l.CardID, Latitude: l.Latitude, Longitude: l.Longitude, Accuracy: l.Accuracy, Timestamp: l.Timestamp, Source: l.Source}
}

type nearbyResponse struct {
	CardID         string  `json:"card_id"`
	CardNumber     string  `json:"card_number,omitempty"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	DistanceMeters float64 `json:"distance_meters"`
	Source         string  `json:"source"`
}

type appointmentResponse struct {
	ID           string    `json:"id"`
	VisitorID    string    `json:"visitor_id"`
	Status       string    `json:"status"`
	VisitorState string    `json:"visitor_state,omitempty"`
	CardID       *string   `json:"card_id"`
	CheckInTime  time.Time `json:"check_in_time"`
	CheckOutTime time.Time `json:"check_out_time"`
}

func toAppointment(a *model.Appointment) appointmentResponse {
	out := appointmentResponse{
		ID:           a.ID,
		VisitorID:    a.VisitorID,
		Status:       string(a.Status),
		CheckInTime:  a.CheckInTime,
		CheckOutTime: a.CheckOutTime,
	}
	if a.Visitor != nil {
		out.VisitorState = string(a.Visitor.State)
		out.CardID = a.Visitor.CardID
	}
	return out
}
