package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/card-tracking/internal/service"
)

// CardHandler exposes card provisioning, location ingest and proximity
// queries.  Authentication and role checks happen in middleware.
type CardHandler struct {
	Tracking *service.TrackingService
	log      logrus.FieldLogger
}

func NewCardHandler(tracking *service.TrackingService, log logrus.FieldLogger) *CardHandler {
	if tracking == nil {
		panic("nil tracking service passed to NewCardHandler")
	}
	return &CardHandler{Tracking: tracking, log: log.WithField("component", "http")}
}

type createCardRequest struct {
	CardNumber     string          `json:"card_number"`
	SupplierID     string          `json:"supplier_id"`
	EmployeeID     *string         `json:"employee_id"`
	ExpiresAt      *time.Time      `json:"expires_at"`
	AdditionalInfo json.RawMessage `json:"additional_info"`
}

// CreateCard handles POST /v1/cards.  Returns 201 with the new card, 422
// when the supplier's subscription does not allow it and 409 when the card
// number is taken.
func (h *CardHandler) CreateCard(c echo.Context) error {
	var req createCardRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid_body", "request body must be a JSON object")
	}
	card, err := h.Tracking.CreateCard(c.Request().Context(), service.NewCard{
		CardNumber:     req.CardNumber,
		SupplierID:     req.SupplierID,
		EmployeeID:     req.EmployeeID,
		ExpiresAt:      req.ExpiresAt,
		AdditionalInfo: req.AdditionalInfo,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toCard(card))
}

// Available handles GET /v1/cards/available?limit=.
func (h *CardHandler) Available(c echo.Context) error {
	limit, ok := queryInt(c, "limit", 50)
	if !ok || limit < 1 || limit > 500 {
		return badRequest(c, "invalid_limit", "limit must be between 1 and 500")
	}
	cards, err := h.Tracking.FindAvailableCards(c.Request().Context(), limit)
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := make([]cardResponse, 0, len(cards))
	for i := range cards {
		out = append(out, toCard(&cards[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"cards": out})
}

type pingRequest struct {
	Latitude          *float64   `json:"latitude"`
	Longitude         *float64   `json:"longitude"`
	Accuracy          *float64   `json:"accuracy"`
	BatteryPercentage *int       `json:"battery_percentage"`
	RecordedAt        *time.Time `json:"recorded_at"`
}

// RecordLocation handles POST /v1/cards/:id/locations from card gateways.
// The ping is durable once this returns 201 even if the cache missed it.
func (h *CardHandler) RecordLocation(c echo.Context) error {
	var req pingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid_body", "request body must be a JSON object")
	}
	if req.Latitude == nil || req.Longitude == nil {
		return badRequest(c, service.CodeInvalidCoordinates, "latitude and longitude are required")
	}
	p := service.Ping{
		CardID:            c.Param("id"),
		Latitude:          *req.Latitude,
		Longitude:         *req.Longitude,
		Accuracy:          req.Accuracy,
		BatteryPercentage: req.BatteryPercentage,
	}
	if req.RecordedAt != nil {
		p.RecordedAt = *req.RecordedAt
	}
	loc, err := h.Tracking.RecordPing(c.Request().Context(), p)
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := fromHistory(*loc)
	return c.JSON(http.StatusCreated, out)
}

// LastLocation handles GET /v1/cards/:id/location.  A card that has never
// reported returns 204.
func (h *CardHandler) LastLocation(c echo.Context) error {
	loc, err := h.Tracking.GetLastLocation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if loc == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, fromLocation(loc))
}

// History handles GET /v1/cards/:id/locations?limit=&offset=.
func (h *CardHandler) History(c echo.Context) error {
	limit, ok := queryInt(c, "limit", 100)
	if !ok || limit < 1 {
		return badRequest(c, "invalid_limit", "limit must be a positive integer")
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok || offset < 0 {
		return badRequest(c, "invalid_offset", "offset must be a non-negative integer")
	}
	rows, err := h.Tracking.LocationHistory(c.Request().Context(), c.Param("id"), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := make([]locationResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromHistory(r))
	}
	return c.JSON(http.StatusOK, echo.Map{"locations": out, "limit": limit, "offset": offset})
}

// Nearby handles GET /v1/cards/nearby?lat=&lon=&radius= with radius in
// metres.
func (h *CardHandler) Nearby(c echo.Context) error {
	lat, err1 := strconv.ParseFloat(c.QueryParam("lat"), 64)
	lon, err2 := strconv.ParseFloat(c.QueryParam("lon"), 64)
	if err1 != nil || err2 != nil {
		return badRequest(c, service.CodeInvalidCoordinates, "lat and lon must be numbers")
	}
	radius, err := strconv.ParseFloat(c.QueryParam("radius"), 64)
	if err != nil {
		return badRequest(c, service.CodeInvalidRadius, "radius must be a number of metres")
	}
	cards, err := h.Tracking.GetNearbyCards(c.Request().Context(), lat, lon, radius)
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := make([]nearbyResponse, 0, len(cards))
	for _, s := range cards {
		out = append(out, nearbyResponse{
			CardID:         s.CardID,
			CardNumber:     s.CardNumber,
			Latitude:       s.Latitude,
			Longitude:      s.Longitude,
			DistanceMeters: s.DistanceMeters,
			Source:         s.Source,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"cards": out})
}

type assignRequest struct {
	VisitorID string `json:"visitor_id"`
}

// Assign handles POST /v1/cards/:id/assign.
func (h *CardHandler) Assign(c echo.Context) error {
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid_body", "request body must be a JSON object")
	}
	req.VisitorID = strings.TrimSpace(req.VisitorID)
	if req.VisitorID == "" {
		return badRequest(c, "invalid_body", "visitor_id is required")
	}
	card, err := h.Tracking.AssignToVisitor(c.Request().Context(), c.Param("id"), req.VisitorID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toCard(card))
}

// Unassign handles POST /v1/cards/:id/unassign.
func (h *CardHandler) Unassign(c echo.Context) error {
	card, err := h.Tracking.UnassignFromVisitor(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toCard(card))
}

// queryInt parses an optional integer query parameter.
func queryInt(c echo.Context, name string, def int) (int, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
