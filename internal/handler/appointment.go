package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/card-tracking/internal/service"
)

// AppointmentHandler lets front desk staff start and finish visits by
// hand.  The scheduler drives the same transitions automatically.
type AppointmentHandler struct {
	Tracking *service.TrackingService
	log      logrus.FieldLogger
}

func NewAppointmentHandler(tracking *service.TrackingService, log logrus.FieldLogger) *AppointmentHandler {
	if tracking == nil {
		panic("nil tracking service passed to NewAppointmentHandler")
	}
	return &AppointmentHandler{Tracking: tracking, log: log.WithField("component", "http")}
}

// CheckIn handles POST /v1/appointments/:id/check-in.
func (h *AppointmentHandler) CheckIn(c echo.Context) error {
	a, err := h.Tracking.CheckIn(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toAppointment(a))
}

// CheckOut handles POST /v1/appointments/:id/check-out.  A card still held
// by the visitor is released.
func (h *AppointmentHandler) CheckOut(c echo.Context) error {
	a, err := h.Tracking.CheckOut(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toAppointment(a))
}
