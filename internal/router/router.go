package router // router wires HTTP routes to handlers and middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/card-tracking/internal/handler"
	"github.com/iliyamo/card-tracking/internal/middleware"
)

// Deps groups everything the routes need.  RateLimit guards location
// ingest and may be nil.
type Deps struct {
	Cards        *handler.CardHandler
	Appointments *handler.AppointmentHandler
	Ready        echo.HandlerFunc
	RateLimit    echo.MiddlewareFunc
	JWTSecret    string
}

// RegisterRoutes mounts the public health endpoints and the JWT protected /v1 API.
// Card gateways (DEVICE) may only report pings; everything else is for
// OPERATOR and ADMIN callers, and only ADMIN provisions cards.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	if d.Ready != nil {
		e.GET("/readyz", d.Ready)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))
	staff := middleware.RequireRole(middleware.RoleOperator, middleware.RoleAdmin)
	admin := middleware.RequireRole(middleware.RoleAdmin)
	device := middleware.RequireRole(middleware.RoleDevice)

	ingest := []echo.MiddlewareFunc{device}
	if d.RateLimit != nil {
		ingest = append(ingest, d.RateLimit)
	}

	// ---- Cards ----
	v1.POST("/cards", d.Cards.CreateCard, admin)
	v1.GET("/cards/available", d.Cards.Available, staff)
	v1.GET("/cards/nearby", d.Cards.Nearby, staff)
	v1.POST("/cards/:id/locations", d.Cards.RecordLocation, ingest...)
	v1.GET("/cards/:id/locations", d.Cards.History, staff)
	v1.GET("/cards/:id/location", d.Cards.LastLocation, staff)
	v1.POST("/cards/:id/assign", d.Cards.Assign, staff)
	v1.POST("/cards/:id/unassign", d.Cards.Unassign, staff)

	// ---- Appointments ----
	v1.POST("/appointments/:id/check-in", d.Appointments.CheckIn, staff)
	v1.POST("/appointments/:id/check-out", d.Appointments.CheckOut, staff)
}
