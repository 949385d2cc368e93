package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health reports liveness.  It always returns 200 "ok".
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready returns a readiness handler.  The database is required; a missing
// or failing cache only marks the service degraded since reads fall back
// to the store.
func Ready(db Pinger, cacheAvailable func(context.Context) bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		body := echo.Map{"database": "ok", "cache": "ok"}
		if err := db.PingContext(ctx); err != nil {
			body["database"] = "down"
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		if cacheAvailable == nil || !cacheAvailable(ctx) {
			body["cache"] = "degraded"
		}
		return c.JSON(http.StatusOK, body)
	}
}
