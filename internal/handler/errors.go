package handler // HTTP handlers for the card tracking API

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/card-tracking/internal/service"
)

// respondError writes err as {"error": code, "message": text}.  Service
// errors map by kind; anything else is an internal error and its text is
// not exposed.
func respondError(c echo.Context, log logrus.FieldLogger, err error) error {
	var se *service.Error
	if !errors.As(err, &se) {
		log.WithFields(logrus.Fields{
			"method": c.Request().Method,
			"route":  c.Path(),
		}).WithError(err).Error("request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error", "message": "internal server error"})
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(se, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(se, service.ErrRuleViolation):
		status = http.StatusUnprocessableEntity
	case errors.Is(se, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(se, service.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	return c.JSON(status, echo.Map{"error": se.Code, "message": se.Message})
}

func badRequest(c echo.Context, code, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": code, "message": msg})
}
