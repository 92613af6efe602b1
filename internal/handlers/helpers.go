package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mkrylosov/orderhub/internal/apperrors"
	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/logging"
	"github.com/mkrylosov/orderhub/internal/metrics"
)

type Publisher interface {
	PublishEvent(ctx context.Context, topic string, ev *events.Event) error
}

// publishEvent emits after the request's state change is committed. A failed
// publish degrades delivery for operators; it never fails the request.
func publishEvent(c echo.Context, p Publisher, topic string, ev *events.Event) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := p.PublishEvent(ctx, topic, ev); err != nil {
		metrics.PublishDegraded.WithLabelValues(topic).Inc()
		logging.FromContext(c.Request().Context()).Error("event delivery degraded",
			"topic", topic, "event_id", ev.ID,
			"error", fmt.Errorf("%w: %v", apperrors.ErrDeliveryDegraded, err))
	}
}

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// httpStatus maps domain errors onto HTTP codes. Anything outside the
// known taxonomy is an internal error.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(c echo.Context, err error) error {
	code := httpStatus(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	return c.JSON(code, Response{Status: "error", Message: msg})
}

func CreateCookie(name string, value string, path string, exp_time time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp_time,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}

	return cookie
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func parseID(c echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}
