package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"taskboard/domain"
)

var errBadBody = errors.New("invalid body")

// statusFor maps domain errors to HTTP status codes. The board client maps
// them back.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidChange), errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail records the failing stage and writes err as a plain text response.
func fail(c echo.Context, stage string, err error) error {
	m := metricsFrom(c)
	m.SetErrorStage(stage)
	m.SetError(err)
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	return c.String(status, err.Error())
}
