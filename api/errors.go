package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"primetrade-api/domain"
)

const (
	msgValidationFailed = "Validation failed"
	msgNoToken          = "Not authorized, no token"
	msgTokenFailed      = "Not authorized, token failed"
)

type errorResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Errors  []domain.FieldError `json:"errors,omitempty"`
}

type dataResponse struct {
	Success bool `json:"success"`
	Count   *int `json:"count,omitempty"`
	Data    any  `json:"data"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, dataResponse{Success: true, Data: data})
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{Message: msg})
}

// errorMessages holds the client facing text of one endpoint for each
// error class. Empty entries fall back to generic text.
type errorMessages struct {
	notFound  string
	forbidden string
	internal  string
}

// writeError maps domain errors onto the JSON error envelope. Anything not
// recognised is logged and reported as a generic 500.
func writeError(c echo.Context, logger *log.Logger, msgs errorMessages, err error) error {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorResponse{Message: msgValidationFailed, Errors: verr.Fields})
	case errors.Is(err, domain.ErrUnauthenticated):
		return fail(c, http.StatusUnauthorized, msgTokenFailed)
	case errors.Is(err, domain.ErrInvalidCredentials):
		return fail(c, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, domain.ErrEmailTaken):
		return c.JSON(http.StatusBadRequest, errorResponse{
			Message: "User already exists",
			Errors:  []domain.FieldError{{Path: "email", Msg: "Email is already registered", Location: "body"}},
		})
	case errors.Is(err, domain.ErrNotFound):
		return fail(c, http.StatusNotFound, fallback(msgs.notFound, "Not found"))
	case errors.Is(err, domain.ErrForbidden):
		return fail(c, http.StatusForbidden, fallback(msgs.forbidden, "Forbidden"))
	}
	logger.WithError(err).WithFields(log.Fields{
		"method": c.Request().Method,
		"path":   c.Path(),
	}).Error("request failed")
	return fail(c, http.StatusInternalServerError, fallback(msgs.internal, "Server error"))
}

func fallback(msg, def string) string {
	if msg == "" {
		return def
	}
	return msg
}

// HTTPErrorHandler renders framework errors (unknown route, method not
// allowed, oversized body, panics recovered upstream) in the same envelope
// the handlers use.
func HTTPErrorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		msg := "Server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if status < http.StatusInternalServerError {
				msg = fmt.Sprint(he.Message)
			}
		}
		if status >= http.StatusInternalServerError {
			logger.WithError(err).WithField("path", c.Request().URL.Path).Error("unhandled error")
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = fail(c, status, msg)
		}
		if werr != nil {
			logger.WithError(werr).Warn("write error response")
		}
	}
}
