// Package handler contains the HTTP handlers behind the echo router.
// Handlers decode and validate requests, call the service layer and
// serialise outcomes; they never touch SQL or the broker directly.
package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clubrun/run-attendance/internal/repository"
)

// Error kinds as they appear in the JSON envelope. Clients switch on
// these, so they are part of the API surface.
const (
	KindMalformed         = "malformed"
	KindUnauthorized      = "unauthorized"
	KindBadSession        = "bad_session"
	KindAlreadyRegistered = "already_registered"
	KindSessionClosed     = "session_closed"
	KindInvalid           = "invalid"
	KindRetryable         = "retryable"
	KindNotFound          = "not_found"
	KindRateLimited       = "rate_limited"
	KindInternal          = "internal"
)

// errBody is the uniform failure envelope.
type errBody struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	Message       string `json:"message"`
	CurrentCount  *int   `json:"current_count,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func fail(c echo.Context, status int, kind, message string) error {
	return c.JSON(status, errBody{Error: kind, Message: message})
}

func failWithCount(c echo.Context, status int, kind, message string, count int) error {
	return c.JSON(status, errBody{Error: kind, Message: message, CurrentCount: &count})
}

// storeError maps a failed service call onto the wire. Transient store
// failures are safe for the client to retry (the uniqueness constraint
// makes a replayed registration harmless), so they get a 503 with the
// retryable kind; everything else stays an opaque internal error.
func storeError(c echo.Context, err error) error {
	if errors.Is(err, repository.ErrRetryable) {
		return fail(c, http.StatusServiceUnavailable, KindRetryable, "temporary failure, please retry")
	}
	return internalError(c, err)
}

// internalError hides the cause from the client but ties the response
// to the log line through a correlation id, so an operator can find the
// failure from a screenshot.
func internalError(c echo.Context, err error) error {
	id := uuid.NewString()
	log.Printf("internal error [%s] %s %s: %v", id, c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, errBody{
		Error:         KindInternal,
		Message:       "internal error",
		CorrelationID: id,
	})
}
