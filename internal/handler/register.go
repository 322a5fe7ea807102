package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clubrun/run-attendance/internal/service"
)

// RegisterHandler serves the check-in hot path.
type RegisterHandler struct {
	engine *service.RegistrationEngine
}

// NewRegisterHandler returns a RegisterHandler over the given engine.
func NewRegisterHandler(engine *service.RegistrationEngine) *RegisterHandler {
	return &RegisterHandler{engine: engine}
}

type registerRequest struct {
	SessionID  string `json:"session_id" validate:"required"`
	RunnerName string `json:"runner_name" validate:"required"`
	Timestamp  string `json:"timestamp" validate:"omitempty"`
}

// Register handles POST /api/register. The rate limiter runs before
// this handler; everything after validation is delegated to the
// registration engine and its outcome mapped onto the HTTP contract.
func (h *RegisterHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, KindMalformed, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, http.StatusBadRequest, KindMalformed, "session_id and runner_name are required")
	}

	var at time.Time
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return fail(c, http.StatusBadRequest, KindMalformed, "timestamp must be RFC 3339")
		}
		at = parsed.UTC()
	}

	res, err := h.engine.Register(c.Request().Context(), service.RegisterInput{
		Session:  req.SessionID,
		RunnerID: req.RunnerName,
		At:       at,
	})
	if err != nil {
		return storeError(c, err)
	}

	switch res.Status {
	case service.RegisterOK:
		return c.JSON(http.StatusOK, map[string]any{
			"success":       true,
			"current_count": res.Count,
			"runner_name":   req.RunnerName,
		})
	case service.RegisterDuplicate:
		return failWithCount(c, http.StatusConflict, KindAlreadyRegistered,
			"runner already registered for this run", res.Count)
	case service.RegisterUnknownSession:
		return fail(c, http.StatusNotFound, KindBadSession, "unknown session")
	case service.RegisterSessionClosed:
		return failWithCount(c, http.StatusGone, KindSessionClosed,
			"this session is no longer accepting registrations", res.Count)
	case service.RegisterExpiredToken:
		return fail(c, http.StatusGone, KindSessionClosed, "qr token expired")
	case service.RegisterInvalidToken:
		return fail(c, http.StatusBadRequest, KindInvalid, "qr token invalid")
	default: // RegisterInvalidInput
		return fail(c, http.StatusBadRequest, KindInvalid, "runner_name or session_id is empty or too long")
	}
}
