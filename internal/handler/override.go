package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clubrun/run-attendance/internal/repository"
	"github.com/clubrun/run-attendance/internal/service"
)

// OverrideHandler serves the admin correction surface. Every route here
// sits behind the admin gate.
type OverrideHandler struct {
	overrides *service.OverrideService
}

// NewOverrideHandler returns an OverrideHandler.
func NewOverrideHandler(overrides *service.OverrideService) *OverrideHandler {
	return &OverrideHandler{overrides: overrides}
}

type overrideAddRequest struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	RunnerID string `json:"runner_id" validate:"required"`
}

// Add handles POST /api/attendance/override.
func (h *OverrideHandler) Add(c echo.Context) error {
	var req overrideAddRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, KindMalformed, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, http.StatusBadRequest, KindMalformed, "date must be YYYY-MM-DD and runner_id must be set")
	}

	res, err := h.overrides.Add(c.Request().Context(), req.Date, req.RunnerID)
	if errors.Is(err, service.ErrInvalidRunnerID) {
		return fail(c, http.StatusBadRequest, KindMalformed, "runner_id is empty or too long")
	}
	if errors.Is(err, repository.ErrRunNotFound) {
		return fail(c, http.StatusNotFound, KindNotFound, "no run on that date")
	}
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":       true,
		"duplicate":     res.Duplicate,
		"current_count": res.Count,
		"session_code":  res.Run.SessionCode,
	})
}

// Remove handles DELETE /api/attendance/override/:id.
func (h *OverrideHandler) Remove(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, KindMalformed, "id must be a positive integer")
	}
	res, err := h.overrides.Remove(c.Request().Context(), id)
	if errors.Is(err, repository.ErrAttendanceNotFound) {
		return fail(c, http.StatusNotFound, KindNotFound, "no such attendance record")
	}
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":       true,
		"current_count": res.Count,
		"session_code":  res.Run.SessionCode,
		"removed":       res.Removed,
	})
}

// searchLimit bounds admin searches; the surface is for finding one
// runner's records, not bulk export.
const searchLimit = 200

// Search handles GET /api/attendance/override/search.
func (h *OverrideHandler) Search(c echo.Context) error {
	runnerID := c.QueryParam("runner_id")
	if runnerID == "" {
		return fail(c, http.StatusBadRequest, KindMalformed, "runner_id is required")
	}
	start, end, ok := dateWindow(c)
	if !ok {
		return fail(c, http.StatusBadRequest, KindMalformed, "dates must be YYYY-MM-DD")
	}
	rows, err := h.overrides.Search(c.Request().Context(), runnerID, start, end, searchLimit)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": rows})
}
