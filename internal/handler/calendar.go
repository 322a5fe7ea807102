package handler

import (
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"github.com/clubrun/run-attendance/internal/service"
)

// CalendarHandler serves the administrator's calendar surface and the
// public today/month views.
type CalendarHandler struct {
	calendar *service.CalendarManager
}

// NewCalendarHandler returns a CalendarHandler over the given service.
func NewCalendarHandler(calendar *service.CalendarManager) *CalendarHandler {
	return &CalendarHandler{calendar: calendar}
}

type configureRequest struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	HasRun *bool  `json:"has_run" validate:"required"`
}

// Configure handles POST /api/calendar/configure. The admin gate runs
// before this handler; here only the payload is validated.
func (h *CalendarHandler) Configure(c echo.Context) error {
	var req configureRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, KindMalformed, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, http.StatusBadRequest, KindMalformed, "date must be YYYY-MM-DD and has_run must be set")
	}

	res, err := h.calendar.Configure(c.Request().Context(), req.Date, *req.HasRun)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"date":         res.Date,
		"has_run":      res.HasRun,
		"created":      res.Created,
		"session_code": res.SessionCode,
	})
}

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Month handles GET /api/calendar?month=YYYY-MM.
func (h *CalendarHandler) Month(c echo.Context) error {
	month := c.QueryParam("month")
	if !monthPattern.MatchString(month) {
		return fail(c, http.StatusBadRequest, KindMalformed, "month must be YYYY-MM")
	}
	days, err := h.calendar.Month(c.Request().Context(), month)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": days})
}

// Today handles GET /api/calendar/today.
func (h *CalendarHandler) Today(c echo.Context) error {
	st, err := h.calendar.TodayStatus(c.Request().Context())
	if err != nil {
		return internalError(c, err)
	}
	body := map[string]any{
		"has_run":          st.HasRun,
		"attendance_count": st.Count,
	}
	if st.HasRun {
		body["session_code"] = st.SessionCode
	}
	return c.JSON(http.StatusOK, body)
}
