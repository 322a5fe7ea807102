package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clubrun/run-attendance/internal/repository"
	"github.com/clubrun/run-attendance/internal/service"
)

// Pagination bounds for the history endpoint.
const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// AttendanceHandler serves the public attendance views (today's count,
// the paginated history) and the admin roster of a single run.
type AttendanceHandler struct {
	calendar   *service.CalendarManager
	attendance *repository.AttendanceRepo
	runs       *repository.RunRepo
}

// NewAttendanceHandler returns an AttendanceHandler.
func NewAttendanceHandler(calendar *service.CalendarManager, attendance *repository.AttendanceRepo, runs *repository.RunRepo) *AttendanceHandler {
	return &AttendanceHandler{calendar: calendar, attendance: attendance, runs: runs}
}

// Today handles GET /api/attendance/today.
func (h *AttendanceHandler) Today(c echo.Context) error {
	st, err := h.calendar.TodayStatus(c.Request().Context())
	if err != nil {
		return internalError(c, err)
	}
	body := map[string]any{
		"count":         st.Count,
		"has_run_today": st.HasRun,
	}
	if st.HasRun {
		body["session_id"] = st.SessionCode
	}
	return c.JSON(http.StatusOK, body)
}

// dateWindow parses optional start_date/end_date query parameters,
// widening unset bounds to cover all history. An inverted window is
// passed through untouched and simply matches nothing.
func dateWindow(c echo.Context) (start, end string, ok bool) {
	start = c.QueryParam("start_date")
	end = c.QueryParam("end_date")
	if start == "" {
		start = "0001-01-01"
	}
	if end == "" {
		end = "9999-12-31"
	}
	for _, d := range []string{start, end} {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return "", "", false
		}
	}
	return start, end, true
}

// History handles GET /api/attendance/history with page/page_size
// pagination.
func (h *AttendanceHandler) History(c echo.Context) error {
	start, end, ok := dateWindow(c)
	if !ok {
		return fail(c, http.StatusBadRequest, KindMalformed, "dates must be YYYY-MM-DD")
	}

	page := queryInt(c, "page", 1)
	if page < 1 {
		return fail(c, http.StatusBadRequest, KindMalformed, "page must be >= 1")
	}
	pageSize := queryInt(c, "page_size", defaultPageSize)
	if pageSize < 1 || pageSize > maxPageSize {
		return fail(c, http.StatusBadRequest, KindMalformed, "page_size out of range")
	}

	rows, total, err := h.attendance.History(c.Request().Context(), start, end, pageSize, (page-1)*pageSize)
	if err != nil {
		return internalError(c, err)
	}
	totalPages := (total + pageSize - 1) / pageSize
	return c.JSON(http.StatusOK, map[string]any{
		"data":        rows,
		"total_count": total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": totalPages,
	})
}

// Roster handles GET /api/attendance/run/:id, the admin view of every
// check-in recorded for one run in registration order.
func (h *AttendanceHandler) Roster(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, KindMalformed, "id must be a positive integer")
	}
	ctx := c.Request().Context()
	run, err := h.runs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrRunNotFound) {
		return fail(c, http.StatusNotFound, KindNotFound, "no such run")
	}
	if err != nil {
		return internalError(c, err)
	}
	list, err := h.attendance.ListForRun(ctx, run.ID)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"run_date":     run.DateString(),
		"session_code": run.SessionCode,
		"is_active":    run.IsActive,
		"count":        len(list),
		"data":         list,
	})
}

func queryInt(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
