package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clubrun/run-attendance/internal/service"
)

// ExportHandler streams attendance history as CSV.
type ExportHandler struct {
	exporter *service.Exporter
}

// NewExportHandler returns an ExportHandler.
func NewExportHandler(exporter *service.Exporter) *ExportHandler {
	return &ExportHandler{exporter: exporter}
}

// Export handles GET /api/attendance/export. Rows stream directly into
// the response; an error mid-stream can only truncate the file, the
// status line is already gone.
func (h *ExportHandler) Export(c echo.Context) error {
	start, end, ok := dateWindow(c)
	if !ok {
		return fail(c, http.StatusBadRequest, KindMalformed, "dates must be YYYY-MM-DD")
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="attendance.csv"`)
	res.WriteHeader(http.StatusOK)

	if err := h.exporter.WriteCSV(c.Request().Context(), res, start, end); err != nil {
		c.Logger().Errorf("export: stream aborted: %v", err)
	}
	return nil
}
