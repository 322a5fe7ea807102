package service

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/clubrun/run-attendance/internal/model"
	"github.com/clubrun/run-attendance/internal/repository"
)

// Exporter streams attendance history as CSV. Rows are written as they
// are scanned, so exporting a full season never buffers more than one
// record.
type Exporter struct {
	attendance *repository.AttendanceRepo
}

// NewExporter returns an Exporter over the given repository.
func NewExporter(attendance *repository.AttendanceRepo) *Exporter {
	return &Exporter{attendance: attendance}
}

var exportHeader = []string{"id", "run_date", "runner_id", "registered_at", "session_code"}

// WriteCSV streams every attendance inside [start, end] to w. CRLF line
// endings keep the file friendly to spreadsheet imports.
func (ex *Exporter) WriteCSV(ctx context.Context, w io.Writer, start, end string) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	err := ex.attendance.StreamHistory(ctx, start, end, func(row model.AttendanceRow) error {
		return cw.Write([]string{
			strconv.FormatUint(row.ID, 10),
			row.RunDate,
			row.RunnerID,
			row.RegisteredAt.UTC().Format(time.RFC3339),
			row.SessionCode,
		})
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
