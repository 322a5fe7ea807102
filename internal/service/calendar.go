package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clubrun/run-attendance/internal/bus"
	"github.com/clubrun/run-attendance/internal/model"
	"github.com/clubrun/run-attendance/internal/repository"
)

// CalendarManager owns the run lifecycle. Administrators flip has_run
// per date; flipping a date on materialises its run row (with a fresh
// session code) exactly once, flipping it off marks the run inactive
// without touching recorded attendance. Re-enabling a date re-activates
// the existing run and keeps its original session code, so printed QR
// posters stay valid.
type CalendarManager struct {
	calendar   *repository.CalendarRepo
	runs       *repository.RunRepo
	attendance *repository.AttendanceRepo
	codes      *CodeIssuer
	events     bus.Bus
	loc        *time.Location
}

// NewCalendarManager wires the calendar service.
func NewCalendarManager(
	calendar *repository.CalendarRepo,
	runs *repository.RunRepo,
	attendance *repository.AttendanceRepo,
	codes *CodeIssuer,
	events bus.Bus,
	loc *time.Location,
) *CalendarManager {
	return &CalendarManager{
		calendar:   calendar,
		runs:       runs,
		attendance: attendance,
		codes:      codes,
		events:     events,
		loc:        loc,
	}
}

// ConfigureResult reports the state of a date after an administrator
// toggled it. Created distinguishes a first-time configuration from a
// re-toggle of a date that already had a calendar entry.
type ConfigureResult struct {
	Date        string  `json:"date"`
	HasRun      bool    `json:"has_run"`
	Created     bool    `json:"created"`
	SessionCode *string `json:"session_code"`
}

// Today returns the date string for "now" in the configured zone. All
// run-day decisions use this value, never the server's local date.
func (m *CalendarManager) Today() string {
	return time.Now().In(m.loc).Format("2006-01-02")
}

// Configure sets has_run for one date and reconciles the runs table in
// the same transaction: enabling a date without a run creates one,
// toggling a date with an existing run flips its is_active flag. The
// invalidation event for a deactivated (or re-activated) run is
// published only after the transaction commits.
func (m *CalendarManager) Configure(ctx context.Context, date string, hasRun bool) (*ConfigureResult, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	existed, err := m.DayConfigured(ctx, date)
	if err != nil {
		return nil, err
	}

	// Generate the code before opening the transaction so the uniqueness
	// probe does not hold row locks. The UNIQUE constraint still backstops
	// a race between two issuers.
	var newCode string
	run, err := m.runs.GetByDate(ctx, date)
	switch {
	case err == nil:
		// run exists, no code needed
	case errors.Is(err, repository.ErrRunNotFound):
		if hasRun {
			if newCode, err = m.codes.NewSessionCode(ctx); err != nil {
				return nil, err
			}
		}
	default:
		return nil, err
	}

	tx, err := m.calendar.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := m.calendar.UpsertDayTx(ctx, tx, date, hasRun); err != nil {
		return nil, err
	}

	res := &ConfigureResult{Date: date, HasRun: hasRun, Created: !existed}
	var toggled *model.Run // run whose is_active changed, for the post-commit event
	switch {
	case run == nil && hasRun:
		created, err := m.runs.CreateTx(ctx, tx, date, newCode)
		if err != nil {
			return nil, err
		}
		res.SessionCode = &created.SessionCode
	case run != nil:
		if run.IsActive != hasRun {
			if err := m.runs.SetActiveTx(ctx, tx, date, hasRun); err != nil {
				return nil, err
			}
			toggled = run
		}
		res.SessionCode = &run.SessionCode
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	if toggled != nil {
		m.events.Publish(bus.TopicInvalidate, bus.Event{
			Type:        bus.TypeInvalidate,
			RunID:       toggled.ID,
			SessionCode: toggled.SessionCode,
		})
	}
	return res, nil
}

// TodayStatus reports whether today has an active run and, when it
// does, the run's session code and live tally.
func (m *CalendarManager) TodayStatus(ctx context.Context) (model.TodayStatus, error) {
	run, err := m.runs.GetByDate(ctx, m.Today())
	if errors.Is(err, repository.ErrRunNotFound) {
		return model.TodayStatus{}, nil
	}
	if err != nil {
		return model.TodayStatus{}, err
	}
	if !run.IsActive {
		return model.TodayStatus{}, nil
	}
	count, err := m.attendance.CountForRun(ctx, run.ID)
	if err != nil {
		return model.TodayStatus{}, err
	}
	return model.TodayStatus{HasRun: true, SessionCode: run.SessionCode, Count: count}, nil
}

// ActiveRunToday returns today's run when one exists and is active, or
// nil otherwise.
func (m *CalendarManager) ActiveRunToday(ctx context.Context) (*model.Run, error) {
	run, err := m.runs.GetByDate(ctx, m.Today())
	if errors.Is(err, repository.ErrRunNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !run.IsActive {
		return nil, nil
	}
	return run, nil
}

// Month returns the configured days of one calendar month, given as
// "YYYY-MM", each joined with its run's session code and attendance
// count.
func (m *CalendarManager) Month(ctx context.Context, month string) ([]model.CalendarDayView, error) {
	first, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, fmt.Errorf("invalid month %q: %w", month, err)
	}
	last := first.AddDate(0, 1, -1)
	return m.calendar.Range(ctx, first.Format("2006-01-02"), last.Format("2006-01-02"))
}

// DayConfigured reports whether a date was ever configured, regardless
// of its current has_run value.
func (m *CalendarManager) DayConfigured(ctx context.Context, date string) (bool, error) {
	_, err := m.calendar.GetDay(ctx, date)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
