package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/clubrun/run-attendance/internal/bus"
	"github.com/clubrun/run-attendance/internal/model"
	"github.com/clubrun/run-attendance/internal/repository"
)

// OverrideService is the administrator's correction surface: adding a
// forgotten runner to any run (today's or a past one) and removing a
// mistaken record. Overrides bypass the is_active and today checks that
// self check-in enforces, but they reuse the same duplicate-suppressing
// insert, so an override can never double-count.
type OverrideService struct {
	runs       *repository.RunRepo
	attendance *repository.AttendanceRepo
	events     bus.Bus
	maxRunner  int
}

// NewOverrideService wires the override surface.
func NewOverrideService(
	runs *repository.RunRepo,
	attendance *repository.AttendanceRepo,
	events bus.Bus,
	maxRunnerLen int,
) *OverrideService {
	return &OverrideService{runs: runs, attendance: attendance, events: events, maxRunner: maxRunnerLen}
}

// ErrInvalidRunnerID is returned when an override names an empty or
// oversized runner identifier.
var ErrInvalidRunnerID = errors.New("invalid runner id")

// OverrideResult reports one override mutation and the run's tally
// after it. Removed carries the deleted record on removals so the admin
// UI can show what just disappeared.
type OverrideResult struct {
	Run       *model.Run
	Count     int
	Duplicate bool
	Removed   *model.AttendanceRow
}

// Add records a runner on the run of the given date. Duplicate is true
// when the pair already existed, in which case nothing changed and no
// event is published.
func (s *OverrideService) Add(ctx context.Context, date, runnerID string) (*OverrideResult, error) {
	runnerID = strings.TrimSpace(runnerID)
	if runnerID == "" || len(runnerID) > s.maxRunner {
		return nil, ErrInvalidRunnerID
	}

	tx, err := s.attendance.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	run, err := s.runs.GetByDateTx(ctx, tx, date)
	if err != nil {
		return nil, err // ErrRunNotFound when the date has no run
	}
	count, duplicate, err := s.attendance.RegisterTx(ctx, tx, run.ID, runnerID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	if !duplicate {
		s.publishTally(run, count)
	}
	return &OverrideResult{Run: run, Count: count, Duplicate: duplicate}, nil
}

// Remove deletes one attendance record by id and publishes the
// decremented tally. The removed record is read first so the caller can
// echo it back; the delete itself re-checks existence inside the
// transaction.
func (s *OverrideService) Remove(ctx context.Context, id uint64) (*OverrideResult, error) {
	row, err := s.attendance.GetRow(ctx, id)
	if err != nil {
		return nil, err // ErrAttendanceNotFound when the id does not exist
	}

	tx, err := s.attendance.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	runID, err := s.attendance.RemoveTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.attendance.CountForRunTx(ctx, tx, runID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	s.publishTally(run, count)
	return &OverrideResult{Run: run, Count: count, Removed: row}, nil
}

// Search returns attendance records matching a runner id fragment
// inside an optional date window, newest runs first.
func (s *OverrideService) Search(ctx context.Context, runnerID, start, end string, limit int) ([]model.AttendanceRow, error) {
	return s.attendance.Search(ctx, runnerID, start, end, limit)
}

func (s *OverrideService) publishTally(run *model.Run, count int) {
	s.events.Publish(bus.TopicTally, bus.Event{
		Type:        bus.TypeTallyUpdate,
		RunID:       run.ID,
		SessionCode: run.SessionCode,
		Count:       count,
	})
}
