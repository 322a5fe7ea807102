package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/clubrun/run-attendance/internal/database"
	"github.com/clubrun/run-attendance/internal/model"
)

// AttendanceRepo provides access to the attendances table. The
// UNIQUE(run_id, runner_id) constraint is the single source of the
// at-most-once guarantee; no application lock supplements it, because a
// lock held in one process says nothing about a second worker process.
type AttendanceRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewAttendanceRepo returns a new AttendanceRepo bound to the given database.
func NewAttendanceRepo(db *sql.DB, dialect database.Dialect) *AttendanceRepo {
	return &AttendanceRepo{db: db, dialect: dialect}
}

// DB exposes the underlying handle for multi-repository transactions.
func (r *AttendanceRepo) DB() *sql.DB { return r.db }

// RegisterTx attempts the duplicate-suppressing insert for one check-in
// inside an existing transaction and reads the run's tally in the same
// transaction. duplicate is true iff the insert affected zero rows
// because the (run_id, runner_id) pair already exists. The returned
// count always reflects the post-insert state.
func (r *AttendanceRepo) RegisterTx(ctx context.Context, tx *sql.Tx, runID uint64, runnerID string, ts time.Time) (count int, duplicate bool, err error) {
	var q string
	if r.dialect == database.DialectPostgres {
		q = `INSERT INTO attendances (run_id, runner_id, registered_at) VALUES ($1, $2, $3)
             ON CONFLICT (run_id, runner_id) DO NOTHING`
	} else {
		q = `INSERT IGNORE INTO attendances (run_id, runner_id, registered_at) VALUES (?, ?, ?)`
	}
	result, err := tx.ExecContext(ctx, q, runID, runnerID, ts)
	if err != nil {
		return 0, false, Retryable(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, Retryable(err)
	}
	count, err = r.CountForRunTx(ctx, tx, runID)
	if err != nil {
		return 0, false, err
	}
	return count, affected == 0, nil
}

// CountForRun returns the current tally for a run.
func (r *AttendanceRepo) CountForRun(ctx context.Context, runID uint64) (int, error) {
	q := database.Rebind(r.dialect, `SELECT COUNT(*) FROM attendances WHERE run_id = ?`)
	var n int
	if err := r.db.QueryRowContext(ctx, q, runID).Scan(&n); err != nil {
		return 0, Retryable(err)
	}
	return n, nil
}

// CountForRunTx is CountForRun inside an existing transaction.
func (r *AttendanceRepo) CountForRunTx(ctx context.Context, tx *sql.Tx, runID uint64) (int, error) {
	q := database.Rebind(r.dialect, `SELECT COUNT(*) FROM attendances WHERE run_id = ?`)
	var n int
	if err := tx.QueryRowContext(ctx, q, runID).Scan(&n); err != nil {
		return 0, Retryable(err)
	}
	return n, nil
}

// ListForRun returns all attendances of one run ordered by registration
// time.
func (r *AttendanceRepo) ListForRun(ctx context.Context, runID uint64) ([]model.Attendance, error) {
	q := database.Rebind(r.dialect,
		`SELECT id, run_id, runner_id, registered_at FROM attendances WHERE run_id = ? ORDER BY registered_at ASC`)
	rows, err := r.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Attendance{}
	for rows.Next() {
		var a model.Attendance
		if err := rows.Scan(&a.ID, &a.RunID, &a.RunnerID, &a.RegisteredAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const historyJoin = `FROM attendances a JOIN runs r ON r.id = a.run_id WHERE r.date >= ? AND r.date <= ?`

// History returns one page of historical attendance joined with its run,
// ordered by run date descending and registration time ascending, plus
// the total number of matching rows. A window where start exceeds end
// simply matches nothing.
func (r *AttendanceRepo) History(ctx context.Context, start, end string, limit, offset int) ([]model.AttendanceRow, int, error) {
	countQ := database.Rebind(r.dialect, `SELECT COUNT(*) `+historyJoin)
	var total int
	if err := r.db.QueryRowContext(ctx, countQ, start, end).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := database.Rebind(r.dialect,
		`SELECT a.id, r.date, a.runner_id, a.registered_at, r.session_code `+historyJoin+
			` ORDER BY r.date DESC, a.registered_at ASC LIMIT ? OFFSET ?`)
	rows, err := r.db.QueryContext(ctx, q, start, end, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := collectRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// StreamHistory walks the export window row by row and hands each row to
// sink, keeping memory bounded regardless of range size. Iteration stops
// at the first sink error, which is returned.
func (r *AttendanceRepo) StreamHistory(ctx context.Context, start, end string, sink func(model.AttendanceRow) error) error {
	q := database.Rebind(r.dialect,
		`SELECT a.id, r.date, a.runner_id, a.registered_at, r.session_code `+historyJoin+
			` ORDER BY r.date DESC, a.registered_at ASC`)
	rows, err := r.db.QueryContext(ctx, q, start, end)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		row, err := scanHistoryRow(rows)
		if err != nil {
			return err
		}
		if err := sink(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// GetRow returns one attendance joined with its run, addressed by id.
func (r *AttendanceRepo) GetRow(ctx context.Context, id uint64) (*model.AttendanceRow, error) {
	q := database.Rebind(r.dialect,
		`SELECT a.id, r.date, a.runner_id, a.registered_at, r.session_code
         FROM attendances a JOIN runs r ON r.id = a.run_id WHERE a.id = ?`)
	rows, err := r.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrAttendanceNotFound
	}
	row, err := scanHistoryRow(rows)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// RemoveTx deletes an attendance record inside a transaction and returns
// the run it belonged to so the caller can publish the decremented
// tally. ErrAttendanceNotFound is returned when the id does not exist.
func (r *AttendanceRepo) RemoveTx(ctx context.Context, tx *sql.Tx, id uint64) (runID uint64, err error) {
	sel := database.Rebind(r.dialect, `SELECT run_id FROM attendances WHERE id = ?`)
	if err := tx.QueryRowContext(ctx, sel, id).Scan(&runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAttendanceNotFound
		}
		return 0, err
	}
	del := database.Rebind(r.dialect, `DELETE FROM attendances WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, del, id); err != nil {
		return 0, err
	}
	return runID, nil
}

// Search returns admin-facing attendance records filtered by a runner id
// fragment and an optional date window, newest runs first.
func (r *AttendanceRepo) Search(ctx context.Context, runnerID, start, end string, limit int) ([]model.AttendanceRow, error) {
	q := database.Rebind(r.dialect,
		`SELECT a.id, r.date, a.runner_id, a.registered_at, r.session_code `+historyJoin+
			` AND a.runner_id LIKE ? ORDER BY r.date DESC, a.registered_at ASC LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, q, start, end, "%"+runnerID+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

func collectRows(rows *sql.Rows) ([]model.AttendanceRow, error) {
	out := []model.AttendanceRow{}
	for rows.Next() {
		row, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanHistoryRow(rows *sql.Rows) (model.AttendanceRow, error) {
	var (
		row     model.AttendanceRow
		runDate time.Time
	)
	if err := rows.Scan(&row.ID, &runDate, &row.RunnerID, &row.RegisteredAt, &row.SessionCode); err != nil {
		return model.AttendanceRow{}, err
	}
	row.RunDate = runDate.Format("2006-01-02")
	return row, nil
}
