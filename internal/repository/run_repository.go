package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/clubrun/run-attendance/internal/database"
	"github.com/clubrun/run-attendance/internal/model"
)

// RunRepo provides access to the runs table. A run row is created once
// when its calendar day is switched on and afterwards only its is_active
// flag changes. Rows are never deleted while attendances reference them.
type RunRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewRunRepo returns a new RunRepo bound to the given database.
func NewRunRepo(db *sql.DB, dialect database.Dialect) *RunRepo {
	return &RunRepo{db: db, dialect: dialect}
}

// DB exposes the underlying handle so callers can open transactions that
// span several repositories.
func (r *RunRepo) DB() *sql.DB { return r.db }

const runColumns = `id, date, session_code, is_active, created_at`

func scanRun(row *sql.Row) (*model.Run, error) {
	var run model.Run
	err := row.Scan(&run.ID, &run.Date, &run.SessionCode, &run.IsActive, &run.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, Retryable(err)
	}
	return &run, nil
}

// GetByDate returns the run scheduled on the given calendar day, or
// ErrRunNotFound when the day has none.
func (r *RunRepo) GetByDate(ctx context.Context, date string) (*model.Run, error) {
	q := database.Rebind(r.dialect, `SELECT `+runColumns+` FROM runs WHERE date = ?`)
	return scanRun(r.db.QueryRowContext(ctx, q, date))
}

// GetByDateTx is GetByDate inside an existing transaction.
func (r *RunRepo) GetByDateTx(ctx context.Context, tx *sql.Tx, date string) (*model.Run, error) {
	q := database.Rebind(r.dialect, `SELECT `+runColumns+` FROM runs WHERE date = ?`)
	return scanRun(tx.QueryRowContext(ctx, q, date))
}

// GetByID looks a run up by its primary key.
func (r *RunRepo) GetByID(ctx context.Context, id uint64) (*model.Run, error) {
	q := database.Rebind(r.dialect, `SELECT `+runColumns+` FROM runs WHERE id = ?`)
	return scanRun(r.db.QueryRowContext(ctx, q, id))
}

// GetByCode looks a run up by its session code.
func (r *RunRepo) GetByCode(ctx context.Context, code string) (*model.Run, error) {
	q := database.Rebind(r.dialect, `SELECT `+runColumns+` FROM runs WHERE session_code = ?`)
	return scanRun(r.db.QueryRowContext(ctx, q, code))
}

// GetByCodeTx is GetByCode inside an existing transaction.
func (r *RunRepo) GetByCodeTx(ctx context.Context, tx *sql.Tx, code string) (*model.Run, error) {
	q := database.Rebind(r.dialect, `SELECT `+runColumns+` FROM runs WHERE session_code = ?`)
	return scanRun(tx.QueryRowContext(ctx, q, code))
}

// CodeExists reports whether a session code has ever been issued. The
// code generator retries until this returns false.
func (r *RunRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	q := database.Rebind(r.dialect, `SELECT 1 FROM runs WHERE session_code = ? LIMIT 1`)
	var one int
	err := r.db.QueryRowContext(ctx, q, code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateTx inserts a run for the given day within an existing
// transaction and populates the generated ID. The date and session code
// uniqueness constraints make concurrent creation for the same day a
// conflict for one of the writers; that writer's insert fails and the
// error is returned as is, without a re-read of the existing run.
func (r *RunRepo) CreateTx(ctx context.Context, tx *sql.Tx, date, sessionCode string) (*model.Run, error) {
	if r.dialect == database.DialectPostgres {
		const q = `INSERT INTO runs (date, session_code, is_active) VALUES ($1, $2, TRUE) RETURNING id, created_at`
		var run model.Run
		run.SessionCode = sessionCode
		run.IsActive = true
		if err := tx.QueryRowContext(ctx, q, date, sessionCode).Scan(&run.ID, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.Date, _ = time.Parse("2006-01-02", date)
		return &run, nil
	}
	const q = `INSERT INTO runs (date, session_code, is_active) VALUES (?, ?, 1)`
	result, err := tx.ExecContext(ctx, q, date, sessionCode)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	run := &model.Run{ID: uint64(id), SessionCode: sessionCode, IsActive: true, CreatedAt: time.Now().UTC()}
	run.Date, _ = time.Parse("2006-01-02", date)
	return run, nil
}

// SetActiveTx toggles a run's is_active flag within a transaction. It is
// a no-op when no run exists for the date.
func (r *RunRepo) SetActiveTx(ctx context.Context, tx *sql.Tx, date string, active bool) error {
	q := database.Rebind(r.dialect, `UPDATE runs SET is_active = ? WHERE date = ?`)
	_, err := tx.ExecContext(ctx, q, active, date)
	return err
}
