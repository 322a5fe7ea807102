package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/clubrun/run-attendance/internal/database"
	"github.com/clubrun/run-attendance/internal/model"
)

// CalendarRepo provides access to the calendar_config table, the
// administrator-controlled map from dates to "has a run". Mutations go
// through UpsertDayTx so the run materialisation in the calendar service
// shares the same transaction.
type CalendarRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewCalendarRepo returns a new CalendarRepo bound to the given database.
func NewCalendarRepo(db *sql.DB, dialect database.Dialect) *CalendarRepo {
	return &CalendarRepo{db: db, dialect: dialect}
}

// DB exposes the underlying handle for multi-repository transactions.
func (r *CalendarRepo) DB() *sql.DB { return r.db }

// GetDay returns the configuration for one date, or sql.ErrNoRows when
// the date was never configured.
func (r *CalendarRepo) GetDay(ctx context.Context, date string) (*model.CalendarDay, error) {
	q := database.Rebind(r.dialect, `SELECT date, has_run, updated_at FROM calendar_config WHERE date = ?`)
	var day model.CalendarDay
	err := r.db.QueryRowContext(ctx, q, date).Scan(&day.Date, &day.HasRun, &day.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &day, nil
}

// UpsertDayTx writes the has_run flag for a date inside an existing
// transaction, inserting the row when the date was never configured.
func (r *CalendarRepo) UpsertDayTx(ctx context.Context, tx *sql.Tx, date string, hasRun bool) error {
	now := time.Now().UTC()
	if r.dialect == database.DialectPostgres {
		const q = `INSERT INTO calendar_config (date, has_run, updated_at) VALUES ($1, $2, $3)
                   ON CONFLICT (date) DO UPDATE SET has_run = EXCLUDED.has_run, updated_at = EXCLUDED.updated_at`
		_, err := tx.ExecContext(ctx, q, date, hasRun, now)
		return err
	}
	const q = `INSERT INTO calendar_config (date, has_run, updated_at) VALUES (?, ?, ?)
               ON DUPLICATE KEY UPDATE has_run = VALUES(has_run), updated_at = VALUES(updated_at)`
	_, err := tx.ExecContext(ctx, q, date, hasRun, now)
	return err
}

// Range returns every configured day inside [start, end] joined with its
// run's session code and attendance count when a run exists. The result
// is ordered by date ascending; an empty or inverted window yields an
// empty slice.
func (r *CalendarRepo) Range(ctx context.Context, start, end string) ([]model.CalendarDayView, error) {
	q := database.Rebind(r.dialect, `
        SELECT c.date, c.has_run, ru.session_code,
               (SELECT COUNT(*) FROM attendances a WHERE a.run_id = ru.id)
        FROM calendar_config c
        LEFT JOIN runs ru ON ru.date = c.date
        WHERE c.date >= ? AND c.date <= ?
        ORDER BY c.date ASC`)
	rows, err := r.db.QueryContext(ctx, q, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CalendarDayView{}
	for rows.Next() {
		var (
			day   time.Time
			view  model.CalendarDayView
			code  sql.NullString
			count sql.NullInt64
		)
		if err := rows.Scan(&day, &view.HasRun, &code, &count); err != nil {
			return nil, err
		}
		view.Date = day.Format("2006-01-02")
		if code.Valid {
			c := code.String
			view.SessionCode = &c
		}
		if code.Valid && count.Valid {
			n := int(count.Int64)
			view.AttendanceCount = &n
		}
		out = append(out, view)
	}
	return out, rows.Err()
}
