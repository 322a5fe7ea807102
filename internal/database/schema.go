package database

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the service.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	var stmts []string
	switch dialect {
	case DialectPostgres:
		stmts = postgresSchema
	default:
		stmts = mysqlSchema
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
    id BIGSERIAL PRIMARY KEY,
    date DATE NOT NULL UNIQUE,
    session_code VARCHAR(16) NOT NULL UNIQUE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_date ON runs(date)`,
	`CREATE TABLE IF NOT EXISTS attendances (
    id BIGSERIAL PRIMARY KEY,
    run_id BIGINT NOT NULL REFERENCES runs(id),
    runner_id VARCHAR(64) NOT NULL,
    registered_at TIMESTAMP NOT NULL DEFAULT NOW(),
    UNIQUE (run_id, runner_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_attendances_run_id ON attendances(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attendances_registered_at ON attendances(registered_at)`,
	`CREATE TABLE IF NOT EXISTS calendar_config (
    date DATE PRIMARY KEY,
    has_run BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
    id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
    date DATE NOT NULL,
    session_code VARCHAR(16) NOT NULL,
    is_active TINYINT(1) NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE KEY uq_runs_date (date),
    UNIQUE KEY uq_runs_session_code (session_code),
    KEY idx_runs_date (date)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS attendances (
    id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
    run_id BIGINT UNSIGNED NOT NULL,
    runner_id VARCHAR(64) NOT NULL,
    registered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE KEY uq_attendances_run_runner (run_id, runner_id),
    KEY idx_attendances_run_id (run_id),
    KEY idx_attendances_registered_at (registered_at),
    CONSTRAINT fk_attendances_run FOREIGN KEY (run_id) REFERENCES runs (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS calendar_config (
    date DATE NOT NULL PRIMARY KEY,
    has_run TINYINT(1) NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
