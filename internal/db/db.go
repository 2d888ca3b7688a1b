package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type Migration struct {
	Version string
	SQL     string
}

var migrations = []Migration{
	{
		Version: "001_print_jobs",
		SQL: `
			CREATE TABLE IF NOT EXISTS print_jobs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				job_id TEXT NOT NULL UNIQUE,
				filename TEXT NOT NULL,
				filepath TEXT NOT NULL,
				file_size INTEGER NOT NULL,
				paper_size TEXT NOT NULL,
				color_mode TEXT NOT NULL,
				page_range TEXT NOT NULL DEFAULT 'all',
				copies INTEGER NOT NULL DEFAULT 1,
				printer_name TEXT NOT NULL DEFAULT 'default',
				status INTEGER NOT NULL DEFAULT 1,
				attempts INTEGER NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				qr_code TEXT NOT NULL DEFAULT '',
				uploaded_at DATETIME NOT NULL,
				processed_at DATETIME,
				completed_at DATETIME
			);
			CREATE INDEX IF NOT EXISTS idx_print_jobs_status ON print_jobs(status);
			CREATE INDEX IF NOT EXISTS idx_print_jobs_uploaded_at ON print_jobs(uploaded_at);
		`,
	},
}

// Open opens the sqlite database at path and applies any pending
// migrations. sqlite handles one writer at a time, so the pool is
// pinned to a single connection.
func Open(path string) (*sql.DB, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)

	if err := runMigrations(database); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func runMigrations(database *sql.DB) error {
	if _, err := database.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := database.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		tx, err := database.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}
	}

	return nil
}
