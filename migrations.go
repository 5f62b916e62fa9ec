package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Index task_history by file and time",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_task_history_file ON task_history(file_path);
				CREATE INDEX IF NOT EXISTS idx_task_history_created ON task_history(created_at);
			`,
		},
		{
			Version:     2,
			Description: "Add session_id to task_history",
			SQL: `
				ALTER TABLE task_history ADD COLUMN IF NOT EXISTS session_id VARCHAR;
			`,
		},
		{
			Version:     3,
			Description: "Add duration_ms to task_history",
			SQL: `
				ALTER TABLE task_history ADD COLUMN IF NOT EXISTS duration_ms BIGINT DEFAULT 0;
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description VARCHAR NOT NULL,
			applied_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}
	logger.Debug("current schema version", "version", currentVersion)

	appliedCount := 0
	for _, migration := range GetMigrations() {
		if migration.Version <= currentVersion {
			continue
		}

		logger.Info("applying migration", "version", migration.Version, "description", migration.Description)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			migration.Version, migration.Description, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
		appliedCount++
	}

	if appliedCount > 0 {
		logger.Info("migrations applied", "count", appliedCount)
	}
	return nil
}
