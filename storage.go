package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/orian/trendlabel/models"
)

const defaultHistoryLimit = 100

// DuckDBStorage keeps the task history in a local DuckDB file.
type DuckDBStorage struct {
	db  *sql.DB
	log *slog.Logger
}

func NewDuckDBStorage(dbPath string, logger *slog.Logger) (*DuckDBStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	storage := &DuckDBStorage{db: db, log: logger}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

func (s *DuckDBStorage) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS task_history (
			id VARCHAR PRIMARY KEY,
			task VARCHAR NOT NULL,
			file_path VARCHAR NOT NULL,
			success BOOLEAN NOT NULL,
			kind VARCHAR,
			message TEXT,
			row_count INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *DuckDBStorage) RecordTask(record *models.TaskRecord) error {
	if record.ID == "" {
		record.ID = generateID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(
		`INSERT INTO task_history (id, session_id, task, file_path, success, kind, message, row_count, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, nullString(record.SessionID), string(record.Task), record.FilePath, record.Success,
		nullString(string(record.Kind)), nullString(record.Message), record.RowCount, record.DurationMs, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record task: %w", err)
	}
	return nil
}

const taskColumns = `id, COALESCE(session_id, ''), task, file_path, success, COALESCE(kind, ''),
	COALESCE(message, ''), row_count, COALESCE(duration_ms, 0), created_at`

func (s *DuckDBStorage) ListTasks(filePath string, limit int) ([]*models.TaskRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := "SELECT " + taskColumns + " FROM task_history"
	args := []interface{}{}
	if filePath != "" {
		query += " WHERE file_path = ?"
		args = append(args, filePath)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	records := []*models.TaskRecord{}
	for rows.Next() {
		record, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *DuckDBStorage) GetTask(id string) (*models.TaskRecord, bool) {
	record, err := scanTask(s.db.QueryRow("SELECT "+taskColumns+" FROM task_history WHERE id = ?", id))
	if err != nil {
		if err != sql.ErrNoRows {
			s.log.Warn("failed to load task record", "id", id, "error", err)
		}
		return nil, false
	}
	return record, true
}

func (s *DuckDBStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.TaskRecord, error) {
	var r models.TaskRecord
	var task, kind string
	if err := row.Scan(&r.ID, &r.SessionID, &task, &r.FilePath, &r.Success, &kind,
		&r.Message, &r.RowCount, &r.DurationMs, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Task = models.TaskName(task)
	r.Kind = models.ErrorKind(kind)
	return &r, nil
}

// Helper functions
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func generateID() string {
	return uuid.New().String()
}
