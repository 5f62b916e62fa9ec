package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/orian/trendlabel/facade"
	"github.com/orian/trendlabel/models"
)

// newTaskRecord builds the history entry for one finished task.
func newTaskRecord(sessionID string, req models.TaskRequest, res models.TaskResult, elapsed time.Duration) *models.TaskRecord {
	record := &models.TaskRecord{
		ID:         generateID(),
		SessionID:  sessionID,
		Task:       req.Task,
		FilePath:   req.FilePath,
		Success:    res.Success,
		Message:    res.Message,
		RowCount:   len(res.Rows),
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if res.Error != nil {
		record.Kind = res.Error.Kind
		if record.Message == "" {
			record.Message = res.Error.Message
		}
	}
	return record
}

// taskObserver records every task in storage and in the metrics.
// A nil storage only updates metrics.
func taskObserver(storage models.Storage, logger *slog.Logger) facade.Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return func(sessionID string, req models.TaskRequest, res models.TaskResult, elapsed time.Duration) {
		observeTask(res, elapsed)
		if storage == nil {
			return
		}
		if err := storage.RecordTask(newTaskRecord(sessionID, req, res, elapsed)); err != nil {
			logger.Warn("failed to record task history", "task", req.Task, "error", err)
		}
	}
}

// decodeTaskRequest reads a task request body.
func decodeTaskRequest(body io.Reader) (models.TaskRequest, error) {
	var req models.TaskRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return models.TaskRequest{}, fmt.Errorf("%w: %v", models.ErrInvalidTask, err)
	}
	return req, nil
}

// taskStatus maps a task result onto an HTTP status. Partial deletes and
// partial saves still report 200 so the body carries the per-item details.
func taskStatus(res models.TaskResult) int {
	if res.Error == nil {
		return http.StatusOK
	}
	switch res.Error.Kind {
	case models.KindPartialDelete, models.KindPartialSave:
		return http.StatusOK
	case models.KindInvalidTask, models.KindInvalidRow, models.KindPath, models.KindInvalidPredictionInput:
		return http.StatusBadRequest
	case models.KindModelNotFound:
		return http.StatusNotFound
	case models.KindNoWorkToSave:
		return http.StatusConflict
	case models.KindLedgerCorruption:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
