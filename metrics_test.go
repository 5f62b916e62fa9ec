package main

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/orian/trendlabel/models"
)

func TestTaskOutcome(t *testing.T) {
	tests := []struct {
		name string
		res  models.TaskResult
		want string
	}{
		{"success", models.TaskResult{Success: true}, "ok"},
		{"partial delete", models.TaskResult{Success: true, Error: &models.TaskError{Kind: models.KindPartialDelete}}, "partial_delete_failure"},
		{"failure with kind", models.TaskResult{Error: &models.TaskError{Kind: models.KindPath}}, string(models.KindPath)},
		{"failure without error", models.TaskResult{}, string(models.KindInternal)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, taskOutcome(tt.res))
		})
	}
}

func TestObserveTask(t *testing.T) {
	undoOK := tasksTotal.WithLabelValues(string(models.TaskUndo), "ok")
	unknown := tasksTotal.WithLabelValues("unknown", string(models.KindInvalidTask))
	beforeOK, beforeUnknown := testutil.ToFloat64(undoOK), testutil.ToFloat64(unknown)

	observeTask(models.TaskResult{Task: models.TaskUndo, Success: true}, 3*time.Millisecond)
	observeTask(models.TaskResult{Task: "explode", Error: &models.TaskError{Kind: models.KindInvalidTask}}, 0)

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(undoOK))
	assert.Equal(t, beforeUnknown+1, testutil.ToFloat64(unknown))
}

func TestObserveSaveFile(t *testing.T) {
	ok, failed := saveFilesTotal.WithLabelValues("ok"), saveFilesTotal.WithLabelValues("failed")
	beforeOK, beforeFailed := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	observeSaveFile(true)
	observeSaveFile(true)
	observeSaveFile(false)

	assert.Equal(t, beforeOK+2, testutil.ToFloat64(ok))
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
}
