package models

import (
	"encoding/json"
	"errors"
)

// TaskName identifies one operation of the annotation facade.
// The string values are the names sent by the browser and must not change.
type TaskName string

const (
	// TaskAdd appends or slot-fills annotation rows.
	TaskAdd TaskName = "add"

	// TaskDelete removes rows matching full-row criteria.
	TaskDelete TaskName = "delete"

	// TaskRetrieve lists the non-blank rows of the working ledger.
	TaskRetrieve TaskName = "retrieve"

	// TaskSave copies the working ledger over the saved ledger.
	TaskSave TaskName = "save"

	// TaskSaveAll copies every working ledger of the dataset.
	TaskSaveAll TaskName = "SaveAll"

	// TaskUndo blanks the last non-blank row.
	TaskUndo TaskName = "undo"

	// TaskRefresh blanks every row.
	TaskRefresh TaskName = "refresh"

	// TaskAutoLabel replaces the working ledger with model predictions.
	TaskAutoLabel TaskName = "Auto_Label"
)

// AllTasks lists every known task in dispatch order.
var AllTasks = []TaskName{
	TaskAdd, TaskDelete, TaskRetrieve, TaskSave, TaskSaveAll, TaskUndo, TaskRefresh, TaskAutoLabel,
}

// IsValid reports whether t is a known task.
func (t TaskName) IsValid() bool {
	for _, known := range AllTasks {
		if t == known {
			return true
		}
	}
	return false
}

// Mutates reports whether the task changes the working ledger.
func (t TaskName) Mutates() bool {
	switch t {
	case TaskAdd, TaskDelete, TaskUndo, TaskRefresh, TaskAutoLabel:
		return true
	}
	return false
}

// TaskRequest is one task invocation as received from the transport.
type TaskRequest struct {
	// FilePath is the data file, relative to the raw-data root.
	// Websocket sessions fill it from the selected file.
	FilePath string `json:"file_path"`

	// Task is the operation to run.
	Task TaskName `json:"task"`

	// AnnotationData is a row or a list of rows (add).
	AnnotationData json.RawMessage `json:"annotation_data,omitempty"`

	// DeleteData is a list of full-row criteria (delete).
	DeleteData json.RawMessage `json:"delete_data,omitempty"`

	// SelectedModel is the registry name of the model (Auto_Label).
	SelectedModel string `json:"selected_model,omitempty"`

	// LabelsList maps predicted values to label text and color (Auto_Label).
	// Empty means the configured vocabulary.
	LabelsList []LabelSpec `json:"labels_list,omitempty"`

	// Timezone overrides the session timezone for Auto_Label output.
	Timezone string `json:"timezone,omitempty"`
}

// TaskError is the structured failure payload returned to the transport.
type TaskError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

func (e *TaskError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NewTaskError builds a TaskError from err, attaching per-item details for
// partial failures.
func NewTaskError(err error) *TaskError {
	if err == nil {
		return nil
	}
	te := &TaskError{Kind: KindOf(err), Message: err.Error()}

	var saveErr *PartialSaveError
	var deleteErr *PartialDeleteError
	switch {
	case errors.As(err, &saveErr):
		te.Details = saveErr.Failures
	case errors.As(err, &deleteErr):
		te.Details = deleteErr.Unmatched
	}
	return te
}

// TaskResult is the normalized outcome of every task.
type TaskResult struct {
	Task TaskName `json:"task"`

	// Success is false only when Error is set or a save reported failure.
	Success bool `json:"success"`

	// Message is the user-facing text (save, SaveAll, and failures).
	Message string `json:"message,omitempty"`

	// Rows holds the non-blank rows for retrieve and Auto_Label.
	Rows []AnnotationRow `json:"rows"`

	// Unmatched holds delete criteria that matched no row.
	Unmatched []AnnotationRow `json:"unmatched,omitempty"`

	Error *TaskError `json:"error,omitempty"`
}
