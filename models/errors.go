package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the annotation engine. Wrap them with fmt.Errorf("...: %w")
// and classify with KindOf.
var (
	// ErrPath is returned for an empty, absolute or escaping data-file identifier.
	ErrPath = errors.New("invalid data file path")

	// ErrLedgerCorruption is returned when a ledger has an unexpected header or row shape.
	ErrLedgerCorruption = errors.New("ledger corruption")

	// ErrNoWorkToSave is returned by save when the working ledger does not exist.
	ErrNoWorkToSave = errors.New("no work to save")

	// ErrPartialSave is matched by *PartialSaveError.
	ErrPartialSave = errors.New("partial save failure")

	// ErrPartialDelete is matched by *PartialDeleteError.
	ErrPartialDelete = errors.New("partial delete failure")

	// ErrInvalidPredictionInput is returned for empty predictions, unmapped
	// label values or series that cannot be turned into features.
	ErrInvalidPredictionInput = errors.New("invalid prediction input")

	// ErrInvalidTask is returned for unknown task names or missing task parameters.
	ErrInvalidTask = errors.New("invalid task")

	// ErrModelNotFound is returned when a model name is not registered or its file is gone.
	ErrModelNotFound = errors.New("model not found")

	// ErrInvalidRow is returned when a row handed to add is missing a required field.
	ErrInvalidRow = errors.New("invalid annotation row")
)

// ErrorKind is the stable, transport-facing classification of an error.
type ErrorKind string

const (
	KindPath                   ErrorKind = "path_error"
	KindLedgerCorruption       ErrorKind = "ledger_corruption"
	KindNoWorkToSave           ErrorKind = "no_work_to_save"
	KindPartialSave            ErrorKind = "partial_save_failure"
	KindPartialDelete          ErrorKind = "partial_delete_failure"
	KindInvalidPredictionInput ErrorKind = "invalid_prediction_input"
	KindInvalidTask            ErrorKind = "invalid_task"
	KindModelNotFound          ErrorKind = "model_not_found"
	KindInvalidRow             ErrorKind = "invalid_row"
	KindInternal               ErrorKind = "internal"
)

var kindTable = []struct {
	sentinel error
	kind     ErrorKind
}{
	{ErrPath, KindPath},
	{ErrLedgerCorruption, KindLedgerCorruption},
	{ErrNoWorkToSave, KindNoWorkToSave},
	{ErrPartialSave, KindPartialSave},
	{ErrPartialDelete, KindPartialDelete},
	{ErrInvalidPredictionInput, KindInvalidPredictionInput},
	{ErrInvalidTask, KindInvalidTask},
	{ErrModelNotFound, KindModelNotFound},
	{ErrInvalidRow, KindInvalidRow},
}

// KindOf classifies err. Unknown errors are KindInternal; nil is "".
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.sentinel) {
			return entry.kind
		}
	}
	return KindInternal
}

// FileFailure records one file SaveAll could not copy.
type FileFailure struct {
	// Path is relative to the Working_Folder.
	Path string `json:"path"`
	Err  string `json:"error"`
}

// PartialSaveError lists the files a SaveAll run failed to copy.
type PartialSaveError struct {
	Saved    int
	Total    int
	Failures []FileFailure
}

func (e *PartialSaveError) Error() string {
	paths := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		paths = append(paths, f.Path)
	}
	return fmt.Sprintf("saved %d/%d files, failed: %s", e.Saved, e.Total, strings.Join(paths, ", "))
}

func (e *PartialSaveError) Is(target error) bool {
	return target == ErrPartialSave
}

// PartialDeleteError lists the delete criteria that matched no ledger row.
type PartialDeleteError struct {
	Removed   int
	Unmatched []AnnotationRow
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("%d delete criteria matched no row (%d removed)", len(e.Unmatched), e.Removed)
}

func (e *PartialDeleteError) Is(target error) bool {
	return target == ErrPartialDelete
}
