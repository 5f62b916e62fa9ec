// Package models defines the core data types for trendlabel,
// a time-series annotation service that keeps an ordered ledger of
// labeled index ranges per data file.
package models

import (
	"strconv"
	"time"
)

// DefaultColor is assigned to an annotation row added without a color.
const DefaultColor = "#d604a2"

// LedgerHeader is the fixed header of a persisted ledger file.
var LedgerHeader = []string{"Item Number", "Start Index", "End Index", "Label", "Color"}

// AnnotationRow is one labeled range in a ledger.
//
// StartIndex and EndIndex are kept as text: they hold either raw sequence
// positions or ISO-8601 timestamps and the ledger never interprets them.
type AnnotationRow struct {
	// ItemNumber is the 1-based position among the ledger's occupied rows.
	// Zero means "not yet assigned" (rows handed to Add).
	ItemNumber int `json:"Item Number"`

	// StartIndex is the first position or timestamp covered by the range.
	StartIndex string `json:"Start Index" validate:"required"`

	// EndIndex is the last position or timestamp covered by the range.
	EndIndex string `json:"End Index" validate:"required"`

	// Label is the trend label text, normally one of the vocabulary values.
	Label string `json:"Label" validate:"required"`

	// Color is the color token rendered for the label.
	Color string `json:"Color"`
}

// WithDefaults returns a copy of the row with an empty Color replaced by DefaultColor.
func (r AnnotationRow) WithDefaults() AnnotationRow {
	if r.Color == "" {
		r.Color = DefaultColor
	}
	return r
}

// Fields returns the row in ledger column order.
func (r AnnotationRow) Fields() []string {
	return []string{strconv.Itoa(r.ItemNumber), r.StartIndex, r.EndIndex, r.Label, r.Color}
}

// Equal reports whether all five fields match exactly.
func (r AnnotationRow) Equal(other AnnotationRow) bool {
	return r.ItemNumber == other.ItemNumber &&
		r.StartIndex == other.StartIndex &&
		r.EndIndex == other.EndIndex &&
		r.Label == other.Label &&
		r.Color == other.Color
}

// Slot is one position of a ledger: either an occupied row or an empty
// slot left behind by undo or refresh. Empty slots are reused by Add.
type Slot struct {
	row      AnnotationRow
	occupied bool
}

// Occupied wraps a row into an occupied slot.
func Occupied(row AnnotationRow) Slot {
	return Slot{row: row, occupied: true}
}

// Empty returns a blank slot.
func Empty() Slot {
	return Slot{}
}

// IsEmpty reports whether the slot is blank.
func (s Slot) IsEmpty() bool {
	return !s.occupied
}

// Row returns the slot's row and true, or a zero row and false for a blank slot.
func (s Slot) Row() (AnnotationRow, bool) {
	return s.row, s.occupied
}

// PredictionRange is one maximal run of identical predicted labels.
type PredictionRange struct {
	ItemNumber int       `json:"Item Number"`
	Start      time.Time `json:"Start Index"`
	End        time.Time `json:"End Index"`
	Label      string    `json:"Label"`
	Color      string    `json:"Color"`
}

// TaskRecord is the history entry written for every task executed
// through the transport layer.
type TaskRecord struct {
	// ID is the unique identifier for this record (UUID).
	ID string `json:"id"`

	// SessionID identifies the connection that issued the task.
	// Empty for stateless REST calls.
	SessionID string `json:"sessionId,omitempty"`

	// Task is the dispatched task name.
	Task TaskName `json:"task"`

	// FilePath is the data file the task targeted, relative to the raw-data root.
	FilePath string `json:"filePath"`

	// Success mirrors TaskResult.Success.
	Success bool `json:"success"`

	// Kind is the error kind when the task failed.
	Kind ErrorKind `json:"kind,omitempty"`

	// Message is the human-readable outcome.
	Message string `json:"message,omitempty"`

	// RowCount is the number of rows returned to the caller.
	RowCount int `json:"rowCount"`

	// DurationMs is the wall time spent in the facade.
	DurationMs int64 `json:"durationMs"`

	// CreatedAt is when the task finished.
	CreatedAt time.Time `json:"createdAt"`
}
