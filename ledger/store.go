package ledger

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/orian/trendlabel/fsx"
	"github.com/orian/trendlabel/models"
)

const fileMode = 0o644

// Store performs CRUD over individual ledger files. Every mutation reads
// the whole ledger, edits it in memory and replaces the file atomically, so
// a failed operation leaves the previous contents in place.
//
// Store does not serialize callers; hold the path's entry in Locks around
// each mutation.
type Store struct {
	log      *slog.Logger
	validate *validator.Validate
}

// NewStore creates a Store. A nil logger falls back to slog.Default().
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{log: logger, validate: validator.New()}
}

// DeleteResult reports what a Delete call did.
type DeleteResult struct {
	Removed   int
	Unmatched []models.AnnotationRow
}

// Load reads every slot of the ledger at path. A missing file is reported
// with an error satisfying errors.Is(err, fs.ErrNotExist).
func (s *Store) Load(path string) ([]models.Slot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	slots, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return slots, nil
}

// loadOrEmpty is Load with a missing file treated as an empty ledger.
func (s *Store) loadOrEmpty(path string) ([]models.Slot, bool, error) {
	slots, err := s.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return slots, true, nil
}

func (s *Store) write(path string, slots []models.Slot) error {
	return fsx.WriteAtomic(path, fileMode, func(w io.Writer) error {
		return Encode(w, slots)
	})
}

// Add stores rows, filling blank slots in file order before appending the
// remainder. Occupied rows are renumbered 1..k afterwards. Rows missing a
// Start Index, End Index or Label are rejected before anything is written;
// a missing Color becomes models.DefaultColor. The ledger is created if it
// does not exist.
func (s *Store) Add(path string, rows []models.AnnotationRow) error {
	if len(rows) == 0 {
		return nil
	}
	queue := make([]models.AnnotationRow, 0, len(rows))
	for i, row := range rows {
		if err := s.validate.Struct(row); err != nil {
			return fmt.Errorf("%w: row %d: %v", models.ErrInvalidRow, i+1, err)
		}
		queue = append(queue, row.WithDefaults())
	}

	slots, _, err := s.loadOrEmpty(path)
	if err != nil {
		return err
	}

	filled := 0
	for i := range slots {
		if len(queue) == 0 {
			break
		}
		if slots[i].IsEmpty() {
			slots[i] = models.Occupied(queue[0])
			queue = queue[1:]
			filled++
		}
	}
	for _, row := range queue {
		slots = append(slots, models.Occupied(row))
	}
	renumber(slots)

	if err := s.write(path, slots); err != nil {
		return fmt.Errorf("add to %s: %w", path, err)
	}
	s.log.Debug("ledger rows added", "path", path, "filled", filled, "appended", len(queue))
	return nil
}

// Delete removes every ledger row equal on all five fields to a criterion.
// Each criterion consumes at most one row. Blank slots are dropped and the
// remaining rows renumbered. The file is rewritten only when something
// matched; a missing ledger leaves every criterion unmatched.
//
// When some criteria matched nothing the matched rows are still removed and
// a *models.PartialDeleteError is returned alongside the result.
func (s *Store) Delete(path string, criteria []models.AnnotationRow) (DeleteResult, error) {
	if len(criteria) == 0 {
		return DeleteResult{}, nil
	}
	pending := append([]models.AnnotationRow(nil), criteria...)

	slots, exists, err := s.loadOrEmpty(path)
	if err != nil {
		return DeleteResult{}, err
	}
	if !exists {
		return s.partial(path, DeleteResult{Unmatched: pending})
	}

	kept := make([]models.Slot, 0, len(slots))
	removed := 0
	for _, slot := range slots {
		row, ok := slot.Row()
		if !ok {
			continue
		}
		if i := indexOf(pending, row); i >= 0 {
			pending = append(pending[:i], pending[i+1:]...)
			removed++
			continue
		}
		kept = append(kept, slot)
	}

	result := DeleteResult{Removed: removed, Unmatched: pending}
	if removed > 0 {
		renumber(kept)
		if err := s.write(path, kept); err != nil {
			return DeleteResult{}, fmt.Errorf("delete from %s: %w", path, err)
		}
	}
	s.log.Debug("ledger rows deleted", "path", path, "removed", removed, "unmatched", len(pending))
	return s.partial(path, result)
}

func (s *Store) partial(path string, result DeleteResult) (DeleteResult, error) {
	if len(result.Unmatched) == 0 {
		return result, nil
	}
	s.log.Warn("delete criteria not found in ledger", "path", path, "unmatched", len(result.Unmatched))
	return result, &models.PartialDeleteError{Removed: result.Removed, Unmatched: result.Unmatched}
}

func indexOf(criteria []models.AnnotationRow, row models.AnnotationRow) int {
	for i, c := range criteria {
		if c.Equal(row) {
			return i
		}
	}
	return -1
}

// Undo blanks the last occupied slot, keeping its position for Add to reuse.
// It reports whether the ledger changed; an absent or all-blank ledger is
// left untouched.
func (s *Store) Undo(path string) (bool, error) {
	slots, exists, err := s.loadOrEmpty(path)
	if err != nil || !exists {
		return false, err
	}
	for i := len(slots) - 1; i >= 0; i-- {
		if slots[i].IsEmpty() {
			continue
		}
		slots[i] = models.Empty()
		if err := s.write(path, slots); err != nil {
			return false, fmt.Errorf("undo in %s: %w", path, err)
		}
		return true, nil
	}
	return false, nil
}

// Refresh blanks every slot, keeping the row count. It reports whether the
// ledger changed.
func (s *Store) Refresh(path string) (bool, error) {
	slots, exists, err := s.loadOrEmpty(path)
	if err != nil || !exists {
		return false, err
	}
	changed := false
	for i := range slots {
		if !slots[i].IsEmpty() {
			slots[i] = models.Empty()
			changed = true
		}
	}
	if !changed {
		return false, nil
	}
	if err := s.write(path, slots); err != nil {
		return false, fmt.Errorf("refresh %s: %w", path, err)
	}
	return true, nil
}

// Retrieve returns the occupied rows in file order, exactly as stored.
// A missing ledger yields an empty, non-nil slice.
func (s *Store) Retrieve(path string) ([]models.AnnotationRow, error) {
	slots, _, err := s.loadOrEmpty(path)
	if err != nil {
		return nil, err
	}
	rows := make([]models.AnnotationRow, 0, len(slots))
	for _, slot := range slots {
		if row, ok := slot.Row(); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Replace overwrites the whole ledger with rows, numbered 1..k, in one
// atomic write.
func (s *Store) Replace(path string, rows []models.AnnotationRow) error {
	slots := make([]models.Slot, 0, len(rows))
	for i, row := range rows {
		if err := s.validate.Struct(row); err != nil {
			return fmt.Errorf("%w: row %d: %v", models.ErrInvalidRow, i+1, err)
		}
		slots = append(slots, models.Occupied(row.WithDefaults()))
	}
	renumber(slots)
	if err := s.write(path, slots); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// renumber assigns 1..k to the occupied slots in order.
func renumber(slots []models.Slot) {
	n := 0
	for i, slot := range slots {
		row, ok := slot.Row()
		if !ok {
			continue
		}
		n++
		row.ItemNumber = n
		slots[i] = models.Occupied(row)
	}
}
