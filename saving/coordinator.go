// Package saving copies working ledgers over their saved counterparts.
package saving

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/orian/trendlabel/fsx"
	"github.com/orian/trendlabel/models"
	"github.com/orian/trendlabel/paths"
)

const (
	DefaultAttempts = 3
	DefaultBackoff  = 500 * time.Millisecond
)

// Outcome is the user-facing result of a save. Message is meant to be shown
// as-is; Success drives the toast style and retry affordance.
type Outcome struct {
	Message  string               `json:"message"`
	Success  bool                 `json:"success"`
	Copied   int                  `json:"copied"`
	Total    int                  `json:"total"`
	Failures []models.FileFailure `json:"failures,omitempty"`
}

// Coordinator performs single-file and whole-tree saves. Permission errors
// are retried with a fixed backoff; any other error fails the file at once.
type Coordinator struct {
	Attempts int
	Backoff  time.Duration

	// OnFile, when set, is called once per file SaveAll attempted.
	OnFile func(copied bool)

	log   *slog.Logger
	sleep func(time.Duration)
	copy  func(src, dst string) error
}

// NewCoordinator returns a Coordinator with the default retry policy.
func NewCoordinator(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		Attempts: DefaultAttempts,
		Backoff:  DefaultBackoff,
		log:      logger,
		sleep:    time.Sleep,
		copy:     fsx.CopyFileAtomic,
	}
}

// Save copies the working ledger over the saved ledger.
//
// A missing working ledger yields an unsuccessful Outcome and an error
// wrapping models.ErrNoWorkToSave.
func (c *Coordinator) Save(workingPath, savedPath string) (Outcome, error) {
	if _, err := os.Stat(workingPath); errors.Is(err, fs.ErrNotExist) {
		c.log.Info("nothing to save", "path", workingPath)
		return Outcome{Message: "There is no work to Save!"}, fmt.Errorf("%s: %w", workingPath, models.ErrNoWorkToSave)
	}

	if err := c.copyWithRetry(workingPath, savedPath); err != nil {
		c.log.Error("save failed", "path", workingPath, "error", err)
		return Outcome{Message: fmt.Sprintf("Failed to save progress: %v", err), Total: 1},
			fmt.Errorf("save %s: %w", workingPath, err)
	}
	c.log.Info("ledger saved", "from", workingPath, "to", savedPath)
	return Outcome{Message: "Progress Saved successfully!", Success: true, Copied: 1, Total: 1}, nil
}

// SaveAll mirrors every ledger under <annotationsDir>/Working_Folder into
// <annotationsDir>/Saving_Folder. Every file is attempted; failures are
// aggregated into a *models.PartialSaveError. A missing Working_Folder is a
// successful save of nothing.
func (c *Coordinator) SaveAll(annotationsDir string) (Outcome, error) {
	if strings.TrimSpace(annotationsDir) == "" {
		return Outcome{Message: "Annotations directory is not set."}, fmt.Errorf("%w: empty annotations directory", models.ErrPath)
	}
	workingRoot := filepath.Join(annotationsDir, paths.WorkingFolder)
	savingRoot := filepath.Join(annotationsDir, paths.SavingFolder)

	if info, err := os.Stat(workingRoot); err != nil || !info.IsDir() {
		msg := fmt.Sprintf("Working folder does not exist, nothing to save: %s", workingRoot)
		c.log.Info(msg)
		return Outcome{Message: msg, Success: true}, nil
	}

	files, err := paths.GlobCSV(workingRoot)
	if err != nil {
		return Outcome{Message: fmt.Sprintf("Could not list working files: %v", err)}, err
	}

	outcome := Outcome{Total: len(files)}
	for _, rel := range files {
		native := filepath.FromSlash(rel)
		err := c.copyWithRetry(filepath.Join(workingRoot, native), filepath.Join(savingRoot, native))
		if c.OnFile != nil {
			c.OnFile(err == nil)
		}
		if err != nil {
			c.log.Error("failed to save ledger", "file", native, "error", err)
			outcome.Failures = append(outcome.Failures, models.FileFailure{Path: native, Err: err.Error()})
			continue
		}
		outcome.Copied++
	}

	switch {
	case len(outcome.Failures) > 0:
		failed := make([]string, 0, len(outcome.Failures))
		for _, f := range outcome.Failures {
			failed = append(failed, f.Path)
		}
		outcome.Message = fmt.Sprintf("Save All completed. Successfully saved %d/%d files. Failed to save %d file(s): %s (Check logs for details).",
			outcome.Copied, outcome.Total, len(failed), strings.Join(failed, ", "))
		c.log.Warn(outcome.Message)
		return outcome, &models.PartialSaveError{Saved: outcome.Copied, Total: outcome.Total, Failures: outcome.Failures}
	case outcome.Total == 0:
		outcome.Message = "No CSV files found in the Working_Folder structure to save."
	default:
		outcome.Message = fmt.Sprintf("All %d working CSV file(s) saved successfully!", outcome.Copied)
	}
	outcome.Success = true
	c.log.Info(outcome.Message)
	return outcome, nil
}

func (c *Coordinator) copyWithRetry(src, dst string) error {
	attempts := c.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = c.copy(src, dst); err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrPermission) {
			return err
		}
		if attempt < attempts {
			c.log.Warn("permission error while saving, retrying",
				"file", filepath.Base(src), "attempt", attempt, "of", attempts, "error", err)
			c.sleep(c.Backoff)
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}
