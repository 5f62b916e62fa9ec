// Package facade is the single entry point of the annotation engine. It
// turns task requests into ledger, save and auto-label operations and
// always answers with a models.TaskResult.
package facade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/orian/trendlabel/inference"
	"github.com/orian/trendlabel/ledger"
	"github.com/orian/trendlabel/models"
	"github.com/orian/trendlabel/paths"
	"github.com/orian/trendlabel/ranges"
	"github.com/orian/trendlabel/saving"
)

// SeriesReader loads the raw time series behind a data-file identifier.
type SeriesReader interface {
	ReadSeries(ctx context.Context, identifier string) (*models.Series, error)
}

// ModelResolver maps a registry model name to its artifact location.
type ModelResolver interface {
	Resolve(name string) (string, error)
}

// Publisher receives the rows of a freshly saved ledger.
type Publisher interface {
	Publish(ctx context.Context, identifier string, rows []models.AnnotationRow) error
}

// Observer is notified after every task.
type Observer func(sessionID string, req models.TaskRequest, res models.TaskResult, elapsed time.Duration)

// Config wires the facade to its collaborators. Series, Models and
// Predictor are only needed for Auto_Label; Publisher and Observer are optional.
type Config struct {
	Resolver  *paths.Resolver
	Store     *ledger.Store
	Saver     *saving.Coordinator
	Locks     *ledger.Locks
	Series    SeriesReader
	Models    ModelResolver
	Predictor inference.Predictor
	Publisher Publisher
	Observer  Observer

	// Labels is the vocabulary used when a request carries no labels_list.
	Labels []models.LabelSpec

	// DefaultTimezone seeds every session.
	DefaultTimezone string

	Logger *slog.Logger
}

// Facade dispatches tasks. It is safe for concurrent use; mutations of the
// same working ledger are serialized through Config.Locks.
type Facade struct {
	cfg Config
	log *slog.Logger
}

// New builds a Facade, filling unset collaborators with defaults.
func New(cfg Config) *Facade {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Store == nil {
		cfg.Store = ledger.NewStore(cfg.Logger)
	}
	if cfg.Saver == nil {
		cfg.Saver = saving.NewCoordinator(cfg.Logger)
	}
	if cfg.Locks == nil {
		cfg.Locks = ledger.NewLocks()
	}
	if len(cfg.Labels) == 0 {
		cfg.Labels = models.DefaultLabels()
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	return &Facade{cfg: cfg, log: cfg.Logger}
}

// Dispatch runs one stateless task in the default timezone.
func (f *Facade) Dispatch(ctx context.Context, req models.TaskRequest) models.TaskResult {
	res, _ := f.run(ctx, "", req, f.cfg.DefaultTimezone)
	return res
}

// SaveDataset runs SaveAll for "<annotations root>/<dataset>_CSV_Annotations".
func (f *Facade) SaveDataset(dataset string) (saving.Outcome, error) {
	cleaned, err := paths.Clean(dataset)
	if err != nil {
		return saving.Outcome{}, err
	}
	return f.cfg.Saver.SaveAll(f.cfg.Resolver.AnnotationsDir(cleaned))
}

// run executes req and reports the timezone the session should keep.
// It never panics.
func (f *Facade) run(ctx context.Context, sessionID string, req models.TaskRequest, tz string) (res models.TaskResult, newTZ string) {
	start := time.Now()
	newTZ = tz
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("task panicked",
				"task", req.Task, "session", sessionID, "panic", r, "stack", string(debug.Stack()))
			res = failure(req.Task, &models.TaskError{
				Kind:    models.KindInternal,
				Message: fmt.Sprintf("internal error: %v", r),
			})
		}
		if f.cfg.Observer != nil {
			f.cfg.Observer(sessionID, req, res, time.Since(start))
		}
	}()

	if !req.Task.IsValid() {
		return fail(req.Task, fmt.Errorf("%w: %q", models.ErrInvalidTask, req.Task)), newTZ
	}

	resolved, err := f.cfg.Resolver.Resolve(req.FilePath)
	if err != nil {
		return fail(req.Task, err), newTZ
	}
	log := f.log.With("task", string(req.Task), "file", resolved.Identifier)
	if sessionID != "" {
		log = log.With("session", sessionID)
	}

	switch req.Task {
	case models.TaskAdd:
		res = f.add(resolved, req)
	case models.TaskDelete:
		res = f.delete(resolved, req)
	case models.TaskRetrieve:
		res = f.retrieve(resolved)
	case models.TaskUndo:
		res = f.mutate(resolved, req.Task, f.cfg.Store.Undo)
	case models.TaskRefresh:
		res = f.mutate(resolved, req.Task, f.cfg.Store.Refresh)
	case models.TaskSave:
		res = f.save(ctx, resolved, log)
	case models.TaskSaveAll:
		res = f.saveAll(resolved)
	case models.TaskAutoLabel:
		res, newTZ = f.autoLabel(ctx, resolved, req, tz, log)
	}

	if res.Error != nil {
		log.Warn("task failed", "kind", res.Error.Kind, "error", res.Error.Message)
	} else {
		log.Debug("task done", "rows", len(res.Rows))
	}
	return res, newTZ
}

func (f *Facade) lock(resolved paths.Resolved) func() {
	return f.cfg.Locks.Lock(resolved.WorkingPath)
}

func (f *Facade) add(resolved paths.Resolved, req models.TaskRequest) models.TaskResult {
	if len(req.AnnotationData) == 0 {
		return fail(req.Task, fmt.Errorf("%w: add requires annotation_data", models.ErrInvalidTask))
	}
	rows, err := models.DecodeRows(req.AnnotationData)
	if err != nil {
		return fail(req.Task, fmt.Errorf("%w: %v", models.ErrInvalidRow, err))
	}

	unlock := f.lock(resolved)
	defer unlock()
	if err := f.cfg.Store.Add(resolved.WorkingPath, rows); err != nil {
		return fail(req.Task, err)
	}
	return models.TaskResult{Task: req.Task, Success: true}
}

func (f *Facade) delete(resolved paths.Resolved, req models.TaskRequest) models.TaskResult {
	criteria, err := models.DecodeRows(req.DeleteData)
	if err != nil {
		return fail(req.Task, fmt.Errorf("%w: %v", models.ErrInvalidRow, err))
	}

	unlock := f.lock(resolved)
	defer unlock()
	result, err := f.cfg.Store.Delete(resolved.WorkingPath, criteria)

	var partial *models.PartialDeleteError
	switch {
	case errors.As(err, &partial):
		// matched rows are gone; the rest is reported back
		return models.TaskResult{
			Task:      req.Task,
			Success:   true,
			Message:   fmt.Sprintf("Deleted %d row(s); %d not found.", result.Removed, len(result.Unmatched)),
			Unmatched: result.Unmatched,
			Error:     models.NewTaskError(err),
		}
	case err != nil:
		return fail(req.Task, err)
	}
	return models.TaskResult{Task: req.Task, Success: true}
}

func (f *Facade) retrieve(resolved paths.Resolved) models.TaskResult {
	rows, err := f.cfg.Store.Retrieve(resolved.WorkingPath)
	if err != nil {
		return fail(models.TaskRetrieve, err)
	}
	return models.TaskResult{Task: models.TaskRetrieve, Success: true, Rows: rows}
}

func (f *Facade) mutate(resolved paths.Resolved, task models.TaskName, op func(string) (bool, error)) models.TaskResult {
	unlock := f.lock(resolved)
	defer unlock()
	if _, err := op(resolved.WorkingPath); err != nil {
		return fail(task, err)
	}
	return models.TaskResult{Task: task, Success: true}
}

func (f *Facade) save(ctx context.Context, resolved paths.Resolved, log *slog.Logger) models.TaskResult {
	unlock := f.lock(resolved)
	outcome, err := f.cfg.Saver.Save(resolved.WorkingPath, resolved.SavedPath)
	unlock()

	res := models.TaskResult{
		Task:    models.TaskSave,
		Success: outcome.Success,
		Message: outcome.Message,
		Error:   models.NewTaskError(err),
	}
	if err == nil && f.cfg.Publisher != nil {
		f.publish(ctx, resolved, log)
	}
	return res
}

func (f *Facade) publish(ctx context.Context, resolved paths.Resolved, log *slog.Logger) {
	rows, err := f.cfg.Store.Retrieve(resolved.SavedPath)
	if err == nil {
		err = f.cfg.Publisher.Publish(ctx, resolved.Identifier, rows)
	}
	if err != nil {
		log.Warn("publishing saved ledger failed", "error", err)
	}
}

func (f *Facade) saveAll(resolved paths.Resolved) models.TaskResult {
	outcome, err := f.cfg.Saver.SaveAll(resolved.AnnotationsDir)
	return models.TaskResult{
		Task:    models.TaskSaveAll,
		Success: outcome.Success,
		Message: outcome.Message,
		Error:   models.NewTaskError(err),
	}
}

// autoLabel replaces the working ledger with model predictions. Any failure
// leaves the ledger untouched and yields an empty row set.
func (f *Facade) autoLabel(ctx context.Context, resolved paths.Resolved, req models.TaskRequest, tz string, log *slog.Logger) (models.TaskResult, string) {
	rows, detected, err := f.predictRows(ctx, resolved, req, tz)
	if err != nil {
		log.Error("auto-labeling failed", "model", req.SelectedModel, "error", err)
		res := fail(req.Task, err)
		res.Rows = []models.AnnotationRow{}
		return res, tz
	}

	unlock := f.lock(resolved)
	defer unlock()
	if err := f.cfg.Store.Replace(resolved.WorkingPath, rows); err != nil {
		return fail(req.Task, err), detected
	}
	stored, err := f.cfg.Store.Retrieve(resolved.WorkingPath)
	if err != nil {
		return fail(req.Task, err), detected
	}
	log.Info("auto-labeling replaced working ledger", "model", req.SelectedModel, "ranges", len(stored))
	return models.TaskResult{Task: req.Task, Success: true, Rows: stored}, detected
}

func (f *Facade) predictRows(ctx context.Context, resolved paths.Resolved, req models.TaskRequest, tz string) ([]models.AnnotationRow, string, error) {
	if req.SelectedModel == "" {
		return nil, tz, fmt.Errorf("%w: Auto_Label requires selected_model", models.ErrInvalidTask)
	}
	if f.cfg.Series == nil || f.cfg.Models == nil || f.cfg.Predictor == nil {
		return nil, tz, fmt.Errorf("auto-labeling is not configured")
	}

	specs := req.LabelsList
	if len(specs) == 0 {
		specs = f.cfg.Labels
	}
	mapping, err := models.LabelMapping(specs)
	if err != nil {
		return nil, tz, fmt.Errorf("%w: %v", models.ErrInvalidPredictionInput, err)
	}

	modelFile, err := f.cfg.Models.Resolve(req.SelectedModel)
	if err != nil {
		return nil, tz, err
	}
	series, err := f.cfg.Series.ReadSeries(ctx, resolved.Identifier)
	if err != nil {
		return nil, tz, err
	}
	if series.Timezone != "" {
		tz = series.Timezone
	}
	if req.Timezone != "" {
		tz = req.Timezone
	}
	loc, err := models.LoadLocation(tz)
	if err != nil {
		return nil, tz, fmt.Errorf("%w: timezone %q: %v", models.ErrInvalidPredictionInput, tz, err)
	}

	features, err := inference.Prepare(series)
	if err != nil {
		return nil, tz, err
	}
	timestamps := make([]string, len(series.Index))
	for i, ts := range series.Index {
		timestamps[i] = ranges.FormatTimestamp(ts.In(loc))
	}
	labels, err := f.cfg.Predictor.Predict(ctx, inference.Request{
		Model:      req.SelectedModel,
		ModelFile:  modelFile,
		Timestamps: timestamps,
		Columns:    series.Columns,
		Features:   features,
	})
	if err != nil {
		return nil, tz, err
	}

	built, err := ranges.Build(series.Index, labels, mapping, loc)
	if err != nil {
		return nil, tz, err
	}
	return ranges.ToRows(built), tz, nil
}

func fail(task models.TaskName, err error) models.TaskResult {
	return failure(task, models.NewTaskError(err))
}

func failure(task models.TaskName, te *models.TaskError) models.TaskResult {
	return models.TaskResult{Task: task, Success: false, Message: te.Message, Error: te}
}
