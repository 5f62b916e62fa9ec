// Package registry exposes the model registry: a CSV list of trained models
// kept next to the model files themselves.
package registry

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/orian/trendlabel/fsx"
	"github.com/orian/trendlabel/models"
)

// ListFile is the registry file name inside the models directory.
const ListFile = "_Models_List.csv"

var listHeader = []string{"Model Name", "Model File", "Remarks", "Short Description"}

// Model is one usable registry entry.
type Model struct {
	Name string `json:"name"`

	// File is the absolute location of the model artifact.
	File string `json:"Model File"`

	Remarks          string `json:"Remarks"`
	ShortDescription string `json:"Short Description"`
}

// Registration is the metadata appended for a newly uploaded model.
type Registration struct {
	Name string `json:"name" validate:"required"`

	// File is the artifact's base name inside the models directory.
	File string `json:"file" validate:"required"`

	Remarks          string `json:"remarks"`
	ShortDescription string `json:"short_description"`
}

// Registry reads and appends to <dir>/_Models_List.csv. Loads are cached
// until the file changes (see Watch) or Invalidate is called.
type Registry struct {
	dir      string
	log      *slog.Logger
	validate *validator.Validate

	flight singleflight.Group

	mu     sync.RWMutex
	cached []Model
	valid  bool
}

// New returns a registry over dir.
func New(dir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{dir: dir, log: logger, validate: validator.New()}
}

// Path returns the registry file location.
func (r *Registry) Path() string {
	return filepath.Join(r.dir, ListFile)
}

// List returns the models whose artifact exists on disk, in file order.
// A missing registry file is an empty registry.
func (r *Registry) List() ([]Model, error) {
	r.mu.RLock()
	if r.valid {
		out := append([]Model(nil), r.cached...)
		r.mu.RUnlock()
		return out, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.flight.Do("load", func() (interface{}, error) {
		loaded, err := r.load()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cached, r.valid = loaded, true
		r.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]Model(nil), v.([]Model)...), nil
}

// Resolve returns the artifact location of the named model.
func (r *Registry) Resolve(name string) (string, error) {
	list, err := r.List()
	if err != nil {
		return "", err
	}
	for _, m := range list {
		if m.Name == name {
			return m.File, nil
		}
	}
	return "", fmt.Errorf("%w: %q", models.ErrModelNotFound, name)
}

// Register appends a metadata row, creating the registry file with its
// header when needed. The artifact must already be in the models directory.
func (r *Registry) Register(reg Registration) error {
	if err := r.validate.Struct(reg); err != nil {
		return fmt.Errorf("invalid registration: %w", err)
	}
	if reg.File != filepath.Base(reg.File) || strings.HasPrefix(reg.File, ".") {
		return fmt.Errorf("%w: model file must be a plain file name, got %q", models.ErrPath, reg.File)
	}

	header, err := csvLine(listHeader)
	if err != nil {
		return err
	}
	line, err := csvLine([]string{reg.Name, reg.File, reg.Remarks, reg.ShortDescription})
	if err != nil {
		return err
	}
	if err := fsx.AppendLineLocked(r.Path(), header, line, 0o644); err != nil {
		return fmt.Errorf("register model %q: %w", reg.Name, err)
	}
	r.Invalidate()
	r.log.Info("model registered", "model", reg.Name, "file", reg.File)
	return nil
}

// Invalidate drops the cached list.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.valid = false
	r.cached = nil
	r.mu.Unlock()
}

// Watch invalidates the cache whenever the models directory changes.
// It blocks until ctx is cancelled.
func (r *Registry) Watch(ctx context.Context) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create models directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("watch %s: %w", r.dir, err)
	}
	r.log.Debug("watching model registry", "dir", r.dir)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if strings.HasSuffix(event.Name, ".lock") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				r.log.Debug("model registry changed", "path", event.Name, "op", event.Op.String())
				r.Invalidate()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("model registry watcher error", "error", err)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Registry) load() ([]Model, error) {
	f, err := os.Open(r.Path())
	if errors.Is(err, fs.ErrNotExist) {
		r.log.Warn("model registry not found", "path", r.Path())
		return []Model{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open model registry: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []Model{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read model registry header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	field := func(record []string, name string) string {
		if i, ok := col[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	list := []Model{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read model registry: %w", err)
		}
		name := field(record, "Model Name")
		if name == "" {
			r.log.Warn("skipping registry row without a model name", "row", record)
			continue
		}
		file := filepath.Join(r.dir, filepath.Clean(field(record, "Model File")))
		if _, err := os.Stat(file); err != nil {
			r.log.Warn("model file not found", "model", name, "path", file)
			continue
		}
		list = append(list, Model{
			Name:             name,
			File:             file,
			Remarks:          field(record, "Remarks"),
			ShortDescription: field(record, "Short Description"),
		})
	}
	return list, nil
}

func csvLine(fields []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
