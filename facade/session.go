package facade

import (
	"context"
	"sync"

	"github.com/orian/trendlabel/models"
	"github.com/orian/trendlabel/paths"
)

// SessionState is a snapshot of a session.
type SessionState struct {
	ID       string `json:"id"`
	FilePath string `json:"file_path"`
	Dirty    bool   `json:"dirty"`
	Timezone string `json:"timezone"`
}

// Session is the per-connection state: the selected data file, whether the
// user changed anything since loading it, and the timezone of its series.
// Tasks on one session run one at a time.
type Session struct {
	id string
	f  *Facade

	mu       sync.Mutex
	filePath string
	dirty    bool
	timezone string
}

// NewSession starts a session with no file selected.
func (f *Facade) NewSession(id string) *Session {
	return &Session{id: id, f: f, timezone: f.cfg.DefaultTimezone}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// SelectFile makes identifier the session's current file and marks the
// session clean.
func (s *Session) SelectFile(identifier string) error {
	cleaned, err := paths.Clean(identifier)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filePath = cleaned
	s.dirty = false
	s.timezone = s.f.cfg.DefaultTimezone
	return nil
}

// Handle runs req against the session. An empty FilePath targets the
// currently selected file.
func (s *Session) Handle(ctx context.Context, req models.TaskRequest) models.TaskResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.FilePath == "" {
		req.FilePath = s.filePath
	}
	res, tz := s.f.run(ctx, s.id, req, s.timezone)
	s.timezone = tz

	if res.Success {
		switch {
		case req.Task.Mutates():
			s.dirty = true
		case req.Task == models.TaskSave, req.Task == models.TaskSaveAll:
			s.dirty = false
		}
	}
	return res
}

// State returns a snapshot of the session.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionState{ID: s.id, FilePath: s.filePath, Dirty: s.dirty, Timezone: s.timezone}
}
