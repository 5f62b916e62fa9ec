package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/orian/trendlabel/facade"
	"github.com/orian/trendlabel/models"
	"github.com/orian/trendlabel/registry"
)

// Websocket message types.
const (
	msgSessionCreated = "session_created"
	msgSelectFile     = "select_file"
	msgFileSelected   = "file_selected"
	msgTask           = "task"
	msgTaskResult     = "task_result"
	msgError          = "error"
)

// wsRequest is one client message. Task fields are inlined next to the type.
type wsRequest struct {
	Type string `json:"type"`
	models.TaskRequest
}

type wsResponse struct {
	Type      string             `json:"type"`
	SessionID string             `json:"session_id,omitempty"`
	FilePath  string             `json:"file_path,omitempty"`
	Models    []registry.Model   `json:"models,omitempty"`
	Result    *models.TaskResult `json:"result,omitempty"`
	Error     *models.TaskError  `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

func (s *Server) sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		s.log.Warn("failed to write websocket JSON", "error", err)
	}
	return err
}

// handleWebSocket runs one annotation session per connection. Messages on
// a connection are handled in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	session := s.facade.NewSession(uuid.New().String())
	log := s.log.With("session", session.ID())
	activeSessions.Inc()
	defer activeSessions.Dec()
	log.Info("websocket session started")

	if err := s.sendJSON(ws, wsResponse{Type: msgSessionCreated, SessionID: session.ID()}); err != nil {
		return
	}

	ctx := r.Context()
	for {
		var req wsRequest
		if err := ws.ReadJSON(&req); err != nil {
			log.Info("websocket client disconnected", "error", err.Error())
			return
		}

		var resp wsResponse
		switch req.Type {
		case msgSelectFile:
			resp = s.selectFile(session, req.FilePath)
		case msgTask, "":
			result := session.Handle(ctx, req.TaskRequest)
			resp = wsResponse{Type: msgTaskResult, Result: &result}
		default:
			resp = wsResponse{Type: msgError, Error: &models.TaskError{
				Kind:    models.KindInvalidTask,
				Message: "unknown message type " + req.Type,
			}}
		}
		if err := s.sendJSON(ws, resp); err != nil {
			return
		}
	}
}

// selectFile switches the session file and replies with the model list
// the client offers for auto-labeling.
func (s *Server) selectFile(session *facade.Session, filePath string) wsResponse {
	if err := session.SelectFile(filePath); err != nil {
		return wsResponse{Type: msgError, Error: models.NewTaskError(err)}
	}
	list, err := s.registry.List()
	if err != nil {
		s.log.Warn("failed to list models", "error", err)
		list = []registry.Model{}
	}
	return wsResponse{Type: msgFileSelected, FilePath: session.State().FilePath, Models: list}
}
