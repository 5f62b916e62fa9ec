package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orian/trendlabel/facade"
	"github.com/orian/trendlabel/models"
	"github.com/orian/trendlabel/paths"
	"github.com/orian/trendlabel/registry"
)

// Server handles HTTP and websocket requests on top of the annotation facade.
type Server struct {
	facade    *facade.Facade
	storage   models.Storage
	registry  *registry.Registry
	rawDir    string
	staticDir string

	// warehouse is nil when ClickHouse is not configured.
	warehouse *ClickHousePublisher

	log *slog.Logger
}

func NewServer(f *facade.Facade, storage models.Storage, reg *registry.Registry, rawDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		facade:   f,
		storage:  storage,
		registry: reg,
		rawDir:   rawDir,
		log:      logger,
	}
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTaskRequest(r.Body)
	if err != nil {
		te := models.NewTaskError(err)
		writeJSON(w, http.StatusBadRequest, models.TaskResult{Message: te.Message, Error: te})
		return
	}

	res := s.facade.Dispatch(r.Context(), req)
	writeJSON(w, taskStatus(res), res)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := paths.ListDataFiles(s.rawDir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	list, err := s.registry.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRegisterModel(w http.ResponseWriter, r *http.Request) {
	var req registry.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.registry.Register(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	history, err := s.storage.ListTasks(r.URL.Query().Get("file_path"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	record, ok := s.storage.GetTask(chi.URLParam(r, "taskId"))
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"timestamp": time.Now().Unix(),
		"warehouse": s.warehouse != nil,
	}

	if s.warehouse != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		err := s.warehouse.Ping(ctx)
		response["connected"] = err == nil
		if err != nil {
			response["error"] = err.Error()
			s.log.Warn("ClickHouse ping failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/tasks", s.handleTask)
		r.Get("/files", s.handleListFiles)

		r.Get("/models", s.handleListModels)
		r.Post("/models", s.handleRegisterModel)

		r.Get("/history", s.handleGetHistory)
		r.Get("/history/{taskId}", s.handleGetTask)

		r.Get("/server/ping", s.handlePing)
	})

	r.Get("/ws", s.handleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	if s.staticDir != "" {
		if info, err := os.Stat(s.staticDir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(s.staticDir)))
		}
	}
	return r
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(1)
	}
}
