// Package api exposes the engine's lifecycle and metrics operations over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/logflow-dev/logflow/internal/config"
	"github.com/logflow-dev/logflow/internal/engine"
	"github.com/logflow-dev/logflow/internal/plugin"
)

// Server wraps the engine in an HTTP management surface.
type Server struct {
	engine *engine.Engine
	log    logger.ILogger
	http   *http.Server
}

// New creates a management server around the given engine.
func New(eng *engine.Engine, addr string, log logger.ILogger) *Server {
	s := &Server{
		engine: eng,
		log:    log.SubLogger("API"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/metrics", s.handleMetrics)
		r.Route("/pipelines", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/", s.handleLoad)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGet)
				r.Delete("/", s.handleRemove)
				r.Post("/start", s.handleStart)
				r.Post("/stop", s.handleStop)
				r.Post("/restart", s.handleRestart)
			})
		})
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, usable without the embedded http.Server in
// tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Infof("management API listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pipelines": s.engine.ListPipelines()})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetMetrics())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m, err := s.engine.PipelineMetrics(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleLoad accepts a pipeline document as JSON (the YAML schema's JSON
// rendering) and loads it. ?replace=true replaces an existing pipeline;
// ?start=true starts it immediately.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var cfg config.Pipeline
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	replace := r.URL.Query().Get("replace") == "true"

	name, err := s.engine.LoadPipeline(r.Context(), &cfg, replace)
	if err != nil {
		status := http.StatusConflict
		if plugin.IsConfigError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	if r.URL.Query().Get("start") == "true" {
		if err := s.engine.StartPipeline(r.Context(), name); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]string{"name": name})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.engine.RemovePipeline(r.Context(), name); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "status": "removed"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, "started", s.engine.StartPipeline)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, "stopped", s.engine.StopPipeline)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, "restarted", s.engine.RestartPipeline)
}

func (s *Server) lifecycle(w http.ResponseWriter, r *http.Request, verb string, op func(context.Context, string) error) {
	name := chi.URLParam(r, "name")
	if err := op(r.Context(), name); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "status": verb})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
