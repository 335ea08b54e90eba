// Package server exposes batch progress over HTTP for long-running runs.
//
// The server is optional (enabled with --status-addr) and read-only: it
// reports the scheduler's ledger counters and a health check, nothing
// more. It never influences scheduling.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rohankumardubey/Structure-threader/pkg/ledger"
)

// ProgressSource yields the current batch counters. The scheduler pool
// satisfies this.
type ProgressSource interface {
	Progress() ledger.Progress
}

// Server serves batch status endpoints.
type Server struct {
	host    string
	port    int
	batchID string
	source  ProgressSource
	started time.Time
	router  chi.Router
	logger  *zap.Logger
}

// New creates a status server for one batch.
func New(host string, port int, batchID string, source ProgressSource) *Server {
	s := &Server{
		host:    host,
		port:    port,
		batchID: batchID,
		source:  source,
		started: time.Now(),
		logger:  zap.NewNop(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/v1/progress", s.handleProgress)
	s.router = r

	return s
}

// WithLogger sets the structured logger. Returns the server for chaining.
func (s *Server) WithLogger(l *zap.Logger) *Server {
	s.logger = l
	return s
}

// Handler returns the HTTP handler, exposed for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Port returns the configured port.
func (s *Server) Port() int { return s.port }

// Addr returns the listen address.
func (s *Server) Addr() string { return fmt.Sprintf("%s:%d", s.host, s.port) }

// Start serves until ctx is cancelled, then shuts down gracefully.
// Intended to run in its own goroutine alongside the batch.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("status server shutdown", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("status server: %w", err)
	}
}

// HealthResponse is the /healthz payload.
type HealthResponse struct {
	Status  string `json:"status"`
	BatchID string `json:"batch_id"`
}

// ProgressResponse is the /api/v1/progress payload.
type ProgressResponse struct {
	BatchID  string          `json:"batch_id"`
	Progress ledger.Progress `json:"progress"`
	Elapsed  string          `json:"elapsed"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", BatchID: s.batchID})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	resp := ProgressResponse{
		BatchID: s.batchID,
		Elapsed: time.Since(s.started).Round(time.Second).String(),
	}
	if s.source != nil {
		resp.Progress = s.source.Progress()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
