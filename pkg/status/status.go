// Package status exposes the progress of a running regression over HTTP
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thc1006/nmeta-systemtest/pkg/security"
)

// Snapshot is the progress of a run at one point in time
type Snapshot struct {
	RunID     string    `json:"run_id,omitempty"`
	BaseDir   string    `json:"base_dir,omitempty"`
	Phase     string    `json:"phase"`
	Family    string    `json:"family,omitempty"`
	Test      string    `json:"test,omitempty"`
	Iteration int       `json:"iteration,omitempty"`
	Completed int       `json:"completed"`
	Failed    bool      `json:"failed"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Phases reported in Snapshot.Phase
const (
	PhaseStarting    = "starting"
	PhaseEnvironment = "environment"
	PhaseTesting     = "testing"
	PhaseSettling    = "settling"
	PhaseDone        = "done"
)

// Tracker holds the current progress. The driver writes it, HTTP handlers
// read it.
type Tracker struct {
	mu       sync.RWMutex
	snapshot Snapshot
	now      func() time.Time
}

// NewTracker creates a tracker in the starting phase
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.snapshot = Snapshot{Phase: PhaseStarting, UpdatedAt: t.now()}
	return t
}

// SetRun records the identity of the run
func (t *Tracker) SetRun(runID, baseDir string) {
	t.update(func(s *Snapshot) {
		s.RunID = runID
		s.BaseDir = baseDir
	})
}

// SetPhase records the current phase
func (t *Tracker) SetPhase(phase string) {
	t.update(func(s *Snapshot) { s.Phase = phase })
}

// StartTest records the test iteration being executed
func (t *Tracker) StartTest(family, test string, iteration int) {
	t.update(func(s *Snapshot) {
		s.Phase = PhaseTesting
		s.Family = family
		s.Test = test
		s.Iteration = iteration
	})
}

// CompleteTest counts a finished test iteration
func (t *Tracker) CompleteTest() {
	t.update(func(s *Snapshot) { s.Completed++ })
}

// Finish records the end of the run
func (t *Tracker) Finish(err error) {
	t.update(func(s *Snapshot) {
		s.Phase = PhaseDone
		if err != nil {
			s.Failed = true
			s.Error = err.Error()
		}
	})
}

// Snapshot returns a copy of the current progress
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot
}

func (t *Tracker) update(fn func(*Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.snapshot)
	t.snapshot.UpdatedAt = t.now()
}

// NewRouter serves the tracker and the metrics gathered from gatherer
func NewRouter(tracker *Tracker, gatherer prometheus.Gatherer, logger *slog.Logger) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}).Methods(http.MethodGet)

	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, tracker.Snapshot(), logger)
	}).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return router
}

// writeJSONResponse buffers the encoding so a failure can still become a 500
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}, logger *slog.Logger) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", security.SanitizeErrorForLog(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Debug("failed to write response", "error", security.SanitizeErrorForLog(err))
	}
}

// Server runs the status router on a listen address
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a status server for addr
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background until Shutdown
func (s *Server) Start() {
	go func() {
		s.logger.Info("starting status server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", "error", security.SanitizeErrorForLog(err))
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}
