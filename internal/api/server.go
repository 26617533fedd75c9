// Package api exposes the daemon's read-only status endpoints and the cancel
// action over HTTP for local tooling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gantry/internal/config"
	"gantry/internal/logging"
	"gantry/internal/queue"
)

// Server serves the HTTP API on the configured bind address.
type Server struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// NewServer wires the API handlers over the queue store.
func NewServer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{cfg: cfg, store: store, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.auth(s.handleStatus))
	mux.HandleFunc("GET /api/queue", s.auth(s.handleQueue))
	mux.HandleFunc("POST /api/queue/{id}/cancel", s.auth(s.handleCancel))

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start binds the listener and serves in a background goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Paths.APIBind)
	if err != nil {
		return fmt.Errorf("bind api listener on %s: %w", s.cfg.Paths.APIBind, err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", logging.Error(err))
		}
	}()
	s.logger.Info("api server listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listener address, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	token := strings.TrimSpace(s.cfg.Paths.APIToken)
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got != token {
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.store.CheckHealth(r.Context())
	if err != nil || !health.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type statusResponse struct {
	Queue   queue.HealthSummary `json:"queue"`
	Batches []batchSummary      `json:"batches"`
}

type batchSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Success   int    `json:"success"`
	Failed    int    `json:"failed"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Health(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	batches, err := s.store.ListBatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := statusResponse{Queue: summary, Batches: make([]batchSummary, 0, len(batches))}
	for _, job := range batches {
		response.Batches = append(response.Batches, batchSummary{
			ID:        job.ID,
			Name:      job.Name,
			Status:    string(job.Status),
			Total:     job.TotalCount,
			Processed: job.ProcessedCount,
			Success:   job.SuccessCount,
			Failed:    job.FailedCount,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

type queueEntryView struct {
	ID        int64  `json:"id"`
	FileID    int64  `json:"file_id"`
	BatchID   string `json:"batch_id,omitempty"`
	Status    string `json:"status"`
	Priority  string `json:"priority"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
	AddedAt   string `json:"added_at"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := queue.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		statuses = append(statuses, status)
	}

	entries, err := s.store.ListEntries(r.Context(), statuses...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]queueEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, queueEntryView{
			ID:        entry.ID,
			FileID:    entry.FileID,
			BatchID:   entry.BatchID,
			Status:    string(entry.Status),
			Priority:  string(entry.Priority),
			Attempts:  entry.Attempts,
			LastError: entry.LastError,
			AddedAt:   entry.AddedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": views})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	changed, err := s.store.RequestCancel(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !changed {
		writeError(w, http.StatusNotFound, "entry not found or already terminal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
