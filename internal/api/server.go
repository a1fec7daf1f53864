// Package api provides the HTTP server for the rivals daemon.
// It exposes the live game state, task actions and the daily summary handoff.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/rivals/internal/app/arbiter"
	"github.com/tutu-network/rivals/internal/app/reconcile"
	"github.com/tutu-network/rivals/internal/domain"
	"github.com/tutu-network/rivals/internal/health"
)

// Game is the part of the game engine the API drives.
type Game interface {
	Snapshot() domain.Snapshot
	PendingSummary() (domain.DailySummary, bool)
	Today() domain.Date
	Observe()
	Reconcile(ctx context.Context) (reconcile.Result, error)
	CompleteTask(ctx context.Context, taskID string) (arbiter.Verdict, error)
	StartTask(ctx context.Context, taskID string) (domain.Task, error)
	AddTask(ctx context.Context, req arbiter.NewTask) (domain.Task, error)
	AckSummary(ctx context.Context, date domain.Date) (domain.DailySummary, error)
	MarkNotificationsRead(ctx context.Context, id string) (int, error)
}

// HistoryFunc lists past summaries, newest first.
type HistoryFunc func(ctx context.Context, limit int) ([]domain.DailySummary, error)

// Server is the rivals HTTP API server.
type Server struct {
	game           Game
	health         *health.Checker
	history        HistoryFunc
	metricsEnabled bool
	version        string
}

// NewServer creates a new API server.
func NewServer(game Game) *Server {
	return &Server{game: game, version: "dev"}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth makes /health report the checker's results.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetHistory enables GET /api/summary/history.
func (s *Server) SetHistory(fn HistoryFunc) { s.history = fn }

// SetVersion sets the version reported by /api/version.
func (s *Server) SetVersion(v string) { s.version = v }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": s.version,
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/reconcile", s.handleReconcile)

		r.Post("/tasks", s.handleAddTask)
		r.Post("/tasks/{id}/start", s.handleStartTask)
		r.Post("/tasks/{id}/complete", s.handleCompleteTask)

		r.Get("/summary", s.handleSummary)
		r.Get("/summary/history", s.handleSummaryHistory)
		r.Post("/summary/{date}/ack", s.handleAckSummary)

		r.Post("/notifications/read", s.handleMarkRead)
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
