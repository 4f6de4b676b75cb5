// Package chi exposes the operational HTTP endpoint of a running
// calculation: Prometheus metrics and a datastore health probe.
package chi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger checks datastore connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the ops endpoints.
type Server struct {
	store  Pinger
	logger *zap.Logger
}

// NewServer creates the ops server.
func NewServer(store Pinger, logger *zap.Logger) *Server {
	return &Server{store: store, logger: logger}
}

// Router builds the chi router with the ops routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/healthz", s.handleHealth)
	return r
}

// handleMetrics handles GET /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type health struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health probe failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, health{Status: "unhealthy", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, health{Status: "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
