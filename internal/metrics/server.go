package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusFunc returns a point-in-time summary of session health. The value
// is rendered as JSON by the /status endpoint.
type StatusFunc func() any

// ServerConfig configures the operational HTTP server.
type ServerConfig struct {
	Addr   string
	Logger *slog.Logger

	// Status, when set, is served as JSON at /status. Nil disables the
	// endpoint.
	Status StatusFunc
}

// Server exposes Prometheus metrics, liveness probes, and a JSON status
// summary for operator tooling. The kiosk renderer never talks to it.
type Server struct {
	addr   string
	server *http.Server
	logger *slog.Logger
	status StatusFunc
}

// NewServer creates the operational HTTP server. Call Start to begin
// serving.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		addr:   cfg.Addr,
		logger: cfg.Logger,
		status: cfg.Status,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler)
	mux.HandleFunc("/status", s.statusHandler)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		s.logger.Warn("status_encode_failed", "error", err)
	}
}

// Start starts the server in a goroutine. Returns immediately. Use
// Shutdown to stop.
func (s *Server) Start() error {
	s.logger.Info("metrics_server_starting", "addr", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics_server_error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("metrics_server_shutting_down")
	return s.server.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.addr
}
