// Package telemetryhttp exposes the process's liveness and Prometheus
// metrics endpoints. Grounded on the reference program's dashboard API
// server: an http.ServeMux wrapped in an http.Server with fixed timeouts,
// a Start that blocks until the server is stopped and a context-bounded Stop.
package telemetryhttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves GET /metrics (Prometheus exposition) and GET / (liveness).
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// New constructs a Server bound to port, scraping registry.
func New(port uint, registry *prometheus.Registry, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf("0.0.0.0:%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With("component", "telemetry-http"),
	}
}

// Start blocks serving until Stop is called or the listener fails. Returns
// nil on a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("telemetry server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("telemetry server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server, bounded by a 10s timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
