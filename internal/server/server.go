// Package server exposes the broker over HTTP: chat completion dispatch,
// task status polling, health and metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mlenz-dev/aibroker/internal/broker"
	"github.com/mlenz-dev/aibroker/internal/metrics"
	"github.com/mlenz-dev/aibroker/internal/provider"
)

// Config holds listener settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server wraps the HTTP listener with dependencies and lifecycle management.
type Server struct {
	http     *http.Server
	cfg      Config
	logger   *slog.Logger
	registry *provider.Registry
}

// New creates the HTTP server and mounts all routes.
func New(cfg Config, dispatcher *broker.Dispatcher, poller *broker.Poller, registry *provider.Registry, stats *metrics.Collector, logger *slog.Logger) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{cfg: cfg, logger: logger, registry: registry}

	h := &handlers{
		dispatcher: dispatcher,
		poller:     poller,
		registry:   registry,
		stats:      stats,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat/completions", h.chatCompletions)
	mux.HandleFunc("GET /api/v1/task_status/{id}", h.taskStatus)
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /metrics", h.metrics)

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      LoggingMiddleware(logger)(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Run starts the listener and blocks until the context is cancelled or the
// listener fails. Shutdown drains in-flight requests up to the configured
// timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
