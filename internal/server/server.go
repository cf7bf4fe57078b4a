// Package server exposes plate and identity document extraction over HTTP
// and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer creates a server running extractions on pool.
func NewServer(pool *pipeline.Pool, config Config) (*Server, error) {
	if pool == nil || pool.Context() == nil {
		return nil, errors.New("server needs a pipeline pool")
	}
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 50
	}
	if config.TimeoutSec <= 0 {
		config.TimeoutSec = 30
	}
	if config.CORSOrigin == "" {
		config.CORSOrigin = "*"
	}
	s := &Server{
		pool:        pool,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeout:     time.Duration(config.TimeoutSec) * time.Second,
		modelsDir:   config.ModelsDir,
	}
	if rl := config.RateLimit; rl != nil {
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxDataPerDay)
	}
	return s, nil
}

// Close releases the pipeline context.
func (s *Server) Close() error {
	if s.pool != nil && s.pool.Context() != nil {
		return s.pool.Context().Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/models", s.corsMiddleware(s.modelsHandler))
	mux.HandleFunc("/v1/plates", s.corsMiddleware(s.rateLimitMiddleware(s.plateHandler)))
	mux.HandleFunc("/v1/documents", s.corsMiddleware(s.rateLimitMiddleware(s.documentHandler)))
	mux.HandleFunc("/ws", s.rateLimitMiddleware(s.wsHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// ListenAndServe serves on host:port until ctx is done, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, host string, port int, shutdownTimeout time.Duration) error {
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", addr, "workers", s.pool.Workers())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	slog.Info("Shutting down server", "timeout", shutdownTimeout)
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
