// Package server exposes the chat API over HTTP: the chat pipeline, the
// session management surface, health, and metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/venturemind/mentord/internal/metrics"
	"github.com/venturemind/mentord/internal/session"
)

// Server is the chat API HTTP server
type Server struct {
	options     Options
	server      *http.Server
	registry    *session.Registry
	metrics     *metrics.Metrics
	rateLimiter *RateLimiter
	logger      zerolog.Logger

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// New creates a new chat API server
func New(options Options, registry *session.Registry, m *metrics.Metrics, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 8000
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.RequestTimeout == 0 {
		options.RequestTimeout = 30 * time.Second
	}

	if registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if m == nil {
		return nil, fmt.Errorf("metrics are required")
	}

	s := &Server{
		options:  options,
		registry: registry,
		metrics:  m,
		logger:   logger,
	}

	if options.RateLimitPerMinute > 0 {
		s.rateLimiter = NewRateLimiter(options.RateLimitPerMinute)
	}

	return s, nil
}

// Handler builds the full route and middleware stack.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("DELETE /api/chat/{sessionId}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.Handle("GET /metrics", s.metrics.Handler())

	var handler http.Handler = mux
	handler = s.trackInFlight(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return handler
}

// trackInFlight rejects new work during shutdown and counts live requests.
func (s *Server) trackInFlight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			writeError(w, http.StatusServiceUnavailable, "Server is shutting down", "")
			return
		}
		s.shutdownMu.RUnlock()

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()

		next.ServeHTTP(w, r)
	})
}

// Start starts the server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.Handler(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting chat API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start chat API server: %w", err)
	}

	return nil
}

// Stop gracefully stops the server: refuse new requests, wait for in-flight
// work with a bound, then shut down and clear the registry. Provider-side
// session state is not drained.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down chat API server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown chat API server: %w", err)
		}
	}

	s.registry.Clear()
	s.metrics.SessionsActive.Set(0)

	s.logger.Info().Msg("Chat API server stopped")
	return nil
}
