// Package api serves a small read-only status endpoint next to the stdio
// protocol: health, dispatcher counters and a live SSE mirror of the
// event stream. It is off unless status.listen is set.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/uploader/internal/dispatch"
	"github.com/mattjoyce/uploader/internal/events"
)

// StatsSource reports dispatcher counters.
type StatsSource interface {
	Stats() dispatch.Stats
}

// TargetLister reports registered upload targets.
type TargetLister interface {
	Names() []string
}

// LimiterCounter reports how many per-target rate limiters exist.
type LimiterCounter interface {
	Len() int
}

// Sources are the read-only views the server reports from. Only Stats is
// required.
type Sources struct {
	Stats    StatsSource
	Targets  TargetLister
	Limiters LimiterCounter
	Events   *events.Hub
}

// Config holds status server configuration.
type Config struct {
	Listen string
	// Token is an optional bearer token. Empty leaves the protected routes open.
	Token string
}

// Server represents the status HTTP server
type Server struct {
	config    Config
	stats     StatsSource
	targets   TargetLister
	limiters  LimiterCounter
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new status server instance
func New(config Config, src Sources, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		stats:     src.Stats,
		targets:   src.Targets,
		limiters:  src.Limiters,
		events:    src.Events,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start serves until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("status server listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("status server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("status server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		if s.config.Token != "" {
			r.Use(s.authMiddleware)
		}
		r.Get("/stats", s.handleStats)
		r.Get("/targets", s.handleTargets)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
