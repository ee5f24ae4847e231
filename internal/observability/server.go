package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rafaeljc/arbiter/internal/config"
	"github.com/rafaeljc/arbiter/internal/decision"
)

// Server exposes probes, metrics and read-only graph introspection on a
// dedicated port, away from whatever traffic drives the engine.
type Server struct {
	logger   *slog.Logger
	cfg      *config.ObservabilityConfig
	router   *chi.Mux
	server   *http.Server
	checkers []Checker
	graph    *decision.Node
}

// ServerOption customises the server.
type ServerOption func(*Server)

// WithGraph enables the /debug/graph endpoints for the given root.
func WithGraph(root *decision.Node) ServerOption {
	return func(s *Server) { s.graph = root }
}

// WithCheckers registers the readiness dependencies.
func WithCheckers(checkers ...Checker) ServerOption {
	return func(s *Server) { s.checkers = append(s.checkers, checkers...) }
}

// NewServer creates the observability server.
func NewServer(logger *slog.Logger, cfg *config.ObservabilityConfig, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		panic("observability: config cannot be nil")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	s := &Server{
		logger: logger,
		cfg:    cfg,
		router: r,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get(s.cfg.LivenessPath, s.liveness)
	s.router.Get(s.cfg.ReadinessPath, s.readiness)
	s.router.Method(http.MethodGet, s.cfg.MetricsPath, promhttp.Handler())

	if s.graph != nil {
		s.router.Route("/debug/graph", func(r chi.Router) {
			r.Get("/", s.graphDOT)
			r.Get("/experiments", s.graphExperiments)
			r.Get("/nodes/{name}", s.graphNodes)
		})
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server in a background goroutine.
func (s *Server) Start() {
	addr := net.JoinHostPort("", s.cfg.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       s.cfg.Timeout,
		ReadHeaderTimeout: s.cfg.Timeout,
		WriteTimeout:      s.cfg.Timeout,
		IdleTimeout:       s.cfg.Timeout * 3,
	}

	go func() {
		s.logger.Info("starting observability server",
			slog.String("addr", addr),
			slog.String("liveness_path", s.cfg.LivenessPath),
			slog.String("readiness_path", s.cfg.ReadinessPath),
			slog.String("metrics_path", s.cfg.MetricsPath),
		)

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server failed", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown gracefully stops the observability server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("stopping observability server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("observability shutdown: %w", err)
	}
	return nil
}
