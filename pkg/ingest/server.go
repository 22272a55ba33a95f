// Package ingest exposes the HTTP API through which the host engine reports
// build lifecycle events and reads back the trace context of a build.
package ingest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/JailtonJunior94/pipetrace/pkg/observability"
	"github.com/JailtonJunior94/pipetrace/pkg/observability/noop"
	"github.com/JailtonJunior94/pipetrace/pkg/registry"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router registers routes on the server's chi router.
type Router interface {
	Register(router chi.Router)
}

// Shutdowner is a component stopped after the HTTP server, such as the
// tracer provider that still has to flush its queue.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Server is the ingest HTTP server.
type Server struct {
	router            chi.Router
	httpServer        *http.Server
	config            Config
	logger            observability.Logger
	healthChecks      map[string]HealthCheckFunc
	stats             func() registry.Stats
	gatherer          prometheus.Gatherer
	metrics           *Metrics
	customMiddlewares []func(http.Handler) http.Handler
	shutdowners       []Shutdowner
	shutdownOnce      sync.Once
}

// New creates a server with the given options.
func New(logger observability.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = noop.NewLogger()
	}

	srv := &Server{
		config:       DefaultConfig(),
		logger:       logger,
		healthChecks: make(map[string]HealthCheckFunc),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if err := srv.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	srv.router = chi.NewRouter()
	srv.registerMiddlewares()
	srv.registerSupportEndpoints()

	srv.httpServer = &http.Server{
		Addr:         srv.config.Address,
		Handler:      srv.router,
		ReadTimeout:  srv.config.ReadTimeout,
		WriteTimeout: srv.config.WriteTimeout,
		IdleTimeout:  srv.config.IdleTimeout,
	}

	return srv, nil
}

// RegisterRouters registers route handlers with the server.
func (s *Server) RegisterRouters(routers ...Router) *Server {
	for _, router := range routers {
		router.Register(s.router)
		s.logger.Debug(context.Background(), "router registered",
			observability.String("router", fmt.Sprintf("%T", router)))
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerMiddlewares() {
	s.router.Use(recoverMiddleware(s.logger))
	s.router.Use(requestIDMiddleware())
	if s.metrics != nil {
		s.router.Use(metricsMiddleware(s.metrics))
	}
	s.router.Use(bodyLimitMiddleware(s.config.BodyLimit))
	s.router.Use(securityHeadersMiddleware())

	for _, middleware := range s.customMiddlewares {
		s.router.Use(middleware)
	}
}

func (s *Server) registerSupportEndpoints() {
	if s.config.EnableHealthChecks {
		s.router.Get("/health", healthHandler(s.config, s.healthChecks, s.stats, s.logger))
		s.router.Get("/ready", readyHandler(s.healthChecks))
		s.router.Get("/live", liveHandler())
	}

	if s.config.EnableMetrics && s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}
