package ingest

import (
	"net/http"
	"strings"

	"github.com/JailtonJunior94/pipetrace/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
)

// Option is a function that configures a Server.
type Option func(*Server)

// WithConfig sets the full configuration for the server.
func WithConfig(cfg Config) Option {
	return func(s *Server) {
		s.config = cfg
	}
}

// WithAddress sets the listen address. A bare port gets a leading colon.
func WithAddress(addr string) Option {
	return func(s *Server) {
		if !strings.Contains(addr, ":") {
			addr = ":" + addr
		}
		s.config.Address = addr
	}
}

// WithHealthCheck registers a named health check.
func WithHealthCheck(name string, check HealthCheckFunc) Option {
	return func(s *Server) {
		s.config.EnableHealthChecks = true
		s.healthChecks[name] = check
	}
}

// WithOpenSpans reports the open span counts on /health.
func WithOpenSpans(stats func() registry.Stats) Option {
	return func(s *Server) {
		s.stats = stats
	}
}

// WithMetrics records request metrics and serves gatherer on /metrics.
func WithMetrics(m *Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.config.EnableMetrics = true
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithMiddleware adds a custom middleware to the server.
func WithMiddleware(middleware func(http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.customMiddlewares = append(s.customMiddlewares, middleware)
	}
}

// WithShutdown registers components stopped, in order, after the server.
func WithShutdown(components ...Shutdowner) Option {
	return func(s *Server) {
		for _, c := range components {
			if c != nil {
				s.shutdowners = append(s.shutdowners, c)
			}
		}
	}
}
