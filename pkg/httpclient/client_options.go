package httpclient

import (
	"net/http"
	"time"

	"github.com/JailtonJunior94/pipetrace/pkg/observability"
)

// ClientOption configures the client built by New.
type ClientOption func(*settings)

type settings struct {
	timeout       time.Duration
	baseTransport http.RoundTripper
	metrics       *Metrics
	logger        observability.Logger
}

// WithClientTimeout sets the timeout of every request.
// Default: 30 seconds (DefaultTimeout).
func WithClientTimeout(timeout time.Duration) ClientOption {
	return func(s *settings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithBaseTransport sets the transport wrapped by the metrics layer.
// Useful for custom connection pooling, TLS config or proxies.
func WithBaseTransport(transport http.RoundTripper) ClientOption {
	return func(s *settings) {
		if transport != nil {
			s.baseTransport = transport
		}
	}
}

// WithMetrics records request metrics on m.
func WithMetrics(m *Metrics) ClientOption {
	return func(s *settings) {
		s.metrics = m
	}
}

func WithLogger(logger observability.Logger) ClientOption {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}
