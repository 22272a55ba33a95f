// Package httpclient builds the outbound HTTP client used to deliver spans
// to the collection backend.
package httpclient

import (
	"net/http"
	"time"

	"github.com/JailtonJunior94/pipetrace/pkg/observability/noop"
)

// New returns an http.Client whose transport records request metrics.
// The client is safe for concurrent use and meant to be shared.
func New(opts ...ClientOption) *http.Client {
	s := &settings{
		timeout: DefaultTimeout,
		logger:  noop.NewLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.baseTransport == nil {
		s.baseTransport = defaultTransport()
	}

	return &http.Client{
		Timeout: s.timeout,
		Transport: &observableTransport{
			base:    s.baseTransport,
			metrics: s.metrics,
			logger:  s.logger,
		},
	}
}

func defaultTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}
}
