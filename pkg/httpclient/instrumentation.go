package httpclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors updated by the transport. Create it once per
// registerer: registering the same collectors twice panics.
type Metrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the outbound request collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: "http_client",
				Name:      "requests_total",
				Help:      "Total number of outbound HTTP requests",
			},
			[]string{"host", "method", "status"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: "http_client",
				Name:      "errors_total",
				Help:      "Total number of outbound HTTP requests that failed before a response",
			},
			[]string{"host", "type"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Subsystem: "http_client",
				Name:      "request_duration_seconds",
				Help:      "Duration of outbound HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"host", "method"},
		),
	}
}
