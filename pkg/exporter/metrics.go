package exporter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the exporter collectors.
type Metrics struct {
	spans      *prometheus.CounterVec
	partitions *prometheus.CounterVec
	clients    prometheus.Gauge
}

// NewMetrics registers the exporter collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		spans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipetrace",
				Subsystem: "exporter",
				Name:      "spans_total",
				Help:      "Spans handed to the exporter by outcome",
			},
			[]string{"outcome"},
		),
		partitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipetrace",
				Subsystem: "exporter",
				Name:      "partitions_total",
				Help:      "Repository partitions by outcome",
			},
			[]string{"outcome"},
		),
		clients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "pipetrace",
				Subsystem: "exporter",
				Name:      "clients",
				Help:      "Cached per-repository clients",
			},
		),
	}
}

func (m *Metrics) record(r Result) {
	if m == nil {
		return
	}
	m.spans.WithLabelValues("dropped").Add(float64(r.Dropped))
	for _, p := range r.Partitions {
		m.spans.WithLabelValues(string(p.Outcome)).Add(float64(p.Spans))
		m.partitions.WithLabelValues(string(p.Outcome)).Inc()
	}
}

func (m *Metrics) clientsAdded(n int) {
	if m == nil {
		return
	}
	m.clients.Add(float64(n))
}
