package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the tracker collectors.
type Metrics struct {
	opened  *prometheus.CounterVec
	closed  *prometheus.CounterVec
	ignored *prometheus.CounterVec
}

// NewMetrics registers the tracker collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		opened: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipetrace",
				Subsystem: "tracker",
				Name:      "spans_opened_total",
				Help:      "Spans opened by kind",
			},
			[]string{"kind"},
		),
		closed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipetrace",
				Subsystem: "tracker",
				Name:      "spans_closed_total",
				Help:      "Spans closed by kind and status",
			},
			[]string{"kind", "status"},
		),
		ignored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipetrace",
				Subsystem: "tracker",
				Name:      "events_ignored_total",
				Help:      "Lifecycle events that did not open or close a span",
			},
			[]string{"event", "reason"},
		),
	}
}

func (m *Metrics) spanOpened(kind string) {
	if m != nil {
		m.opened.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) spanClosed(kind, status string) {
	if m != nil {
		m.closed.WithLabelValues(kind, status).Inc()
	}
}

func (m *Metrics) eventIgnored(event, reason string) {
	if m != nil {
		m.ignored.WithLabelValues(event, reason).Inc()
	}
}
