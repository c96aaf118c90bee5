package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeRendered  = "rendered"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
)

type Metrics struct {
	jobs     *prometheus.CounterVec
	duration prometheus.Histogram
	latency  prometheus.Histogram
}

// NewMetrics creates worker metrics. A nil registerer creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vellum",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Number of render jobs processed, by outcome.",
		}, []string{"outcome"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vellum",
			Subsystem: "worker",
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering a preview.",
			Buckets:   prometheus.DefBuckets,
		}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vellum",
			Subsystem: "worker",
			Name:      "queue_latency_seconds",
			Help:      "Time a render job waited in the queue.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
}

func (m *Metrics) Jobs(outcome string) prometheus.Counter {
	return m.jobs.WithLabelValues(outcome)
}
