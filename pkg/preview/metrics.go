package preview

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sre-norns/vellum/pkg/ticket"
)

const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeStale     = "stale"
)

// Metrics are shared by all sessions registered with the same registry.
type Metrics struct {
	issued    prometheus.Counter
	completed *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewMetrics creates and registers preview metrics. A nil registerer creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		issued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vellum",
			Subsystem: "preview",
			Name:      "requests_issued_total",
			Help:      "Number of preview requests dispatched to a renderer.",
		}),
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vellum",
			Subsystem: "preview",
			Name:      "requests_finished_total",
			Help:      "Number of preview requests finished, by outcome.",
		}, []string{"outcome"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vellum",
			Subsystem: "preview",
			Name:      "mutations_rejected_total",
			Help:      "Number of setting mutations rejected, by reason.",
		}, []string{"reason"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vellum",
			Subsystem: "preview",
			Name:      "render_duration_seconds",
			Help:      "Time spent waiting for a renderer to produce a preview.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ticket.ErrUnknownSetting):
		return "unknown"
	case errors.Is(err, ticket.ErrSettingUnavailable):
		return "unavailable"
	case errors.Is(err, ticket.ErrInvalidSettingValue):
		return "invalid"
	case errors.Is(err, ErrNotInitialized):
		return "uninitialized"
	}
	return "other"
}

func (m *Metrics) Issued() prometheus.Counter {
	return m.issued
}

// Finished returns the counter of requests finished with the given outcome.
func (m *Metrics) Finished(outcome string) prometheus.Counter {
	return m.completed.WithLabelValues(outcome)
}

func (m *Metrics) Rejected(reason string) prometheus.Counter {
	return m.rejected.WithLabelValues(reason)
}
