package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	assignments    *prometheus.CounterVec
	assignAttempts prometheus.Counter
	assignDuration prometheus.Histogram
	transitions    *prometheus.CounterVec
	confirmedHelp  *prometheus.CounterVec
}

// newMetrics registers on reg; a nil reg leaves the collectors unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sendhelp",
			Name:      "assignments_total",
			Help:      "Assignment requests by outcome",
		}, []string{"kind", "outcome"}),
		assignAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sendhelp",
			Name:      "assignment_retries_total",
			Help:      "Assignment attempts retried after a concurrent write",
		}),
		assignDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sendhelp",
			Name:      "assignment_duration_seconds",
			Help:      "Time spent assigning an obligation",
			Buckets:   prometheus.DefBuckets,
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sendhelp",
			Name:      "obligation_transitions_total",
			Help:      "Obligation state transitions by event and outcome",
		}, []string{"event", "outcome"}),
		confirmedHelp: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sendhelp",
			Name:      "confirmed_amount_total",
			Help:      "Sum of confirmed obligation amounts by level",
		}, []string{"level"}),
	}
}
