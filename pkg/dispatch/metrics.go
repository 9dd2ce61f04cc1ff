package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch outcomes used as the "outcome" label.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeRequeued = "requeued"
	OutcomeDropped  = "dropped"
	OutcomeRejected = "rejected"
)

// Metrics holds the dispatcher's Prometheus collectors.
type Metrics struct {
	Dispatches *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	QueueDepth prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "baton_dispatch_total",
				Help: "Total number of trigger dispatches by next stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "baton_dispatch_duration_seconds",
				Help:    "Duration of trigger invocations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "baton_dispatch_queue_depth",
				Help: "Triggers waiting for a dispatch worker",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Dispatches, m.Duration, m.QueueDepth)
	}
	return m
}

func (m *Metrics) count(stage, outcome string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) observe(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) queued(delta float64) {
	if m == nil {
		return
	}
	m.QueueDepth.Add(delta)
}
