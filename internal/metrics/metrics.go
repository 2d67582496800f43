package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the admission layer's collectors. A nil *Metrics is a no-op.
type Metrics struct {
	GateDecisionsTotal     *prometheus.CounterVec
	GateStageDuration      *prometheus.HistogramVec
	CounterEntries         *prometheus.GaugeVec
	CounterEntriesSwept    *prometheus.CounterVec
	CleanupRunsTotal       *prometheus.CounterVec
	CleanupDurationSeconds prometheus.Histogram
}

// New registers every collector on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		GateDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_gate_decisions_total",
			Help: "Total number of request gate decisions by stage, outcome and reason",
		}, []string{"stage", "outcome", "reason"}),
		GateStageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tollgate_gate_stage_duration_seconds",
			Help:    "Time spent evaluating a single gate stage",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1},
		}, []string{"stage"}),
		CounterEntries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tollgate_ratelimit_counter_entries",
			Help: "Current number of live rate limit counters",
		}, []string{"table"}),
		CounterEntriesSwept: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_ratelimit_counter_entries_swept_total",
			Help: "Total number of idle rate limit counters removed by the cleanup worker",
		}, []string{"table"}),
		CleanupRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_cleanup_runs_total",
			Help: "Total number of cleanup runs",
		}, []string{"status"}),
		CleanupDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "tollgate_cleanup_duration_seconds",
			Help: "Duration of cleanup runs in seconds",
		}),
	}
}

func (m *Metrics) IncrementGateDecision(stage, outcome, reason string) {
	if m == nil {
		return
	}
	m.GateDecisionsTotal.WithLabelValues(stage, outcome, reason).Inc()
}

func (m *Metrics) ObserveStageDuration(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.GateStageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) SetCounterEntries(table string, count int) {
	if m == nil {
		return
	}
	m.CounterEntries.WithLabelValues(table).Set(float64(count))
}

func (m *Metrics) IncrementSwept(table string, count int) {
	if m == nil {
		return
	}
	m.CounterEntriesSwept.WithLabelValues(table).Add(float64(count))
}

func (m *Metrics) IncrementCleanupRuns(status string) {
	if m == nil {
		return
	}
	m.CleanupRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveCleanupDuration(durationSeconds float64) {
	if m == nil {
		return
	}
	m.CleanupDurationSeconds.Observe(durationSeconds)
}
