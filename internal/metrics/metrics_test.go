package metrics_test

import (
	"testing"

	"github.com/BradenHooton/tollgate/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_GateDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.IncrementGateDecision("policy_tier", "deny", "rate_limit_exceeded")
	m.IncrementGateDecision("policy_tier", "deny", "rate_limit_exceeded")
	m.IncrementGateDecision("kill_switch", "allow", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GateDecisionsTotal.WithLabelValues("policy_tier", "deny", "rate_limit_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateDecisionsTotal.WithLabelValues("kill_switch", "allow", "")))
}

func TestMetrics_Cleanup(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.SetCounterEntries("policy", 12)
	m.IncrementSwept("policy", 3)
	m.IncrementCleanupRuns("success")
	m.ObserveCleanupDuration(0.01)

	assert.Equal(t, 12.0, testutil.ToFloat64(m.CounterEntries.WithLabelValues("policy")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CounterEntriesSwept.WithLabelValues("policy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CleanupRunsTotal.WithLabelValues("success")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.IncrementGateDecision("a", "b", "c")
		m.ObserveStageDuration("a", 1)
		m.SetCounterEntries("a", 1)
		m.IncrementSwept("a", 1)
		m.IncrementCleanupRuns("a")
		m.ObserveCleanupDuration(1)
	})
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.New(prometheus.NewRegistry())
		metrics.New(prometheus.NewRegistry())
	})
}
