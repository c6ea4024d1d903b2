package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_NoRegistrationPanic(t *testing.T) {
	m := NewMetrics()
	require.NotNil(t, m)
	require.NotNil(t, m.Registry)

	// Two instances must not collide, since tests build one per server.
	assert.NotPanics(t, func() { NewMetrics() })
}

func TestNewMetrics_CustomRegistry(t *testing.T) {
	m := NewMetrics()
	m.TargetOnline.Set(1)

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	defaultFamilies, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	defaults := make(map[string]bool)
	for _, f := range defaultFamilies {
		defaults[f.GetName()] = true
	}
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "dozer_") {
			assert.False(t, defaults[f.GetName()], "%s leaked into the default registry", f.GetName())
		}
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.PowerActions.WithLabelValues("wake", "success").Inc()
	m.PowerActions.WithLabelValues("wake", "success").Inc()
	m.PowerActions.WithLabelValues("sleep", "failure").Inc()
	m.ProxyRequests.WithLabelValues("forwarded").Inc()
	m.CyclesSkipped.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PowerActions.WithLabelValues("wake", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PowerActions.WithLabelValues("sleep", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProxyRequests.WithLabelValues("forwarded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesSkipped))
}

func TestMetrics_AllDozerNamesRegistered(t *testing.T) {
	m := NewMetrics()
	m.PowerActions.WithLabelValues("wake", "success")
	m.SuspendTriggers.WithLabelValues("idle")
	m.ProxyRequests.WithLabelValues("forwarded")
	m.ColdStart.Observe(12)
	m.CycleDuration.Observe(0.2)

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"dozer_power_actions_total",
		"dozer_monitor_cycle_duration_seconds",
		"dozer_monitor_cycles_skipped_total",
		"dozer_target_online",
		"dozer_suspend_triggers_total",
		"dozer_proxy_requests_total",
		"dozer_proxy_cold_start_seconds",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}
