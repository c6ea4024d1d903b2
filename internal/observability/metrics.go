// Package observability holds the Prometheus metrics dozer exports on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metrics for the gateway.
// It uses a custom registry to avoid polluting the global default.
type Metrics struct {
	Registry *prometheus.Registry

	// Power actions
	PowerActions *prometheus.CounterVec

	// Monitor metrics
	CycleDuration   prometheus.Histogram
	CyclesSkipped   prometheus.Counter
	TargetOnline    prometheus.Gauge
	SuspendTriggers *prometheus.CounterVec

	// Proxy metrics
	ProxyRequests  *prometheus.CounterVec
	ColdStart      prometheus.Histogram
	ProxyInflight  prometheus.Gauge
	EventListeners prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all Prometheus metrics
// registered on a custom registry, plus the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		PowerActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dozer_power_actions_total",
			Help: "Wake and suspend attempts by result.",
		}, []string{"action", "result"}),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dozer_monitor_cycle_duration_seconds",
			Help:    "Duration of monitor status cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		CyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dozer_monitor_cycles_skipped_total",
			Help: "Ticks skipped because the previous cycle was still running.",
		}),
		TargetOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dozer_target_online",
			Help: "Whether the target answered the last liveness probe (1 = online).",
		}),
		SuspendTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dozer_suspend_triggers_total",
			Help: "Auto-sleep triggers by reason.",
		}, []string{"reason"}),

		ProxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dozer_proxy_requests_total",
			Help: "Proxied requests by outcome.",
		}, []string{"outcome"}),
		ColdStart: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dozer_proxy_cold_start_seconds",
			Help:    "Time from first request to target readiness when the target had to be woken or waited on.",
			Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 90, 120, 180, 300},
		}),
		ProxyInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dozer_proxy_inflight_requests",
			Help: "Requests currently being held or forwarded by the gateway.",
		}),
		EventListeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dozer_event_listeners",
			Help: "Connected status event stream clients.",
		}),
	}

	reg.MustRegister(
		m.PowerActions,
		m.CycleDuration,
		m.CyclesSkipped,
		m.TargetOnline,
		m.SuspendTriggers,
		m.ProxyRequests,
		m.ColdStart,
		m.ProxyInflight,
		m.EventListeners,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}
