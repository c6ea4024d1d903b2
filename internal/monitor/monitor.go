// Package monitor runs the periodic status cycle for the target: liveness,
// service checks, a performance snapshot, and the auto-sleep decision.
package monitor

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rileyhilliard/dozer/internal/clock"
	"github.com/rileyhilliard/dozer/internal/config"
	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/rileyhilliard/dozer/internal/host"
	"github.com/rileyhilliard/dozer/internal/logger"
	"github.com/rileyhilliard/dozer/internal/observability"
	"github.com/rileyhilliard/dozer/internal/perf"
	"github.com/rileyhilliard/dozer/internal/power"
	"github.com/rileyhilliard/dozer/internal/readiness"
	"github.com/rileyhilliard/dozer/pkg/sshutil"
)

// ControlProbeCommand is run over SSH to prove the control channel works.
const ControlProbeCommand = "echo ok"

// HealthChecker performs one readiness check. *readiness.Prober satisfies it.
type HealthChecker interface {
	Check(ctx context.Context, hostname string, port int, policy readiness.Policy) readiness.Result
}

// Suspender puts the target to sleep. *power.Controller satisfies it.
type Suspender interface {
	Suspend(ctx context.Context) power.Result
}

// Executor runs a command on the target. *sshutil.Runner satisfies it.
type Executor interface {
	Run(ctx context.Context, cmd string, timeout time.Duration) (sshutil.Output, error)
}

// PortProbe dials a TCP address. host.ProbeTCP is the default.
type PortProbe func(ctx context.Context, address string, timeout time.Duration) (time.Duration, error)

// Options wires a Monitor.
type Options struct {
	Target      config.Target
	HealthCheck readiness.Policy
	AutoSleep   AutoSleepPolicy

	Interval       time.Duration
	PingTimeout    time.Duration
	ControlTimeout time.Duration

	Pinger    host.Pinger
	Checker   HealthChecker
	Control   Executor
	PortProbe PortProbe

	// Perf is optional; nil leaves performance unknown.
	Perf perf.Provider

	Power   Suspender
	Clock   clock.Clock
	Log     logger.Logger
	Metrics *observability.Metrics
}

// Monitor owns the authoritative Status and the idle timers.
type Monitor struct {
	opts    Options
	clock   clock.Clock
	log     logger.Logger
	metrics *observability.Metrics

	status       atomic.Pointer[Status]
	policy       atomic.Pointer[AutoSleepPolicy]
	policyMu     sync.Mutex
	lastActivity atomic.Int64

	// cycle-owned
	cycleMu      sync.Mutex
	gpuIdleSince *time.Time
	lastSeen     *time.Time
	wasOnline    *bool

	subMu   sync.Mutex
	subs    map[int]func(Status)
	nextSub int

	scheduler *Scheduler
}

// New creates a Monitor. Call Run to start polling.
func New(opts Options) *Monitor {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Log == nil {
		opts.Log = logger.Noop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2 * time.Second
	}
	if opts.ControlTimeout <= 0 {
		opts.ControlTimeout = 5 * time.Second
	}
	if opts.PortProbe == nil {
		opts.PortProbe = host.ProbeTCP
	}

	m := &Monitor{
		opts:    opts,
		clock:   opts.Clock,
		log:     opts.Log,
		metrics: opts.Metrics,
		subs:    make(map[int]func(Status)),
	}

	policy := opts.AutoSleep
	m.policy.Store(&policy)
	m.lastActivity.Store(m.clock.Now().UnixNano())

	initial := Status{
		Target:    m.targetInfo(),
		AutoSleep: AutoSleepStatus{AutoSleepPolicy: policy},
	}
	m.status.Store(&initial)

	m.scheduler = NewScheduler(opts.Interval, m.clock, func() {
		m.log.Debug("Previous status cycle still running; skipping tick")
		if m.metrics != nil {
			m.metrics.CyclesSkipped.Inc()
		}
	})
	return m
}

// Run polls until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("Monitoring %s every %s", m.opts.Target.Address, m.opts.Interval)
	m.scheduler.Run(ctx, func(ctx context.Context) { m.RunCycle(ctx) })
	m.log.Info("Monitor stopped")
}

// Status returns the last published snapshot.
func (m *Monitor) Status() Status {
	return *m.status.Load()
}

// AutoSleep returns the current policy.
func (m *Monitor) AutoSleep() AutoSleepPolicy {
	return *m.policy.Load()
}

// UpdateAutoSleep applies u to the current policy. An out-of-range result is
// rejected with a CONFIG error and the old policy stays in place.
func (m *Monitor) UpdateAutoSleep(u AutoSleepUpdate) (AutoSleepPolicy, error) {
	m.policyMu.Lock()
	defer m.policyMu.Unlock()

	old := *m.policy.Load()
	next := u.apply(old)
	if err := config.ValidateAutoSleep(next.toConfig()); err != nil {
		return old, err
	}
	m.policy.Store(&next)

	if next.Enabled && !old.Enabled {
		m.RecordActivity()
	}
	m.log.Info("Auto-sleep updated: enabled=%t minutes=%d monitorGpu=%t", next.Enabled, next.IdleMinutes, next.MonitorGPU)
	return next, nil
}

// RecordActivity resets the request idle timer. Safe to call at any time.
func (m *Monitor) RecordActivity() {
	m.lastActivity.Store(m.clock.Now().UnixNano())
}

// LastActivity returns when RecordActivity last ran.
func (m *Monitor) LastActivity() time.Time {
	return time.Unix(0, m.lastActivity.Load())
}

// Subscribe registers fn to receive every published Status. fn runs on the
// monitor goroutine and must not block. The returned func unsubscribes.
func (m *Monitor) Subscribe(fn func(Status)) (unsubscribe func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			defer m.subMu.Unlock()
			delete(m.subs, id)
		})
	}
}

// RunCycle executes one full status cycle and publishes the result.
func (m *Monitor) RunCycle(ctx context.Context) Status {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	start := m.clock.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.CycleDuration.Observe(m.clock.Now().Sub(start).Seconds())
		}
	}()

	policy := m.AutoSleep()
	st := Status{Target: m.targetInfo(), ObservedAt: start}

	ping, err := m.opts.Pinger.Ping(ctx, m.opts.Target.Address, m.opts.PingTimeout)
	online := err == nil && ping.Alive
	if err != nil {
		m.log.Debug("Liveness probe failed: %v", err)
	}
	m.noteTransition(online)

	if !online {
		m.resetIdle()
		if r, ok := m.opts.Perf.(interface{ Reset() }); ok {
			r.Reset()
		}
		st.LastSeen = m.lastSeen
		st.AutoSleep = AutoSleepStatus{AutoSleepPolicy: policy}
		m.publish(st)
		return st
	}

	st.IsOnline = true
	st.Services.Ping = true
	rtt := float64(ping.RTT.Microseconds()) / 1000
	st.Performance.ResponseTimeMs = &rtt
	seen := start
	m.lastSeen = &seen
	st.LastSeen = &seen

	st.Services.ControlChannel, st.Services.ServicePortOpen, st.Services.ServiceHealthy = m.checkServices(ctx)

	if st.Services.ControlChannel && m.opts.Perf != nil {
		snap, err := m.opts.Perf.Snapshot(ctx)
		if err != nil {
			m.log.Debug("Performance snapshot failed: %s", errors.Flatten(err))
		} else {
			st.Performance.Snapshot = snap
		}
	}

	st.AutoSleep = m.decideSleep(ctx, policy, st.Performance.GPUUsage)
	m.publish(st)
	return st
}

// checkServices runs the control, port, and health probes concurrently.
func (m *Monitor) checkServices(ctx context.Context) (control, port, healthy bool) {
	t := m.opts.Target
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if m.opts.Control == nil {
			return
		}
		out, err := m.opts.Control.Run(ctx, ControlProbeCommand, m.opts.ControlTimeout)
		if err != nil {
			m.log.Debug("Control channel check failed: %s", errors.Flatten(err))
			return
		}
		control = out.ExitCode == 0 && strings.TrimSpace(out.Stdout) == "ok"
	}()

	go func() {
		defer wg.Done()
		addr := net.JoinHostPort(t.Address, strconv.Itoa(t.HTTPPort))
		_, err := m.opts.PortProbe(ctx, addr, m.opts.PingTimeout)
		port = err == nil
	}()

	go func() {
		defer wg.Done()
		if m.opts.Checker == nil {
			return
		}
		healthy = m.opts.Checker.Check(ctx, t.Address, t.HTTPPort, m.opts.HealthCheck).Ready
	}()

	wg.Wait()
	return control, port, healthy
}

// decideSleep evaluates the idle conditions and suspends when one fires.
func (m *Monitor) decideSleep(ctx context.Context, policy AutoSleepPolicy, gpuUsage *float64) AutoSleepStatus {
	if !policy.Enabled {
		m.resetIdle()
		return AutoSleepStatus{AutoSleepPolicy: policy}
	}

	now := m.clock.Now()
	d := evaluateIdle(now, policy, m.LastActivity(), m.gpuIdleSince, gpuUsage)
	if d.gpuIdleSince != nil && m.gpuIdleSince == nil {
		m.log.Debug("GPU idle timer started")
	} else if d.gpuIdleSince == nil && m.gpuIdleSince != nil {
		m.log.Debug("GPU no longer idle; timer reset")
	}
	m.gpuIdleSince = d.gpuIdleSince

	status := d.status(policy)
	if !d.fire {
		return status
	}

	m.log.Info("Auto-sleep triggered: %s. Putting server to sleep", d.detail)
	if m.metrics != nil {
		m.metrics.SuspendTriggers.WithLabelValues(d.reason).Inc()
	}
	if m.opts.Power == nil {
		return status
	}

	res := m.opts.Power.Suspend(ctx)
	if res.Success {
		m.resetIdle()
	} else {
		m.log.Warn("Auto-sleep suspend failed, will retry next cycle: %s", res.Message)
	}
	return status
}

// resetIdle restarts both idle timers. Cycle-owned.
func (m *Monitor) resetIdle() {
	m.gpuIdleSince = nil
	m.RecordActivity()
}

func (m *Monitor) noteTransition(online bool) {
	if m.metrics != nil {
		if online {
			m.metrics.TargetOnline.Set(1)
		} else {
			m.metrics.TargetOnline.Set(0)
		}
	}
	if m.wasOnline != nil && *m.wasOnline == online {
		return
	}
	switch {
	case m.wasOnline == nil && online:
		m.log.Info("Server %s is online", m.opts.Target.Address)
	case m.wasOnline == nil:
		m.log.Info("Server %s is offline", m.opts.Target.Address)
	case online:
		m.log.Info("Server %s came online", m.opts.Target.Address)
	default:
		m.log.Info("Server %s went offline", m.opts.Target.Address)
	}
	m.wasOnline = &online
}

func (m *Monitor) publish(st Status) {
	m.status.Store(&st)

	m.subMu.Lock()
	subs := make([]func(Status), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

func (m *Monitor) targetInfo() TargetInfo {
	t := m.opts.Target
	return TargetInfo{Address: t.Address, MAC: t.MAC, SSHPort: t.SSHPort, HTTPPort: t.HTTPPort}
}
