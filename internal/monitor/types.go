package monitor

import (
	"time"

	"github.com/rileyhilliard/dozer/internal/config"
	"github.com/rileyhilliard/dozer/internal/perf"
)

// Sleep reasons reported in AutoSleepStatus and the suspend trigger metric.
const (
	ReasonIdle    = "idle"
	ReasonGPUIdle = "gpu-idle"
)

// Services are the per-cycle probe results. All false while offline.
type Services struct {
	Ping            bool `json:"ping"`
	ControlChannel  bool `json:"controlChannel"`
	ServicePortOpen bool `json:"servicePortOpen"`
	ServiceHealthy  bool `json:"serviceHealthy"`
}

// Performance is the performance section of a Status. Every field is nil
// (JSON null) when unknown.
type Performance struct {
	ResponseTimeMs *float64 `json:"responseTimeMs"`
	perf.Snapshot
}

// AutoSleepPolicy controls when the monitor suspends the target.
type AutoSleepPolicy struct {
	Enabled        bool `json:"enabled"`
	IdleMinutes    int  `json:"minutes"`
	MonitorGPU     bool `json:"monitorGpu"`
	GPUThreshold   int  `json:"gpuThreshold"`
	GPUIdleMinutes int  `json:"gpuIdleMinutes"`
}

// PolicyFromConfig converts the auto_sleep config section.
func PolicyFromConfig(c config.AutoSleepConfig) AutoSleepPolicy {
	return AutoSleepPolicy{
		Enabled:        c.Enabled,
		IdleMinutes:    c.IdleMinutes,
		MonitorGPU:     c.MonitorGPU,
		GPUThreshold:   c.GPUThreshold,
		GPUIdleMinutes: c.GPUIdleMinutes,
	}
}

func (p AutoSleepPolicy) toConfig() config.AutoSleepConfig {
	return config.AutoSleepConfig{
		Enabled:        p.Enabled,
		IdleMinutes:    p.IdleMinutes,
		MonitorGPU:     p.MonitorGPU,
		GPUThreshold:   p.GPUThreshold,
		GPUIdleMinutes: p.GPUIdleMinutes,
	}
}

// AutoSleepUpdate changes the fields that are set and leaves the rest.
type AutoSleepUpdate struct {
	Enabled        *bool
	IdleMinutes    *int
	MonitorGPU     *bool
	GPUThreshold   *int
	GPUIdleMinutes *int
}

func (u AutoSleepUpdate) apply(p AutoSleepPolicy) AutoSleepPolicy {
	if u.Enabled != nil {
		p.Enabled = *u.Enabled
	}
	if u.IdleMinutes != nil {
		p.IdleMinutes = *u.IdleMinutes
	}
	if u.MonitorGPU != nil {
		p.MonitorGPU = *u.MonitorGPU
	}
	if u.GPUThreshold != nil {
		p.GPUThreshold = *u.GPUThreshold
	}
	if u.GPUIdleMinutes != nil {
		p.GPUIdleMinutes = *u.GPUIdleMinutes
	}
	return p
}

// AutoSleepStatus is the policy plus the state of the idle timers.
type AutoSleepStatus struct {
	AutoSleepPolicy

	// IsIdle is true while at least one idle condition is armed.
	IsIdle bool `json:"isIdle"`

	// TimeUntilSleepMs is the smallest remaining time across armed
	// conditions, or nil when none is armed.
	TimeUntilSleepMs *int64 `json:"timeUntilSleep"`

	SleepReason string `json:"sleepReason,omitempty"`
}

// TargetInfo identifies the managed host in a Status.
type TargetInfo struct {
	Address  string `json:"address"`
	MAC      string `json:"mac"`
	SSHPort  int    `json:"sshPort"`
	HTTPPort int    `json:"httpPort"`
}

// Status is the snapshot published at the end of every cycle. Treat it as
// read-only; the monitor replaces it wholesale.
type Status struct {
	IsOnline    bool            `json:"isOnline"`
	LastSeen    *time.Time      `json:"lastSeen"`
	Services    Services        `json:"services"`
	Performance Performance     `json:"performance"`
	AutoSleep   AutoSleepStatus `json:"autoSleep"`
	Target      TargetInfo      `json:"target"`
	ObservedAt  time.Time       `json:"timestamp"`
}
