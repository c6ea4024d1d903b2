package monitor

import (
	"fmt"
	"time"
)

// idleDecision is the outcome of one auto-sleep evaluation.
type idleDecision struct {
	fire      bool
	reason    string
	detail    string
	armed     bool
	remaining time.Duration

	// gpuIdleSince is the new value of the GPU idle timer.
	gpuIdleSince *time.Time
}

// evaluateIdle decides whether the target should be suspended. It has no
// side effects; the caller commits gpuIdleSince and acts on fire.
//
// The request condition is always armed while the policy is enabled. The
// GPU condition arms only while MonitorGPU is on and a utilization reading
// below the threshold is present; anything else disarms it immediately.
func evaluateIdle(now time.Time, p AutoSleepPolicy, lastActivity time.Time, gpuIdleSince *time.Time, gpuUsage *float64) idleDecision {
	var d idleDecision
	if !p.Enabled {
		return d
	}

	requestWindow := time.Duration(p.IdleMinutes) * time.Minute
	sinceRequest := now.Sub(lastActivity)
	d.armed = true
	if sinceRequest >= requestWindow {
		d.fire = true
		d.reason = ReasonIdle
		d.detail = fmt.Sprintf("No requests for over %d minutes", p.IdleMinutes)
		d.remaining = 0
	} else {
		d.remaining = requestWindow - sinceRequest
	}

	if p.MonitorGPU && gpuUsage != nil && *gpuUsage < float64(p.GPUThreshold) {
		since := now
		if gpuIdleSince != nil {
			since = *gpuIdleSince
		}
		d.gpuIdleSince = &since

		gpuWindow := time.Duration(p.GPUIdleMinutes) * time.Minute
		elapsed := now.Sub(since)
		if elapsed >= gpuWindow {
			if !d.fire {
				d.fire = true
				d.reason = ReasonGPUIdle
				d.detail = fmt.Sprintf("GPU idle for over %d minutes", p.GPUIdleMinutes)
			}
			d.remaining = 0
		} else if left := gpuWindow - elapsed; left < d.remaining {
			d.remaining = left
		}
	}

	return d
}

// status renders the decision for publishing.
func (d idleDecision) status(p AutoSleepPolicy) AutoSleepStatus {
	s := AutoSleepStatus{AutoSleepPolicy: p, IsIdle: d.armed, SleepReason: d.reason}
	if d.armed {
		ms := d.remaining.Milliseconds()
		s.TimeUntilSleepMs = &ms
	}
	return s
}
