package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/dozer/internal/monitor"
	"github.com/rileyhilliard/dozer/internal/power"
)

const barWidth = 20

// StatusOptions adjusts RenderStatus.
type StatusOptions struct {
	// Now anchors relative times. Zero means time.Now().
	Now time.Time

	// CPUHistory and GPUHistory, when set, add sparklines next to the bars.
	CPUHistory []float64
	GPUHistory []float64

	// Boxed draws a rounded border around the card.
	Boxed bool
}

// RenderStatus renders a status snapshot as a card.
func RenderStatus(st monitor.Status, opts StatusOptions) string {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	sections := []string{
		renderHeader(st, now),
		renderServices(st.Services),
	}
	if st.IsOnline {
		sections = append(sections, renderPerformance(st.Performance, opts))
	}
	sections = append(sections, renderAutoSleep(st.AutoSleep))

	out := strings.Join(sections, "\n\n")
	if opts.Boxed {
		out = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1).
			Render(out)
	}
	return out
}

func renderHeader(st monitor.Status, now time.Time) string {
	addr := st.Target.Address
	if st.Target.HTTPPort != 0 {
		addr = fmt.Sprintf("%s:%d", addr, st.Target.HTTPPort)
	}

	var head string
	if st.IsOnline {
		head = successStyle.Render(SymbolOnline) + " " + titleStyle.Render(addr) + " " + successStyle.Render("online")
	} else {
		head = errorStyle.Render(SymbolOffline) + " " + titleStyle.Render(addr) + " " + errorStyle.Render("offline")
	}

	seen := "never seen"
	if st.LastSeen != nil {
		seen = "last seen " + Ago(now, *st.LastSeen)
	}
	checked := ""
	if !st.ObservedAt.IsZero() {
		checked = " · checked " + Ago(now, st.ObservedAt)
	}
	return head + "\n" + mutedStyle.Render("  "+seen+checked)
}

func renderServices(s monitor.Services) string {
	check := func(ok bool, name string) string {
		if ok {
			return successStyle.Render(SymbolSuccess) + " " + fmt.Sprintf("%-16s", name)
		}
		return errorStyle.Render(SymbolFail) + " " + mutedStyle.Render(fmt.Sprintf("%-16s", name))
	}
	return labelStyle.Render("Services") + "\n" +
		"  " + check(s.Ping, "ping") + check(s.ControlChannel, "control channel") + "\n" +
		"  " + check(s.ServicePortOpen, "service port") + check(s.ServiceHealthy, "service healthy")
}

func renderPerformance(p monitor.Performance, opts StatusOptions) string {
	row := func(name, value string) string {
		return fmt.Sprintf("  %-9s %s", name, value)
	}
	withSpark := func(bar string, history []float64) string {
		if len(history) > 1 {
			return bar + "  " + RenderSparkline(history, 24)
		}
		return bar
	}

	lines := []string{labelStyle.Render("Performance")}
	if p.ResponseTimeMs != nil {
		lines = append(lines, row("Ping", fmt.Sprintf("%.1f ms", *p.ResponseTimeMs)))
	} else {
		lines = append(lines, row("Ping", mutedStyle.Render(SymbolUnknown)))
	}
	lines = append(lines,
		row("CPU", withSpark(RenderBar(p.CPUUsage, barWidth), opts.CPUHistory)),
		row("Memory", RenderBar(p.MemoryUsage, barWidth)+gigabytes(p.MemoryUsedGB, p.MemoryTotalGB)),
		row("Disk", RenderBar(p.DiskUsage, barWidth)),
		row("GPU", withSpark(RenderBar(p.GPUUsage, barWidth), opts.GPUHistory)),
		row("VRAM", RenderBar(p.VRAMUsage, barWidth)+gigabytes(p.VRAMUsedGB, p.VRAMTotalGB)),
	)
	return strings.Join(lines, "\n")
}

func gigabytes(used, total *float64) string {
	if used == nil || total == nil {
		return ""
	}
	return mutedStyle.Render(fmt.Sprintf("  %.1f / %.1f GB", *used, *total))
}

func renderAutoSleep(a monitor.AutoSleepStatus) string {
	title := labelStyle.Render("Auto-sleep")
	if !a.Enabled {
		return title + "\n  " + mutedStyle.Render("disabled")
	}

	policy := describePolicy(a.AutoSleepPolicy)

	state := mutedStyle.Render("waiting for the server")
	if a.TimeUntilSleepMs != nil {
		left := time.Duration(*a.TimeUntilSleepMs) * time.Millisecond
		state = warningStyle.Render("sleeping in " + left.Round(time.Second).String())
		if a.SleepReason != "" {
			state += mutedStyle.Render(" (" + a.SleepReason + ")")
		}
	}
	return title + "\n  " + policy + "\n  " + state
}

// RenderAutoSleepPolicy renders a policy without timer state.
func RenderAutoSleepPolicy(p monitor.AutoSleepPolicy) string {
	title := labelStyle.Render("Auto-sleep")
	if !p.Enabled {
		return title + "\n  " + mutedStyle.Render("disabled")
	}
	return title + "\n  " + describePolicy(p)
}

func describePolicy(p monitor.AutoSleepPolicy) string {
	s := fmt.Sprintf("after %d min without requests", p.IdleMinutes)
	if p.MonitorGPU {
		s += fmt.Sprintf(", or GPU under %d%% for %d min", p.GPUThreshold, p.GPUIdleMinutes)
	}
	return s
}

// RenderPowerResult renders the outcome of a wake or sleep call.
func RenderPowerResult(action string, res power.Result) string {
	if res.Success {
		return successStyle.Render(SymbolSuccess) + " " + action + ": " + res.Message
	}
	return errorStyle.Render(SymbolFail) + " " + action + " failed: " + res.Message
}

// Ago renders the time between t and now as "3s ago" or "2m ago".
func Ago(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("Jan 2 15:04")
	}
}
