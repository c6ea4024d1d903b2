// Package perf samples CPU, memory, disk and GPU usage on the target over
// the control channel.
package perf

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/dozer/internal/logger"
	"github.com/rileyhilliard/dozer/pkg/sshutil"
)

// Snapshot is one performance sample. A nil field means the value is
// unknown; it is never defaulted to zero.
type Snapshot struct {
	CPUUsage      *float64 `json:"cpuUsage"`
	MemoryUsage   *float64 `json:"memoryUsage"`
	MemoryUsedGB  *float64 `json:"memoryUsed"`
	MemoryTotalGB *float64 `json:"memoryTotal"`
	DiskUsage     *float64 `json:"diskUsage"`
	GPUUsage      *float64 `json:"gpuUsage"`
	VRAMUsage     *float64 `json:"vramUsage"`
	VRAMUsedGB    *float64 `json:"vramUsed"`
	VRAMTotalGB   *float64 `json:"vramTotal"`
}

// Empty reports whether every field is unknown.
func (s Snapshot) Empty() bool {
	return s == Snapshot{}
}

// Provider produces performance snapshots.
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Executor runs a command on the target. *sshutil.Runner satisfies it.
type Executor interface {
	Run(ctx context.Context, cmd string, timeout time.Duration) (sshutil.Output, error)
}

// OutputSeparator splits the sections of the batched command.
const OutputSeparator = "---"

// MetricsCommand gathers every metric in one exec. Sections, in order:
// the aggregate /proc/stat line, /proc/meminfo, df for /, nvidia-smi.
// nvidia-smi is known to hang, so any stuck instance is killed first and
// the query runs under timeout(1).
const MetricsCommand = `head -1 /proc/stat; echo "---"; cat /proc/meminfo; echo "---"; df -P / | tail -1; echo "---"; ` +
	`pkill -x nvidia-smi 2>/dev/null; timeout 3 nvidia-smi --query-gpu=utilization.gpu,memory.used,memory.total --format=csv,noheader,nounits 2>/dev/null | head -1; true`

// SSHProvider samples the target through an Executor. CPU usage is the
// delta between consecutive samples, so the first snapshot after start
// (or after the target rebooted) reports CPU as unknown.
type SSHProvider struct {
	exec    Executor
	timeout time.Duration
	log     logger.Logger

	mu   sync.Mutex
	prev *cpuJiffies
}

// NewSSHProvider creates a provider. timeout bounds the whole batched command.
func NewSSHProvider(exec Executor, timeout time.Duration, log logger.Logger) *SSHProvider {
	if log == nil {
		log = logger.Noop()
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &SSHProvider{exec: exec, timeout: timeout, log: log}
}

// Snapshot runs MetricsCommand and parses what it can. Only a failure to
// run the command is an error; unparseable sections stay unknown.
func (p *SSHProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	out, err := p.exec.Run(ctx, MetricsCommand, p.timeout)
	if err != nil {
		return Snapshot{}, err
	}

	sections := strings.Split(out.Stdout, OutputSeparator+"\n")
	section := func(i int) string {
		if i < len(sections) {
			return strings.TrimSpace(sections[i])
		}
		return ""
	}

	var snap Snapshot

	if j, err := parseCPUJiffies(section(0)); err != nil {
		p.log.Debug("CPU metrics unavailable: %v", err)
	} else {
		snap.CPUUsage = p.cpuDelta(j)
	}

	if mem, err := parseMeminfo(section(1)); err != nil {
		p.log.Debug("Memory metrics unavailable: %v", err)
	} else {
		snap.MemoryUsage = ptr(round1(mem.percent()))
		snap.MemoryUsedGB = ptr(round1(gib(mem.used())))
		snap.MemoryTotalGB = ptr(round1(gib(mem.total)))
	}

	if disk, err := parseDF(section(2)); err != nil {
		p.log.Debug("Disk metrics unavailable: %v", err)
	} else {
		snap.DiskUsage = ptr(disk)
	}

	gpu, err := parseNvidiaSMI(section(3))
	switch {
	case err != nil:
		p.log.Debug("GPU metrics unavailable: %v", err)
	case gpu == nil:
		// no GPU
	default:
		snap.GPUUsage = gpu.utilization
		if gpu.memTotalMiB > 0 && gpu.memUsedMiB >= 0 {
			snap.VRAMUsage = ptr(round1(gpu.memUsedMiB / gpu.memTotalMiB * 100))
			snap.VRAMUsedGB = ptr(round1(gpu.memUsedMiB / 1024))
			snap.VRAMTotalGB = ptr(round1(gpu.memTotalMiB / 1024))
		}
	}

	return snap, nil
}

// Reset forgets the previous CPU sample. The monitor calls it when the
// target goes offline so a stale baseline never spans a suspend.
func (p *SSHProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prev = nil
}

func (p *SSHProvider) cpuDelta(cur cpuJiffies) *float64 {
	p.mu.Lock()
	prev := p.prev
	p.prev = &cur
	p.mu.Unlock()

	if prev == nil || cur.total <= prev.total {
		return nil
	}
	totalDelta := cur.total - prev.total
	idleDelta := cur.idle - prev.idle
	pct := float64(totalDelta-idleDelta) / float64(totalDelta) * 100
	if pct < 0 || pct > 100 {
		return nil
	}
	return ptr(round1(pct))
}
