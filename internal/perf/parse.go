package perf

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type cpuJiffies struct {
	total int64
	idle  int64
}

// parseCPUJiffies reads the aggregate "cpu " line of /proc/stat. Idle time
// is idle plus iowait.
func parseCPUJiffies(procStat string) (cpuJiffies, error) {
	scanner := bufio.NewScanner(strings.NewReader(procStat))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return cpuJiffies{}, fmt.Errorf("invalid /proc/stat cpu line: %s", line)
		}

		var j cpuJiffies
		for i := 1; i < len(fields); i++ {
			val, err := strconv.ParseInt(fields[i], 10, 64)
			if err != nil {
				return cpuJiffies{}, fmt.Errorf("failed to parse cpu field %d: %w", i, err)
			}
			// guest and guest_nice (fields 9, 10) are already counted in user
			if i <= 8 {
				j.total += val
			}
			if i == 4 || i == 5 {
				j.idle += val
			}
		}
		return j, nil
	}
	return cpuJiffies{}, fmt.Errorf("no aggregate cpu line in /proc/stat")
}

type meminfo struct {
	total, free, available, buffers, cached int64
	hasAvailable                            bool
}

func (m meminfo) used() int64 {
	if m.hasAvailable {
		return m.total - m.available
	}
	return m.total - m.free - m.buffers - m.cached
}

func (m meminfo) percent() float64 {
	return float64(m.used()) / float64(m.total) * 100
}

// parseMeminfo reads /proc/meminfo. Values are converted from kB to bytes.
func parseMeminfo(procMeminfo string) (meminfo, error) {
	var m meminfo
	found := 0

	scanner := bufio.NewScanner(strings.NewReader(procMeminfo))
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		val, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		val *= 1024

		switch strings.TrimSuffix(parts[0], ":") {
		case "MemTotal":
			m.total = val
			found++
		case "MemFree":
			m.free = val
			found++
		case "MemAvailable":
			m.available = val
			m.hasAvailable = true
			found++
		case "Buffers":
			m.buffers = val
		case "Cached":
			m.cached = val
		}
	}
	if err := scanner.Err(); err != nil {
		return meminfo{}, fmt.Errorf("error scanning /proc/meminfo: %w", err)
	}
	if m.total <= 0 || found < 2 {
		return meminfo{}, fmt.Errorf("insufficient memory info found in /proc/meminfo")
	}
	return m, nil
}

// parseDF reads the capacity column of one `df -P` data line.
func parseDF(line string) (float64, error) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return 0, fmt.Errorf("unexpected df output: %q", line)
	}
	capacity := strings.TrimSuffix(fields[4], "%")
	pct, err := strconv.ParseFloat(capacity, 64)
	if err != nil || pct < 0 || pct > 100 {
		return 0, fmt.Errorf("invalid df capacity %q", fields[4])
	}
	return pct, nil
}

type gpuSample struct {
	utilization *float64
	memUsedMiB  float64
	memTotalMiB float64
}

// parseNvidiaSMI parses one line of
// nvidia-smi --query-gpu=utilization.gpu,memory.used,memory.total --format=csv,noheader,nounits
//
// Returns nil, nil when no GPU is present.
func parseNvidiaSMI(output string) (*gpuSample, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil, nil
	}

	lower := strings.ToLower(output)
	for _, marker := range []string{"no devices", "not found", "failed", "error"} {
		if strings.Contains(lower, marker) {
			return nil, nil
		}
	}

	if i := strings.IndexByte(output, '\n'); i >= 0 {
		output = output[:i]
	}
	fields := strings.Split(output, ",")
	if len(fields) < 3 {
		return nil, fmt.Errorf("nvidia-smi output has insufficient fields: expected 3, got %d", len(fields))
	}

	sample := &gpuSample{memUsedMiB: -1}

	if v, ok, err := parseGPUField(fields[0]); err != nil {
		return nil, fmt.Errorf("failed to parse GPU utilization: %w", err)
	} else if ok && v >= 0 && v <= 100 {
		sample.utilization = ptr(v)
	}
	if v, ok, err := parseGPUField(fields[1]); err != nil {
		return nil, fmt.Errorf("failed to parse GPU memory used: %w", err)
	} else if ok {
		sample.memUsedMiB = v
	}
	if v, ok, err := parseGPUField(fields[2]); err != nil {
		return nil, fmt.Errorf("failed to parse GPU memory total: %w", err)
	} else if ok {
		sample.memTotalMiB = v
	}
	return sample, nil
}

// parseGPUField handles "[N/A]" and blank values as absent.
func parseGPUField(raw string) (float64, bool, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "[N/A]" || s == "N/A" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func ptr(v float64) *float64 { return &v }

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func gib(b int64) float64 { return float64(b) / (1 << 30) }
