package perf

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/rileyhilliard/dozer/pkg/sshutil"
	sshtesting "github.com/rileyhilliard/dozer/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedExec returns queued outputs in order, repeating the last one.
type scriptedExec struct {
	outputs []string
	err     error
	cmds    []string
}

func (s *scriptedExec) Run(_ context.Context, cmd string, _ time.Duration) (sshutil.Output, error) {
	s.cmds = append(s.cmds, cmd)
	if s.err != nil {
		return sshutil.Output{ExitCode: -1}, s.err
	}
	out := s.outputs[0]
	if len(s.outputs) > 1 {
		s.outputs = s.outputs[1:]
	}
	return sshutil.Output{Stdout: out}, nil
}

func batch(stat, meminfo, df, gpu string) string {
	return strings.Join([]string{stat, meminfo, df, gpu}, OutputSeparator+"\n")
}

const dfLine = "/dev/nvme0n1p2  960000000 412800000 498000000  46% /\n"

func TestSnapshot_FirstSampleHasNoCPU(t *testing.T) {
	exec := &scriptedExec{outputs: []string{
		batch(sshtesting.ProcStatIdle, sshtesting.ProcMeminfo, dfLine, "37, 6144, 24576\n"),
	}}
	p := NewSSHProvider(exec, time.Second, nil)

	snap, err := p.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Nil(t, snap.CPUUsage)
	require.NotNil(t, snap.MemoryUsage)
	assert.Equal(t, 75.0, *snap.MemoryUsage)
	assert.Equal(t, 12.0, *snap.MemoryUsedGB)
	assert.Equal(t, 16.0, *snap.MemoryTotalGB)
	require.NotNil(t, snap.DiskUsage)
	assert.Equal(t, 46.0, *snap.DiskUsage)
	require.NotNil(t, snap.GPUUsage)
	assert.Equal(t, 37.0, *snap.GPUUsage)
	assert.Equal(t, 25.0, *snap.VRAMUsage)
	assert.Equal(t, 6.0, *snap.VRAMUsedGB)
	assert.Equal(t, 24.0, *snap.VRAMTotalGB)
	assert.Equal(t, []string{MetricsCommand}, exec.cmds)
}

func TestSnapshot_CPUDelta(t *testing.T) {
	exec := &scriptedExec{outputs: []string{
		batch(sshtesting.ProcStatIdle, sshtesting.ProcMeminfo, dfLine, ""),
		batch(sshtesting.ProcStatBusy, sshtesting.ProcMeminfo, dfLine, ""),
	}}
	p := NewSSHProvider(exec, time.Second, nil)

	_, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	snap, err := p.Snapshot(context.Background())
	require.NoError(t, err)

	require.NotNil(t, snap.CPUUsage)
	assert.Equal(t, 25.0, *snap.CPUUsage)
	assert.Nil(t, snap.GPUUsage, "no GPU output means unknown")
	assert.Nil(t, snap.VRAMUsage)
}

func TestSnapshot_CounterResetIsUnknown(t *testing.T) {
	exec := &scriptedExec{outputs: []string{
		batch(sshtesting.ProcStatBusy, "", "", ""),
		batch(sshtesting.ProcStatIdle, "", "", ""),
	}}
	p := NewSSHProvider(exec, time.Second, nil)

	_, _ = p.Snapshot(context.Background())
	snap, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.CPUUsage)
	assert.True(t, snap.Empty())
}

func TestSnapshot_Reset(t *testing.T) {
	exec := &scriptedExec{outputs: []string{
		batch(sshtesting.ProcStatIdle, "", "", ""),
		batch(sshtesting.ProcStatBusy, "", "", ""),
	}}
	p := NewSSHProvider(exec, time.Second, nil)

	_, _ = p.Snapshot(context.Background())
	p.Reset()
	snap, _ := p.Snapshot(context.Background())
	assert.Nil(t, snap.CPUUsage)
}

func TestSnapshot_ExecError(t *testing.T) {
	exec := &scriptedExec{err: stderrors.New("connection refused")}
	p := NewSSHProvider(exec, time.Second, nil)

	snap, err := p.Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, snap.Empty())
}

func TestSnapshot_ThroughRunner(t *testing.T) {
	mock := sshtesting.NewMockClient("gpu-box")
	mock.SetCommandResponse(MetricsCommand, sshtesting.CommandResponse{
		Stdout: []byte(batch(sshtesting.ProcStatIdle, sshtesting.ProcMeminfo, dfLine, "[N/A], 100, 8192")),
	})
	runner := sshutil.NewRunner(sshutil.Options{Host: "gpu-box"}, mock.Dialer(nil))
	defer runner.Close()

	snap, err := NewSSHProvider(runner, time.Second, nil).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.GPUUsage)
	require.NotNil(t, snap.VRAMUsage)
	assert.Equal(t, 1.2, *snap.VRAMUsage)
	assert.True(t, mock.Ran("pkill -x nvidia-smi"))
}
