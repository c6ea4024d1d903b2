package testing

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rileyhilliard/dozer/pkg/sshutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ sshutil.SSHClient = (*MockClient)(nil)

func TestMockClient_Echo(t *testing.T) {
	m := NewMockClient("gpu-box")

	out, _, code, err := m.Exec(context.Background(), "echo ok")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "ok\n", string(out))
	assert.Equal(t, []string{"echo ok"}, m.Commands())
}

func TestMockClient_CatFiles(t *testing.T) {
	m := NewMockClient("gpu-box")
	WithLinuxHost(m)

	out, _, code, err := m.Exec(context.Background(), "cat /proc/meminfo")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, string(out), "MemTotal")

	_, stderr, code, err := m.Exec(context.Background(), `cat "/nope"`)
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, string(stderr), "No such file")
}

func TestMockClient_CannedResponses(t *testing.T) {
	m := NewMockClient("gpu-box")
	m.SetCommandResponse("ip route show default", CommandResponse{
		Stdout: []byte("default via 192.168.1.1 dev enp5s0 proto dhcp\n"),
	})
	m.SetCommandResponse(`systemctl suspend`, CommandResponse{Error: io.EOF, ExitCode: -1})

	out, _, _, err := m.Exec(context.Background(), "ip route show default")
	require.NoError(t, err)
	assert.Contains(t, string(out), "enp5s0")

	_, _, code, err := m.Exec(context.Background(), "sudo ethtool -s enp5s0 wol g && sudo systemctl suspend")
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, -1, code)
	assert.True(t, m.Ran("ethtool"))
}

func TestMockClient_FirstRegisteredPatternWins(t *testing.T) {
	m := NewMockClient("gpu-box")
	m.SetCommandResponse("nvidia", CommandResponse{Stdout: []byte("first")})
	m.SetCommandResponse("nvidia-smi", CommandResponse{Stdout: []byte("second")})

	out, _, _, _ := m.Exec(context.Background(), "timeout 3 nvidia-smi --query-gpu=utilization.gpu")
	assert.Equal(t, "first", string(out))
}

func TestMockClient_Closed(t *testing.T) {
	m := NewMockClient("gpu-box")
	require.NoError(t, m.Close())
	assert.True(t, m.Closed())

	_, _, code, err := m.Exec(context.Background(), "echo ok")
	assert.Error(t, err)
	assert.Equal(t, -1, code)

	_, err = m.NewSession()
	assert.Error(t, err)
}

func TestMockClient_CancelledContext(t *testing.T) {
	m := NewMockClient("gpu-box")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err := m.Exec(ctx, "echo ok")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.Commands())
}

func TestMockClient_Dialer(t *testing.T) {
	m := NewMockClient("gpu-box")
	var dials int
	dial := m.Dialer(&dials)

	c, err := dial(context.Background(), sshutil.Options{Host: "gpu-box"})
	require.NoError(t, err)
	assert.Equal(t, "gpu-box", c.GetHost())
	assert.Equal(t, 1, dials)

	m.FailDial(errors.New("no route to host"))
	_, err = dial(context.Background(), sshutil.Options{})
	assert.Error(t, err)
	assert.Equal(t, 2, dials)
}
