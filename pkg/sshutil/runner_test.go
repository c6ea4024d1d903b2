package sshutil_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rileyhilliard/dozer/pkg/sshutil"
	sshtest "github.com/rileyhilliard/dozer/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_ReusesConnection(t *testing.T) {
	mock := sshtest.NewMockClient("gpu-box")
	var dials int
	r := sshutil.NewRunner(sshutil.Options{Host: "gpu-box"}, mock.Dialer(&dials))
	defer r.Close()

	for i := 0; i < 3; i++ {
		out, err := r.Run(context.Background(), "echo ok", time.Second)
		require.NoError(t, err)
		assert.Equal(t, "ok", out.Combined())
	}
	assert.Equal(t, 1, dials)
	assert.True(t, r.Connected())
}

func TestRunner_NonZeroExitIsNotAnError(t *testing.T) {
	mock := sshtest.NewMockClient("gpu-box")
	mock.SetCommandResponse("false", sshtest.CommandResponse{ExitCode: 1, Stderr: []byte("nope")})
	r := sshutil.NewRunner(sshutil.Options{}, mock.Dialer(nil))

	out, err := r.Run(context.Background(), "false", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, out.ExitCode)
	assert.Equal(t, "nope", out.Combined())
	assert.True(t, r.Connected(), "a failed command keeps the connection")
}

func TestRunner_TransportErrorDropsConnection(t *testing.T) {
	mock := sshtest.NewMockClient("gpu-box")
	mock.SetCommandResponse("suspend", sshtest.CommandResponse{ExitCode: -1, Error: io.EOF})
	var dials int
	r := sshutil.NewRunner(sshutil.Options{}, mock.Dialer(&dials))

	_, err := r.Run(context.Background(), "sudo systemctl suspend", time.Second)
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, r.Connected())

	_, err = r.Run(context.Background(), "echo back", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, dials)
}

func TestRunner_DeadConnectionRedials(t *testing.T) {
	mock := sshtest.NewMockClient("gpu-box")
	var dials int
	r := sshutil.NewRunner(sshutil.Options{}, mock.Dialer(&dials))

	_, err := r.Run(context.Background(), "echo one", time.Second)
	require.NoError(t, err)

	// Simulate the remote end going away between cycles.
	require.NoError(t, mock.Close())

	_, err = r.Run(context.Background(), "echo two", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, dials)
}

func TestRunner_DialFailure(t *testing.T) {
	mock := sshtest.NewMockClient("gpu-box")
	mock.FailDial(errors.New("dial tcp 192.168.1.100:22: connect: no route to host"))
	r := sshutil.NewRunner(sshutil.Options{}, mock.Dialer(nil))

	out, err := r.Run(context.Background(), "echo ok", time.Second)
	require.Error(t, err)
	assert.Equal(t, -1, out.ExitCode)
	assert.False(t, r.Connected())
}

func TestOutput_Combined(t *testing.T) {
	assert.Equal(t, "out", sshutil.Output{Stdout: " out\n", Stderr: "err"}.Combined())
	assert.Equal(t, "err", sshutil.Output{Stdout: "\n", Stderr: "err\n"}.Combined())
}
