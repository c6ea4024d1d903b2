package host

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rileyhilliard/dozer/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	result PingResult
	err    error
	calls  int
}

func (f *fakePinger) Ping(ctx context.Context, address string, timeout time.Duration) (PingResult, error) {
	f.calls++
	return f.result, f.err
}

func portOf(t *testing.T, addr string) int {
	t.Helper()
	_, p, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	n, err := strconv.Atoi(p)
	require.NoError(t, err)
	return n
}

func TestTCPPinger_RefusedCountsAsAlive(t *testing.T) {
	p := &TCPPinger{Ports: []int{portOf(t, closedPort(t))}}

	res, err := p.Ping(context.Background(), "127.0.0.1", time.Second)
	require.NoError(t, err)
	assert.True(t, res.Alive)
}

func TestTCPPinger_OpenPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	p := &TCPPinger{Ports: []int{portOf(t, ln.Addr().String())}}
	res, err := p.Ping(context.Background(), "127.0.0.1", time.Second)
	require.NoError(t, err)
	assert.True(t, res.Alive)
}

func TestTCPPinger_Unreachable(t *testing.T) {
	// TEST-NET-1 is never routed; the dial times out or fails to route.
	p := &TCPPinger{Ports: []int{22}}
	res, err := p.Ping(context.Background(), "192.0.2.1", 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, res.Alive)
}

func TestFallbackPinger_UsesPrimaryWhenAvailable(t *testing.T) {
	primary := &fakePinger{result: PingResult{Alive: true, RTT: time.Millisecond}}
	fallback := &fakePinger{}
	p := &FallbackPinger{Primary: primary, Fallback: fallback}

	res, err := p.Ping(context.Background(), "10.0.0.1", time.Second)
	require.NoError(t, err)
	assert.True(t, res.Alive)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
	assert.False(t, p.Degraded())
}

func TestFallbackPinger_SwitchesOnceICMPUnavailable(t *testing.T) {
	primary := &fakePinger{err: fmt.Errorf("%w: operation not permitted", ErrICMPUnavailable)}
	fallback := &fakePinger{result: PingResult{Alive: true}}
	log := logger.NewBufferLogger()
	p := &FallbackPinger{Primary: primary, Fallback: fallback, Log: log}

	for i := 0; i < 3; i++ {
		res, err := p.Ping(context.Background(), "10.0.0.1", time.Second)
		require.NoError(t, err)
		assert.True(t, res.Alive)
	}

	assert.Equal(t, 1, primary.calls, "primary is abandoned after the first failure")
	assert.Equal(t, 3, fallback.calls)
	assert.True(t, p.Degraded())
	assert.Len(t, log.Snapshot(), 1, "degradation is logged once")
}

func TestFallbackPinger_PassesThroughOtherErrors(t *testing.T) {
	primary := &fakePinger{err: fmt.Errorf("resolver exploded")}
	fallback := &fakePinger{}
	p := &FallbackPinger{Primary: primary, Fallback: fallback}

	_, err := p.Ping(context.Background(), "10.0.0.1", time.Second)
	assert.Error(t, err)
	assert.Equal(t, 0, fallback.calls)
}

func TestNewPinger(t *testing.T) {
	assert.IsType(t, &TCPPinger{}, NewPinger("tcp", []int{22}, logger.Noop()))
	assert.IsType(t, &FallbackPinger{}, NewPinger("icmp", []int{22}, logger.Noop()))
}
