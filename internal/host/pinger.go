package host

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rileyhilliard/dozer/internal/logger"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// PingResult is the outcome of one liveness probe.
type PingResult struct {
	Alive bool
	RTT   time.Duration
}

// Pinger decides whether the target host is up. An unreachable host is
// Alive=false with a nil error; errors mean the probe itself couldn't run.
type Pinger interface {
	Ping(ctx context.Context, address string, timeout time.Duration) (PingResult, error)
}

// protocolICMP is the IANA protocol number for ICMP over IPv4.
const protocolICMP = 1

// ICMPPinger sends a single ICMP echo request. It tries an unprivileged
// datagram socket first (Linux ping_group_range, macOS), then a raw socket.
type ICMPPinger struct {
	id  int
	seq atomic.Uint32
}

// NewICMPPinger creates an ICMP pinger with a per-process identifier.
func NewICMPPinger() *ICMPPinger {
	return &ICMPPinger{id: os.Getpid() & 0xffff}
}

// ErrICMPUnavailable means neither ICMP socket type could be opened.
var ErrICMPUnavailable = stderrors.New("icmp sockets unavailable")

func (p *ICMPPinger) listen() (*icmp.PacketConn, bool, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err == nil {
		return conn, true, nil
	}
	conn, rawErr := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if rawErr == nil {
		return conn, false, nil
	}
	return nil, false, fmt.Errorf("%w: %v; %v", ErrICMPUnavailable, err, rawErr)
}

// Available reports which ICMP socket type this process can open:
// "datagram" (unprivileged) or "raw".
func (p *ICMPPinger) Available() (string, error) {
	conn, datagram, err := p.listen()
	if err != nil {
		return "", err
	}
	_ = conn.Close()
	if datagram {
		return "datagram", nil
	}
	return "raw", nil
}

// Ping sends one echo request and waits up to timeout for the reply.
func (p *ICMPPinger) Ping(ctx context.Context, address string, timeout time.Duration) (PingResult, error) {
	ipAddr, err := net.DefaultResolver.LookupIP(ctx, "ip4", address)
	if err != nil || len(ipAddr) == 0 {
		return PingResult{}, nil
	}
	target := ipAddr[0]

	conn, datagram, err := p.listen()
	if err != nil {
		return PingResult{}, err
	}
	defer conn.Close()

	seq := int(p.seq.Add(1) & 0xffff)
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(time.Now().UnixNano()))

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: payload},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return PingResult{}, err
	}

	var dst net.Addr = &net.IPAddr{IP: target}
	if datagram {
		dst = &net.UDPAddr{IP: target}
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	start := time.Now()
	if _, err := conn.WriteTo(wire, dst); err != nil {
		// The kernel reports an unroutable destination on send.
		return PingResult{}, nil
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			// Deadline passed without a matching reply.
			return PingResult{}, nil
		}
		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}
		// Datagram sockets rewrite the ID, so only raw replies are checked.
		if !datagram && echo.ID != p.id {
			continue
		}
		if !sameHost(peer, target) {
			continue
		}
		return PingResult{Alive: true, RTT: time.Since(start)}, nil
	}
}

func sameHost(peer net.Addr, ip net.IP) bool {
	switch a := peer.(type) {
	case *net.IPAddr:
		return a.IP.Equal(ip)
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	}
	return false
}

// TCPPinger treats the host as up when any of Ports accepts or actively
// refuses a connection. A refusal proves the kernel answered.
type TCPPinger struct {
	Ports []int
}

// Ping probes each port in order and stops at the first answer.
func (p *TCPPinger) Ping(ctx context.Context, address string, timeout time.Duration) (PingResult, error) {
	for _, port := range p.Ports {
		addr := net.JoinHostPort(address, strconv.Itoa(port))
		start := time.Now()
		_, err := ProbeTCP(ctx, addr, timeout)
		if err == nil || IsRefused(err) {
			return PingResult{Alive: true, RTT: time.Since(start)}, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return PingResult{}, nil
}

// FallbackPinger uses Primary until it reports ErrICMPUnavailable, then
// switches to Fallback for the rest of the process lifetime.
type FallbackPinger struct {
	Primary  Pinger
	Fallback Pinger
	Log      logger.Logger

	once     sync.Once
	degraded atomic.Bool
}

// Ping delegates to the active pinger.
func (p *FallbackPinger) Ping(ctx context.Context, address string, timeout time.Duration) (PingResult, error) {
	if !p.degraded.Load() {
		res, err := p.Primary.Ping(ctx, address, timeout)
		if !stderrors.Is(err, ErrICMPUnavailable) {
			return res, err
		}
		p.once.Do(func() {
			p.degraded.Store(true)
			if p.Log != nil {
				p.Log.Warn("ICMP unavailable, using TCP reachability for liveness: %v", err)
			}
		})
	}
	return p.Fallback.Ping(ctx, address, timeout)
}

// Degraded reports whether the fallback is in use.
func (p *FallbackPinger) Degraded() bool {
	return p.degraded.Load()
}

// NewPinger builds the liveness probe for mode "icmp" or "tcp". TCP probing
// and the ICMP fallback use ports.
func NewPinger(mode string, ports []int, log logger.Logger) Pinger {
	tcp := &TCPPinger{Ports: ports}
	if mode == "tcp" {
		return tcp
	}
	return &FallbackPinger{Primary: NewICMPPinger(), Fallback: tcp, Log: log}
}
