package power

import (
	"context"
	"fmt"
	"net"
	"time"
)

// SendTimeout bounds each individual magic packet send.
const SendTimeout = 5 * time.Second

// Sender delivers a payload to one UDP destination.
type Sender interface {
	Send(ctx context.Context, addr string, payload []byte) error
}

// UDPSender sends over IPv4 UDP with SO_BROADCAST set.
type UDPSender struct{}

// Send writes payload to addr ("host:port").
func (UDPSender) Send(ctx context.Context, addr string, payload []byte) error {
	d := net.Dialer{Control: broadcastControl}
	conn, err := d.DialContext(ctx, "udp4", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	n, err := conn.Write(payload)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return fmt.Errorf("short write to %s: %d of %d bytes", addr, n, len(payload))
	}
	return nil
}

// Destinations lists where a wake packet goes, deduplicated, in order:
// global broadcast port 9, subnet broadcast port 9, the target itself
// port 9, and global broadcast port 7.
func Destinations(address, broadcast string) []string {
	subnet := broadcast
	if subnet == "" {
		subnet = SubnetBroadcast(address)
	}

	candidates := []string{
		net.JoinHostPort("255.255.255.255", "9"),
	}
	if subnet != "" {
		candidates = append(candidates, net.JoinHostPort(subnet, "9"))
	}
	if address != "" {
		candidates = append(candidates, net.JoinHostPort(address, "9"))
	}
	candidates = append(candidates, net.JoinHostPort("255.255.255.255", "7"))

	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// SubnetBroadcast returns the /24 broadcast address for an IPv4 literal, or
// "" when address isn't one.
func SubnetBroadcast(address string) string {
	ip := net.ParseIP(address).To4()
	if ip == nil {
		return ""
	}
	return net.IPv4(ip[0], ip[1], ip[2], 255).String()
}
