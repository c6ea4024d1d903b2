package doctor

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/rileyhilliard/dozer/internal/config"
	"github.com/rileyhilliard/dozer/internal/host"
	"github.com/rileyhilliard/dozer/internal/power"
)

// MACCheck verifies the wake target's hardware address.
type MACCheck struct {
	MAC string
}

func (c *MACCheck) Name() string     { return "mac_address" }
func (c *MACCheck) Category() string { return CategoryNetwork }

func (c *MACCheck) Run(context.Context) CheckResult {
	mac, err := power.ParseMAC(c.MAC)
	if err != nil {
		return failResult(c, fmt.Sprintf("MAC address %q is not valid", c.MAC),
			"Use six hex octets, e.g. aa:bb:cc:dd:ee:ff (see 'ip link' on the target)")
	}
	return passResult(c, "MAC address: "+mac.String())
}

// BroadcastCheck reports where magic packets will be sent.
type BroadcastCheck struct {
	Target config.Target
}

func (c *BroadcastCheck) Name() string     { return "wake_destinations" }
func (c *BroadcastCheck) Category() string { return CategoryNetwork }

func (c *BroadcastCheck) Run(context.Context) CheckResult {
	dests := power.Destinations(c.Target.Address, c.Target.Broadcast)
	msg := "Magic packets go to " + strings.Join(dests, ", ")

	if c.Target.Broadcast == "" && power.SubnetBroadcast(c.Target.Address) == "" {
		return warnResult(c, msg,
			"The target address isn't an IPv4 literal, so no subnet broadcast was derived. Set target.broadcast")
	}
	if c.Target.Broadcast != "" && net.ParseIP(c.Target.Broadcast).To4() == nil {
		return failResult(c, fmt.Sprintf("Broadcast address %q is not IPv4", c.Target.Broadcast),
			"Set target.broadcast to the subnet broadcast, e.g. 192.168.1.255")
	}
	return passResult(c, msg)
}

// ICMPChecker reports which ICMP socket type can be opened.
// *host.ICMPPinger satisfies it.
type ICMPChecker interface {
	Available() (string, error)
}

// ICMPCheck verifies the liveness probe can use ICMP.
type ICMPCheck struct {
	Liveness string
	Checker  ICMPChecker // nil uses host.NewICMPPinger
}

func (c *ICMPCheck) Name() string     { return "icmp_socket" }
func (c *ICMPCheck) Category() string { return CategoryNetwork }

func (c *ICMPCheck) Run(context.Context) CheckResult {
	if c.Liveness == "tcp" {
		return passResult(c, "Liveness uses TCP connects; ICMP not needed")
	}

	checker := c.Checker
	if checker == nil {
		checker = host.NewICMPPinger()
	}
	kind, err := checker.Available()
	if err != nil {
		return warnResult(c, "ICMP sockets unavailable; liveness will fall back to TCP",
			"Allow unprivileged ping (sysctl net.ipv4.ping_group_range) or grant CAP_NET_RAW")
	}
	return passResult(c, fmt.Sprintf("ICMP echo available (%s socket)", kind))
}

// NewNetworkChecks returns the wake and liveness checks for cfg.
func NewNetworkChecks(cfg *config.Config) []Check {
	return []Check{
		&MACCheck{MAC: cfg.Target.MAC},
		&BroadcastCheck{Target: cfg.Target},
		&ICMPCheck{Liveness: cfg.Monitor.Liveness},
	}
}
