// Package power wakes the target with Wake-on-LAN and suspends it over the
// SSH control channel.
package power

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/dozer/internal/clock"
	"github.com/rileyhilliard/dozer/internal/config"
	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/rileyhilliard/dozer/internal/logger"
	"github.com/rileyhilliard/dozer/internal/observability"
	"github.com/rileyhilliard/dozer/pkg/sshutil"
)

// InterfaceCommand prints the default route; the interface follows "dev".
const InterfaceCommand = "ip route show default"

var ifacePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,14}$`)

// Result is the uniform outcome of a wake or suspend attempt.
type Result struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Executor runs a command on the target. *sshutil.Runner satisfies it.
type Executor interface {
	Run(ctx context.Context, cmd string, timeout time.Duration) (sshutil.Output, error)
}

// Options configures a Controller.
type Options struct {
	Target  config.Target
	Suspend config.SuspendConfig

	// CommandTimeout bounds each remote command. Zero means 10s.
	CommandTimeout time.Duration

	Sender   Sender
	Executor Executor
	Clock    clock.Clock
	Log      logger.Logger
	Metrics  *observability.Metrics
}

// Controller drives power transitions of the target.
type Controller struct {
	target     config.Target
	suspend    config.SuspendConfig
	policy     DisconnectPolicy
	cmdTimeout time.Duration

	sender  Sender
	exec    Executor
	clock   clock.Clock
	log     logger.Logger
	metrics *observability.Metrics
}

// New creates a Controller. A nil Sender sends real UDP packets.
func New(opts Options) *Controller {
	c := &Controller{
		target:     opts.Target,
		suspend:    opts.Suspend,
		policy:     NewDisconnectPolicy(opts.Suspend.ExpectedDisconnects),
		cmdTimeout: opts.CommandTimeout,
		sender:     opts.Sender,
		exec:       opts.Executor,
		clock:      opts.Clock,
		log:        opts.Log,
		metrics:    opts.Metrics,
	}
	if c.cmdTimeout <= 0 {
		c.cmdTimeout = 10 * time.Second
	}
	if c.sender == nil {
		c.sender = UDPSender{}
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.log == nil {
		c.log = logger.Noop()
	}
	return c
}

// Wake broadcasts the magic packet to every destination concurrently. It
// succeeds when at least one send succeeds. That only proves a packet left
// this host; whether the NIC honors it is outside our view.
func (c *Controller) Wake(ctx context.Context) Result {
	mac, err := ParseMAC(c.target.MAC)
	if err != nil {
		c.log.Error("Wake aborted: %s", errors.Flatten(err))
		return c.finish("wake", "invalid", false, errors.Flatten(err))
	}

	packet := MagicPacket(mac)
	dests := Destinations(c.target.Address, c.target.Broadcast)
	c.log.Info("Sending Wake-on-LAN to %s via %d destinations", mac, len(dests))

	errs := make([]error, len(dests))
	var wg sync.WaitGroup
	for i, dest := range dests {
		wg.Add(1)
		go func(i int, dest string) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, SendTimeout)
			defer cancel()
			if err := c.sender.Send(sendCtx, dest, packet); err != nil {
				errs[i] = errors.WrapWithCode(err, errors.ErrNetworkSend,
					"send to "+dest+" failed", "")
				c.log.Debug("WoL send to %s failed: %v", dest, err)
				return
			}
			c.log.Debug("WoL packet sent to %s", dest)
		}(i, dest)
	}
	wg.Wait()

	sent := 0
	for _, err := range errs {
		if err == nil {
			sent++
		}
	}

	if sent == 0 {
		msg := "All Wake-on-LAN sends failed: " + errors.Flatten(stderrors.Join(errs...))
		c.log.Error("%s", msg)
		return c.finish("wake", "failure", false, msg)
	}
	if sent < len(dests) {
		c.log.Warn("Wake-on-LAN partially sent (%d/%d): %s", sent, len(dests), errors.Flatten(stderrors.Join(errs...)))
	}
	return c.finish("wake", "success", true,
		fmt.Sprintf("Wake-on-LAN packet sent to %s (%d/%d destinations)", mac, sent, len(dests)))
}

// Suspend re-arms Wake-on-LAN on the default-route interface and suspends
// the target. A connection drop the DisconnectPolicy accepts counts as
// success, since a host going to sleep takes the channel down with it.
func (c *Controller) Suspend(ctx context.Context) Result {
	if c.exec == nil {
		return c.finish("suspend", "failure", false, "No control channel configured")
	}

	c.log.Info("Suspending %s", c.target.Address)

	iface, err := c.defaultInterface(ctx)
	if err != nil {
		c.log.Error("Suspend failed: %s", errors.Flatten(err))
		return c.finish("suspend", "failure", false, errors.Flatten(err))
	}

	cmd := SuspendCommand(c.suspend, iface)
	c.log.Debug("Running suspend command: %s", cmd)

	out, err := c.exec.Run(ctx, cmd, c.cmdTimeout)
	if err != nil {
		if kind, ok := c.policy.Expected(err); ok {
			c.log.Info("Connection dropped during suspend (%s); treating as success", kind)
			return c.finish("suspend", "success", true,
				fmt.Sprintf("Suspend command sent to %s (connection closed: %s)", c.target.Address, kind))
		}
		msg := "Suspend command failed: " + errors.Flatten(err)
		c.log.Error("%s", msg)
		return c.finish("suspend", "failure", false, msg)
	}
	if out.ExitCode != 0 {
		msg := fmt.Sprintf("Suspend command exited with status %d", out.ExitCode)
		if detail := out.Combined(); detail != "" {
			msg += ": " + detail
		}
		c.log.Error("%s", msg)
		return c.finish("suspend", "failure", false, msg)
	}

	return c.finish("suspend", "success", true,
		fmt.Sprintf("Suspend command sent to %s via %s", c.target.Address, iface))
}

func (c *Controller) defaultInterface(ctx context.Context) (string, error) {
	out, err := c.exec.Run(ctx, InterfaceCommand, c.cmdTimeout)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrExec,
			"Failed to determine network interface",
			"Check SSH access to the target")
	}
	if out.ExitCode != 0 {
		return "", errors.New(errors.ErrExec,
			fmt.Sprintf("Failed to determine network interface (exit %d): %s", out.ExitCode, out.Combined()),
			"Make sure 'ip' is installed on the target")
	}
	iface := ParseDefaultInterface(out.Stdout)
	if iface == "" {
		return "", errors.New(errors.ErrExec,
			"Failed to determine network interface",
			"The target reported no default route")
	}
	if !ifacePattern.MatchString(iface) {
		return "", errors.New(errors.ErrExec,
			fmt.Sprintf("Refusing to use interface name '%s'", iface),
			"Interface names are alphanumeric, at most 15 characters")
	}
	return iface, nil
}

// ParseDefaultInterface pulls the device name out of `ip route show default`.
func ParseDefaultInterface(output string) string {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "default" {
			continue
		}
		for i := 0; i+1 < len(fields); i++ {
			if fields[i] == "dev" {
				return fields[i+1]
			}
		}
	}
	return ""
}

// SuspendCommand joins the WoL arming command and the suspend command.
func SuspendCommand(s config.SuspendConfig, iface string) string {
	if strings.TrimSpace(s.WOLCommand) == "" {
		return s.Command
	}
	return strings.ReplaceAll(s.WOLCommand, "{iface}", iface) + " && " + s.Command
}

func (c *Controller) finish(action, outcome string, success bool, msg string) Result {
	if c.metrics != nil {
		c.metrics.PowerActions.WithLabelValues(action, outcome).Inc()
	}
	if success {
		c.log.Info("%s", msg)
	}
	return Result{Success: success, Message: msg, Timestamp: c.clock.Now()}
}
