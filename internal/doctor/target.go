package doctor

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rileyhilliard/dozer/internal/config"
	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/rileyhilliard/dozer/internal/host"
	"github.com/rileyhilliard/dozer/internal/power"
	"github.com/rileyhilliard/dozer/internal/readiness"
)

// asleepHint is appended to reachability failures, which are expected
// while the target sleeps.
const asleepHint = "If the target is asleep this is expected; run 'dozer wake --wait' and try again"

// ControlChannelCheck runs "echo ok" over SSH, the same command the
// monitor uses for liveness.
type ControlChannelCheck struct {
	Exec    power.Executor
	Target  string
	Timeout time.Duration
}

func (c *ControlChannelCheck) Name() string     { return "control_channel" }
func (c *ControlChannelCheck) Category() string { return CategoryTarget }

func (c *ControlChannelCheck) Run(ctx context.Context) CheckResult {
	start := time.Now()
	out, err := c.Exec.Run(ctx, "echo ok", c.Timeout)
	if err != nil {
		return failResult(c, fmt.Sprintf("SSH to %s failed: %s", c.Target, errors.Flatten(err)),
			"Check ssh.user and ssh.identity_file, and that your key is in the target's authorized_keys.\n"+asleepHint)
	}
	if strings.TrimSpace(out.Stdout) != "ok" {
		return failResult(c, fmt.Sprintf("SSH to %s answered %q instead of ok", c.Target, out.Combined()),
			"Check the login shell on the target doesn't print extra output")
	}
	return passResult(c, fmt.Sprintf("SSH to %s (%s)", c.Target, time.Since(start).Round(time.Millisecond)))
}

// ServicePortCheck connects to the proxied service's port.
type ServicePortCheck struct {
	Address string
	Port    int
	Timeout time.Duration
}

func (c *ServicePortCheck) Name() string     { return "service_port" }
func (c *ServicePortCheck) Category() string { return CategoryTarget }

func (c *ServicePortCheck) Run(ctx context.Context) CheckResult {
	addr := net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
	latency, err := host.ProbeTCP(ctx, addr, c.Timeout)
	if err != nil {
		if host.IsRefused(err) {
			return failResult(c, fmt.Sprintf("%s refused the connection", addr),
				"The host is up but nothing listens on target.http_port. Is the service running?")
		}
		return warnResult(c, fmt.Sprintf("%s unreachable: %s", addr, errors.Flatten(err)), asleepHint)
	}
	return passResult(c, fmt.Sprintf("%s open (%s)", addr, latency.Round(time.Millisecond)))
}

// ServiceHealthCheck runs one readiness check with the configured policy.
type ServiceHealthCheck struct {
	Prober  *readiness.Prober
	Address string
	Port    int
	Policy  readiness.Policy
}

func (c *ServiceHealthCheck) Name() string     { return "service_health" }
func (c *ServiceHealthCheck) Category() string { return CategoryTarget }

func (c *ServiceHealthCheck) Run(ctx context.Context) CheckResult {
	url := readiness.URL(c.Address, c.Port, c.Policy)
	res := c.Prober.Check(ctx, c.Address, c.Port, c.Policy)
	switch {
	case res.Ready:
		return passResult(c, fmt.Sprintf("%s %s: %s", c.Policy.Method, url, res.Describe()))
	case res.StatusCode != 0:
		return failResult(c, fmt.Sprintf("%s %s: %s", c.Policy.Method, url, res.Describe()),
			"Check health_check.path and health_check.success_codes")
	default:
		return warnResult(c, fmt.Sprintf("%s %s: %s", c.Policy.Method, url, res.Describe()), asleepHint)
	}
}

// NewTargetChecks returns the checks that talk to the target. exec is the
// control channel; prober may be nil when the health policy is invalid.
func NewTargetChecks(cfg *config.Config, exec power.Executor, prober *readiness.Prober) []Check {
	target := net.JoinHostPort(cfg.Target.Address, strconv.Itoa(cfg.Target.SSHPort))
	checks := []Check{
		&ControlChannelCheck{Exec: exec, Target: target, Timeout: cfg.SSH.CommandTimeout},
	}
	for _, tool := range RequiredTools(cfg) {
		checks = append(checks, &ToolCheck{Tool: tool, Exec: exec})
	}
	checks = append(checks, &ServicePortCheck{
		Address: cfg.Target.Address,
		Port:    cfg.Target.HTTPPort,
		Timeout: cfg.HealthCheck.Timeout,
	})
	if policy, err := readiness.PolicyFromConfig(cfg.HealthCheck); err == nil && prober != nil {
		checks = append(checks, &ServiceHealthCheck{
			Prober:  prober,
			Address: cfg.Target.Address,
			Port:    cfg.Target.HTTPPort,
			Policy:  policy,
		})
	}
	return checks
}
