package doctor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rileyhilliard/dozer/internal/config"
	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/rileyhilliard/dozer/internal/power"
)

// ToolTimeout bounds each "command -v" lookup.
const ToolTimeout = 10 * time.Second

// validToolName matches safe tool names: alphanumeric, hyphens, underscores, and periods.
// Examples: ip, ethtool, nvidia-smi, pm-suspend
var validToolName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._+-]*$`)

// ValidateToolName checks if a tool name is safe to use in shell commands.
func ValidateToolName(name string) bool {
	return validToolName.MatchString(name)
}

// Tool is one binary the target needs.
type Tool struct {
	Name string
	// Why is shown in the result message.
	Why string
	// Optional tools produce a warning instead of a failure.
	Optional bool
}

// ToolCheck verifies a tool exists on the target using "command -v", which
// is POSIX and works across login shells.
type ToolCheck struct {
	Tool Tool
	Exec power.Executor
}

func (c *ToolCheck) Name() string     { return "tool_" + c.Tool.Name }
func (c *ToolCheck) Category() string { return CategoryTarget }

func (c *ToolCheck) Run(ctx context.Context) CheckResult {
	if !ValidateToolName(c.Tool.Name) {
		return failResult(c, fmt.Sprintf("%q is not a valid command name", c.Tool.Name),
			"Check suspend.command and suspend.wol_command in your config")
	}

	out, err := c.Exec.Run(ctx, "command -v "+c.Tool.Name, ToolTimeout)
	if err != nil {
		return warnResult(c, fmt.Sprintf("Couldn't look for %s: %s", c.Tool.Name, errors.Flatten(err)),
			"Fix the SSH control channel first")
	}
	if out.ExitCode != 0 {
		msg := fmt.Sprintf("%s not found on the target (%s)", c.Tool.Name, c.Tool.Why)
		if c.Tool.Optional {
			return warnResult(c, msg, "Install it on the target if you need this feature")
		}
		return failResult(c, msg, "Install "+c.Tool.Name+" on the target, or change the command in your config")
	}

	found := strings.TrimSpace(out.Stdout)
	if found == "" {
		found = c.Tool.Name
	}
	return passResult(c, fmt.Sprintf("%s: %s", c.Tool.Name, found))
}

// RequiredTools lists what the target must provide for cfg, deduplicated in
// order of first use.
func RequiredTools(cfg *config.Config) []Tool {
	var tools []Tool
	seen := make(map[string]bool)
	add := func(t Tool) {
		if t.Name == "" || seen[t.Name] {
			return
		}
		seen[t.Name] = true
		tools = append(tools, t)
	}

	if strings.TrimSpace(cfg.Suspend.WOLCommand) != "" {
		if strings.Contains(cfg.Suspend.WOLCommand, "{iface}") {
			add(Tool{Name: "ip", Why: "finds the default interface"})
		}
		add(Tool{Name: commandName(cfg.Suspend.WOLCommand), Why: "arms Wake-on-LAN before suspend"})
	}
	add(Tool{Name: commandName(cfg.Suspend.Command), Why: "suspends the target"})
	if cfg.AutoSleep.MonitorGPU || cfg.Monitor.Metrics {
		add(Tool{Name: "nvidia-smi", Why: "reports GPU utilization", Optional: true})
	}
	return tools
}

// commandName returns the program a shell command runs, skipping sudo and
// leading environment assignments.
func commandName(cmd string) string {
	for _, field := range strings.Fields(cmd) {
		switch {
		case field == "sudo", strings.HasPrefix(field, "-"):
			continue
		case strings.Contains(field, "="):
			continue
		}
		if i := strings.LastIndex(field, "/"); i >= 0 {
			field = field[i+1:]
		}
		return field
	}
	return ""
}
