package doctor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rileyhilliard/dozer/internal/config"
	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/rileyhilliard/dozer/internal/readiness"
)

// ConfigFileCheck verifies that a config file exists.
type ConfigFileCheck struct {
	ConfigPath string // Explicit path, or empty to search
}

func (c *ConfigFileCheck) Name() string     { return "config_file" }
func (c *ConfigFileCheck) Category() string { return CategoryConfig }

func (c *ConfigFileCheck) Run(context.Context) CheckResult {
	path, err := config.Find(c.ConfigPath)
	if err != nil {
		return failResult(c, errors.Flatten(err),
			"Check the path passed to --config, or run 'dozer init'")
	}

	// Env-only deployments are valid, so a missing file is only a warning.
	if path == "" {
		return warnResult(c, "No config file found; using defaults and DOZER_* environment",
			"Run 'dozer init' to create "+config.ConfigFileName)
	}

	return passResult(c, fmt.Sprintf("Config file: %s", filepath.Base(path)))
}

// ConfigSchemaCheck loads the config and runs full validation.
type ConfigSchemaCheck struct {
	ConfigPath string
}

func (c *ConfigSchemaCheck) Name() string     { return "config_schema" }
func (c *ConfigSchemaCheck) Category() string { return CategoryConfig }

func (c *ConfigSchemaCheck) Run(context.Context) CheckResult {
	cfg, _, err := config.LoadOrDefault(c.ConfigPath)
	if err != nil {
		return failResult(c, fmt.Sprintf("Failed to load config: %s", errors.Flatten(err)),
			"Check the YAML syntax in your config file")
	}

	if err := config.Validate(cfg); err != nil {
		return failResult(c, fmt.Sprintf("Schema error: %s", errors.Flatten(err)),
			"Fix the configuration errors in "+config.ConfigFileName)
	}

	return passResult(c, fmt.Sprintf("Schema valid (version %d)", cfg.Version))
}

// HealthPolicyCheck verifies the health check policy can be built.
type HealthPolicyCheck struct {
	HealthCheck config.HealthCheckConfig
}

func (c *HealthPolicyCheck) Name() string     { return "health_policy" }
func (c *HealthPolicyCheck) Category() string { return CategoryConfig }

func (c *HealthPolicyCheck) Run(context.Context) CheckResult {
	policy, err := readiness.PolicyFromConfig(c.HealthCheck)
	if err != nil {
		return failResult(c, errors.Flatten(err),
			`Use codes and inclusive ranges, e.g. success_codes: "200-299,404"`)
	}
	return passResult(c, fmt.Sprintf("Health check: %s %s expects %s (timeout %s)",
		policy.Method, policy.Path, policy.SuccessCodes, policy.Timeout))
}

// NewConfigChecks returns the checks that need only the config path.
func NewConfigChecks(configPath string) []Check {
	return []Check{
		&ConfigFileCheck{ConfigPath: configPath},
		&ConfigSchemaCheck{ConfigPath: configPath},
	}
}
