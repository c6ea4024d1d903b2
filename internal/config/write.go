package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rileyhilliard/dozer/internal/errors"
	"gopkg.in/yaml.v3"
)

const fileHeader = `# dozer configuration
# Every key can be overridden with DOZER_<SECTION>_<KEY>, e.g. DOZER_TARGET_ADDRESS.
`

// Marshal renders cfg as YAML with a short header comment.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fileHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fileView(cfg)); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Write saves cfg to path, creating parent directories. It refuses to
// replace an existing file unless overwrite is set.
func Write(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New(errors.ErrConfig,
				"Config file already exists: "+path,
				"Pass --force to overwrite it")
		}
	}

	data, err := Marshal(cfg)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't render config", "")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't create config directory",
			"Check permissions on "+filepath.Dir(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't write config file",
			"Check permissions on "+path)
	}
	return nil
}

// fileView mirrors Config with durations as strings, since yaml.v3 would
// otherwise write them as nanosecond integers.
func fileView(cfg *Config) map[string]interface{} {
	return map[string]interface{}{
		"version": cfg.Version,
		"listen":  cfg.Listen,
		"target":  cfg.Target,
		"ssh": map[string]interface{}{
			"user":                     cfg.SSH.User,
			"identity_file":            cfg.SSH.IdentityFile,
			"strict_host_key_checking": cfg.SSH.StrictHostKeyChecking,
			"connect_timeout":          cfg.SSH.ConnectTimeout.String(),
			"command_timeout":          cfg.SSH.CommandTimeout.String(),
		},
		"health_check": map[string]interface{}{
			"path":          cfg.HealthCheck.Path,
			"method":        cfg.HealthCheck.Method,
			"timeout":       cfg.HealthCheck.Timeout.String(),
			"success_codes": cfg.HealthCheck.SuccessCodes,
		},
		"auto_sleep": cfg.AutoSleep,
		"proxy": map[string]interface{}{
			"wake_timeout":     cfg.Proxy.WakeTimeout.String(),
			"request_timeout":  cfg.Proxy.RequestTimeout.String(),
			"readiness_buffer": cfg.Proxy.ReadinessBuffer.String(),
		},
		"monitor": map[string]interface{}{
			"interval":     cfg.Monitor.Interval.String(),
			"ping_timeout": cfg.Monitor.PingTimeout.String(),
			"liveness":     cfg.Monitor.Liveness,
			"metrics":      cfg.Monitor.Metrics,
		},
		"suspend": cfg.Suspend,
		"api":     cfg.API,
		"log":     cfg.Log,
	}
}
