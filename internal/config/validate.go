package config

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rileyhilliard/dozer/internal/errors"
)

// Bounds for the auto-sleep policy. Shared with runtime updates from the
// control API.
const (
	MinIdleMinutes = 1
	MaxIdleMinutes = 120
	MinGPUPercent  = 0
	MaxGPUPercent  = 100
)

var (
	macPattern    = regexp.MustCompile(`^[0-9A-Fa-f]{12}$`)
	rangePattern  = regexp.MustCompile(`^\d{3}(-\d{3})?$`)
	validMethods  = map[string]bool{"GET": true, "HEAD": true, "OPTIONS": true}
	validLiveness = map[string]bool{"icmp": true, "tcp": true}
	validLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validFormats  = map[string]bool{"text": true, "json": true}

	// DisconnectKinds are the error kinds a suspend may treat as success.
	DisconnectKinds = map[string]bool{
		"eof":          true,
		"reset":        true,
		"broken_pipe":  true,
		"closed":       true,
		"exit_missing": true,
		"timeout":      true,
	}
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but dozer only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Grab the latest dozer release")
	}

	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Listen address '%s' isn't host:port", cfg.Listen),
			"Use something like ':3000' or '127.0.0.1:3000'")
	}

	validators := []func(*Config) error{
		func(c *Config) error { return validateTarget(c.Target) },
		func(c *Config) error { return validateHealthCheck(c.HealthCheck) },
		func(c *Config) error { return ValidateAutoSleep(c.AutoSleep) },
		func(c *Config) error { return validateProxy(c.Proxy) },
		func(c *Config) error { return validateMonitor(c.Monitor) },
		func(c *Config) error { return validateSuspend(c.Suspend) },
		func(c *Config) error { return validateLog(c.Log) },
	}
	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			return err
		}
	}

	if cfg.API.PowerRateLimit < 0 {
		return errors.New(errors.ErrConfig,
			"api.power_rate_limit can't be negative",
			"Use 0 to disable rate limiting")
	}
	return nil
}

func validateTarget(t Target) error {
	if t.Address == "" {
		return errors.New(errors.ErrConfig,
			"No target address configured",
			"Set target.address in dozer.yaml or DOZER_TARGET_ADDRESS")
	}
	if t.MAC == "" {
		return errors.New(errors.ErrConfig,
			"No target MAC address configured",
			"Set target.mac (e.g. 00:11:22:33:44:55) so the host can be woken")
	}
	if !macPattern.MatchString(strings.NewReplacer(":", "", "-", "").Replace(t.MAC)) {
		return errors.New(errors.ErrInvalidAddress,
			fmt.Sprintf("'%s' isn't a valid MAC address", t.MAC),
			"Use six hex octets like 00:11:22:33:44:55")
	}
	for name, port := range map[string]int{"ssh_port": t.SSHPort, "http_port": t.HTTPPort} {
		if port < 1 || port > 65535 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("target.%s %d is out of range", name, port),
				"Ports must be between 1 and 65535")
		}
	}
	if t.Broadcast != "" {
		if ip := net.ParseIP(t.Broadcast); ip == nil || ip.To4() == nil {
			return errors.New(errors.ErrInvalidAddress,
				fmt.Sprintf("target.broadcast '%s' isn't an IPv4 address", t.Broadcast),
				"Use the subnet broadcast, e.g. 192.168.1.255, or leave it empty")
		}
	}
	return nil
}

func validateHealthCheck(h HealthCheckConfig) error {
	if !strings.HasPrefix(h.Path, "/") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("health_check.path '%s' must start with /", h.Path),
			"Example: path: /api/tags")
	}
	if !validMethods[strings.ToUpper(h.Method)] {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("health_check.method '%s' isn't supported", h.Method),
			"Use HEAD, GET, or OPTIONS")
	}
	if h.Timeout <= 0 {
		return errors.New(errors.ErrConfig,
			"health_check.timeout must be positive",
			"Example: timeout: 5s")
	}
	return ValidateSuccessCodes(h.SuccessCodes)
}

// ValidateSuccessCodes checks a "200-299,404" style list.
func ValidateSuccessCodes(s string) error {
	parts := splitList(s)
	if len(parts) == 0 {
		return errors.New(errors.ErrConfig,
			"health_check.success_codes is empty",
			"Example: success_codes: \"200-299,404\"")
	}
	for _, part := range parts {
		if !rangePattern.MatchString(part) {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("'%s' isn't a status code or range", part),
				"Use codes like 404 or ranges like 200-299")
		}
		lo, hi, _ := strings.Cut(part, "-")
		if hi == "" {
			hi = lo
		}
		l, _ := strconv.Atoi(lo)
		h, _ := strconv.Atoi(hi)
		if l < 100 || h > 599 || l > h {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Status range '%s' is invalid", part),
				"Codes run from 100 to 599 and ranges go low-high")
		}
	}
	return nil
}

// ValidateAutoSleep enforces the auto-sleep bounds.
func ValidateAutoSleep(a AutoSleepConfig) error {
	if a.IdleMinutes < MinIdleMinutes || a.IdleMinutes > MaxIdleMinutes {
		return errors.New(errors.ErrConfig,
			"Minutes must be between 1 and 120",
			fmt.Sprintf("auto_sleep.idle_minutes is %d", a.IdleMinutes))
	}
	if a.GPUIdleMinutes < MinIdleMinutes || a.GPUIdleMinutes > MaxIdleMinutes {
		return errors.New(errors.ErrConfig,
			"GPU idle minutes must be between 1 and 120",
			fmt.Sprintf("auto_sleep.gpu_idle_minutes is %d", a.GPUIdleMinutes))
	}
	if a.GPUThreshold < MinGPUPercent || a.GPUThreshold > MaxGPUPercent {
		return errors.New(errors.ErrConfig,
			"GPU threshold must be between 0 and 100",
			fmt.Sprintf("auto_sleep.gpu_threshold is %d", a.GPUThreshold))
	}
	return nil
}

func validateProxy(p ProxyConfig) error {
	checks := []struct {
		name string
		d    time.Duration
		min  time.Duration
	}{
		{"proxy.wake_timeout", p.WakeTimeout, time.Second},
		{"proxy.request_timeout", p.RequestTimeout, time.Second},
		{"proxy.readiness_buffer", p.ReadinessBuffer, 0},
	}
	for _, c := range checks {
		if c.d < c.min {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("%s is too short (%s)", c.name, c.d),
				fmt.Sprintf("Use at least %s", c.min))
		}
	}
	return nil
}

func validateMonitor(m MonitorConfig) error {
	if m.Interval < time.Second {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("monitor.interval %s is too short", m.Interval),
			"Use at least 1s; the default is 5s")
	}
	if m.PingTimeout <= 0 || m.PingTimeout >= m.Interval {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("monitor.ping_timeout %s must be positive and shorter than the interval", m.PingTimeout),
			"The default is 2s")
	}
	if !validLiveness[m.Liveness] {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("monitor.liveness '%s' isn't supported", m.Liveness),
			"Use icmp or tcp")
	}
	return nil
}

func validateSuspend(s SuspendConfig) error {
	if strings.TrimSpace(s.Command) == "" {
		return errors.New(errors.ErrConfig,
			"suspend.command is empty",
			"The default is 'sudo systemctl suspend'")
	}
	if s.WOLCommand != "" && !strings.Contains(s.WOLCommand, "{iface}") {
		return errors.New(errors.ErrConfig,
			"suspend.wol_command needs an {iface} placeholder",
			"Example: sudo ethtool -s {iface} wol g")
	}
	for _, kind := range s.ExpectedDisconnects {
		if !DisconnectKinds[kind] {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Unknown disconnect kind '%s'", kind),
				"Valid kinds: eof, reset, broken_pipe, closed, exit_missing, timeout")
		}
	}
	return nil
}

func validateLog(l LogConfig) error {
	if !validLevels[strings.ToLower(l.Level)] {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("log.level '%s' isn't supported", l.Level),
			"Use debug, info, warn, or error")
	}
	if !validFormats[strings.ToLower(l.Format)] {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("log.format '%s' isn't supported", l.Format),
			"Use text or json")
	}
	return nil
}
