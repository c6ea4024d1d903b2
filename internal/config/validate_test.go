package config

import (
	"testing"
	"time"

	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Target.Address = "192.168.1.100"
	cfg.Target.MAC = "00:11:22:33:44:55"
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	require.NoError(t, Validate(validConfig()))

	cfg := validConfig()
	cfg.Target.MAC = "00-11-22-33-44-55"
	cfg.Target.Broadcast = "192.168.1.255"
	require.NoError(t, Validate(cfg))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		code    string
		message string
	}{
		{
			name:    "future version",
			mutate:  func(c *Config) { c.Version = CurrentConfigVersion + 1 },
			code:    errors.ErrConfig,
			message: "from the future",
		},
		{
			name:    "bad listen",
			mutate:  func(c *Config) { c.Listen = "3000" },
			code:    errors.ErrConfig,
			message: "Listen address",
		},
		{
			name:    "missing address",
			mutate:  func(c *Config) { c.Target.Address = "" },
			code:    errors.ErrConfig,
			message: "No target address",
		},
		{
			name:    "missing mac",
			mutate:  func(c *Config) { c.Target.MAC = "" },
			code:    errors.ErrConfig,
			message: "No target MAC",
		},
		{
			name:    "short mac",
			mutate:  func(c *Config) { c.Target.MAC = "00:11:22:33:44" },
			code:    errors.ErrInvalidAddress,
			message: "isn't a valid MAC",
		},
		{
			name:    "non-hex mac",
			mutate:  func(c *Config) { c.Target.MAC = "zz:11:22:33:44:55" },
			code:    errors.ErrInvalidAddress,
			message: "isn't a valid MAC",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Target.HTTPPort = 70000 },
			code:    errors.ErrConfig,
			message: "out of range",
		},
		{
			name:    "ipv6 broadcast",
			mutate:  func(c *Config) { c.Target.Broadcast = "ff02::1" },
			code:    errors.ErrInvalidAddress,
			message: "isn't an IPv4",
		},
		{
			name:    "relative health path",
			mutate:  func(c *Config) { c.HealthCheck.Path = "health" },
			code:    errors.ErrConfig,
			message: "must start with /",
		},
		{
			name:    "unsupported method",
			mutate:  func(c *Config) { c.HealthCheck.Method = "POST" },
			code:    errors.ErrConfig,
			message: "isn't supported",
		},
		{
			name:    "inverted range",
			mutate:  func(c *Config) { c.HealthCheck.SuccessCodes = "299-200" },
			code:    errors.ErrConfig,
			message: "is invalid",
		},
		{
			name:    "garbage codes",
			mutate:  func(c *Config) { c.HealthCheck.SuccessCodes = "2xx" },
			code:    errors.ErrConfig,
			message: "isn't a status code",
		},
		{
			name:    "idle minutes zero",
			mutate:  func(c *Config) { c.AutoSleep.IdleMinutes = 0 },
			code:    errors.ErrConfig,
			message: "Minutes must be between 1 and 120",
		},
		{
			name:    "gpu threshold over 100",
			mutate:  func(c *Config) { c.AutoSleep.GPUThreshold = 101 },
			code:    errors.ErrConfig,
			message: "GPU threshold",
		},
		{
			name:    "wake timeout tiny",
			mutate:  func(c *Config) { c.Proxy.WakeTimeout = 10 * time.Millisecond },
			code:    errors.ErrConfig,
			message: "proxy.wake_timeout is too short",
		},
		{
			name:    "ping timeout longer than interval",
			mutate:  func(c *Config) { c.Monitor.PingTimeout = 10 * time.Second },
			code:    errors.ErrConfig,
			message: "ping_timeout",
		},
		{
			name:    "unknown liveness",
			mutate:  func(c *Config) { c.Monitor.Liveness = "arp" },
			code:    errors.ErrConfig,
			message: "monitor.liveness",
		},
		{
			name:    "wol command without placeholder",
			mutate:  func(c *Config) { c.Suspend.WOLCommand = "sudo ethtool -s eth0 wol g" },
			code:    errors.ErrConfig,
			message: "{iface}",
		},
		{
			name:    "unknown disconnect kind",
			mutate:  func(c *Config) { c.Suspend.ExpectedDisconnects = []string{"eof", "sigpipe"} },
			code:    errors.ErrConfig,
			message: "sigpipe",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "logfmt" },
			code:    errors.ErrConfig,
			message: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code), "want code %s, got %s", tt.code, errors.CodeOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidateAutoSleep_Bounds(t *testing.T) {
	base := DefaultConfig().AutoSleep

	for _, minutes := range []int{1, 60, 120} {
		a := base
		a.IdleMinutes = minutes
		assert.NoError(t, ValidateAutoSleep(a), "minutes=%d", minutes)
	}
	for _, minutes := range []int{0, -5, 121} {
		a := base
		a.IdleMinutes = minutes
		assert.Error(t, ValidateAutoSleep(a), "minutes=%d", minutes)
	}
}

func TestValidateSuccessCodes(t *testing.T) {
	assert.NoError(t, ValidateSuccessCodes("200-299,404"))
	assert.NoError(t, ValidateSuccessCodes(" 200 , 301-308 "))
	assert.Error(t, ValidateSuccessCodes(""))
	assert.Error(t, ValidateSuccessCodes("99"))
	assert.Error(t, ValidateSuccessCodes("200-700"))
}
