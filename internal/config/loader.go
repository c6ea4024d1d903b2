package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "dozer.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/dozer"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes every environment override (DOZER_TARGET_ADDRESS).
	EnvPrefix = "DOZER"
)

// Load reads config from the specified path. An empty path loads defaults
// plus environment overrides only, which is how container deployments that
// predate the config file run.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found",
					"Run 'dozer init' to create a config file, or specify one with --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file exists and is valid YAML")
		}
	}

	if err := applyLegacyEnv(v); err != nil {
		return nil, err
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. dozer.yaml in current directory
// 3. ~/.config/dozer/config.yaml
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// LoadOrDefault finds and loads the config, falling back to defaults plus
// environment when no file exists.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// setDefaults registers every key with viper. AutomaticEnv only sees keys
// viper already knows about, so this doubles as the env-override whitelist.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("version", d.Version)
	v.SetDefault("listen", d.Listen)

	v.SetDefault("target.address", d.Target.Address)
	v.SetDefault("target.mac", d.Target.MAC)
	v.SetDefault("target.ssh_port", d.Target.SSHPort)
	v.SetDefault("target.http_port", d.Target.HTTPPort)
	v.SetDefault("target.broadcast", d.Target.Broadcast)

	v.SetDefault("ssh.user", d.SSH.User)
	v.SetDefault("ssh.identity_file", d.SSH.IdentityFile)
	v.SetDefault("ssh.strict_host_key_checking", d.SSH.StrictHostKeyChecking)
	v.SetDefault("ssh.connect_timeout", d.SSH.ConnectTimeout.String())
	v.SetDefault("ssh.command_timeout", d.SSH.CommandTimeout.String())

	v.SetDefault("health_check.path", d.HealthCheck.Path)
	v.SetDefault("health_check.method", d.HealthCheck.Method)
	v.SetDefault("health_check.timeout", d.HealthCheck.Timeout.String())
	v.SetDefault("health_check.success_codes", d.HealthCheck.SuccessCodes)

	v.SetDefault("auto_sleep.enabled", d.AutoSleep.Enabled)
	v.SetDefault("auto_sleep.idle_minutes", d.AutoSleep.IdleMinutes)
	v.SetDefault("auto_sleep.monitor_gpu", d.AutoSleep.MonitorGPU)
	v.SetDefault("auto_sleep.gpu_threshold", d.AutoSleep.GPUThreshold)
	v.SetDefault("auto_sleep.gpu_idle_minutes", d.AutoSleep.GPUIdleMinutes)

	v.SetDefault("proxy.wake_timeout", d.Proxy.WakeTimeout.String())
	v.SetDefault("proxy.request_timeout", d.Proxy.RequestTimeout.String())
	v.SetDefault("proxy.readiness_buffer", d.Proxy.ReadinessBuffer.String())

	v.SetDefault("monitor.interval", d.Monitor.Interval.String())
	v.SetDefault("monitor.ping_timeout", d.Monitor.PingTimeout.String())
	v.SetDefault("monitor.liveness", d.Monitor.Liveness)
	v.SetDefault("monitor.metrics", d.Monitor.Metrics)

	v.SetDefault("suspend.wol_command", d.Suspend.WOLCommand)
	v.SetDefault("suspend.command", d.Suspend.Command)
	v.SetDefault("suspend.expected_disconnects", d.Suspend.ExpectedDisconnects)

	v.SetDefault("api.power_rate_limit", d.API.PowerRateLimit)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// legacyVar maps an environment variable from the pre-config deployment onto
// a config key. Numeric legacy values carry an implicit unit.
type legacyVar struct {
	env  string
	key  string
	unit time.Duration // zero means copy the raw value
}

var legacyVars = []legacyVar{
	{env: "TARGET_SERVER_IP", key: "target.address"},
	{env: "TARGET_SERVER_MAC", key: "target.mac"},
	{env: "TARGET_SERVER_SSH_PORT", key: "target.ssh_port"},
	{env: "TARGET_SERVER_HTTP_PORT", key: "target.http_port"},
	{env: "TARGET_HEALTH_CHECK_PATH", key: "health_check.path"},
	{env: "TARGET_HEALTH_CHECK_METHOD", key: "health_check.method"},
	{env: "TARGET_HEALTH_CHECK_TIMEOUT", key: "health_check.timeout", unit: time.Millisecond},
	{env: "TARGET_HEALTH_CHECK_SUCCESS_CODES", key: "health_check.success_codes"},
	{env: "AUTO_SLEEP_ENABLED", key: "auto_sleep.enabled"},
	{env: "AUTO_SLEEP_MINUTES", key: "auto_sleep.idle_minutes"},
	{env: "AUTO_SLEEP_MONITOR_GPU", key: "auto_sleep.monitor_gpu"},
	{env: "AUTO_SLEEP_GPU_THRESHOLD", key: "auto_sleep.gpu_threshold"},
	{env: "AUTO_SLEEP_IDLE_MINUTES", key: "auto_sleep.gpu_idle_minutes"},
	{env: "PROXY_WAKE_TIMEOUT", key: "proxy.wake_timeout", unit: time.Second},
	{env: "PROXY_REQUEST_TIMEOUT", key: "proxy.request_timeout", unit: time.Second},
	{env: "SERVICE_READINESS_BUFFER_MS", key: "proxy.readiness_buffer", unit: time.Millisecond},
	{env: "SSH_USERNAME", key: "ssh.user"},
	{env: "LOG_LEVEL", key: "log.level"},
}

// envKey returns the DOZER_ variable name for a config key.
func envKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// applyLegacyEnv honors the old variable names. A DOZER_ variable for the
// same key wins; a legacy variable wins over the file.
func applyLegacyEnv(v *viper.Viper) error {
	for _, lv := range legacyVars {
		raw, ok := os.LookupEnv(lv.env)
		if !ok || raw == "" {
			continue
		}
		if _, set := os.LookupEnv(envKey(lv.key)); set {
			continue
		}
		if lv.unit == 0 {
			v.Set(lv.key, raw)
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Invalid value for "+lv.env+": "+raw,
				"Use a whole number, or set "+envKey(lv.key)+" to a duration like 30s")
		}
		v.Set(lv.key, (time.Duration(n) * lv.unit).String())
	}

	// PORT predates listen and carries only a port number.
	if port, ok := os.LookupEnv("PORT"); ok && port != "" {
		if _, set := os.LookupEnv(envKey("listen")); !set {
			v.Set("listen", ":"+strings.TrimPrefix(port, ":"))
		}
	}
	return nil
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		where := "the environment"
		if path != "" {
			where = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the values in "+where)
	}

	// AutomaticEnv hands list values through as a single string.
	if len(cfg.Suspend.ExpectedDisconnects) == 1 && strings.Contains(cfg.Suspend.ExpectedDisconnects[0], ",") {
		cfg.Suspend.ExpectedDisconnects = splitList(cfg.Suspend.ExpectedDisconnects[0])
	}

	cfg.SSH.IdentityFile = ExpandPath(cfg.SSH.IdentityFile)
	cfg.Target.MAC = strings.TrimSpace(cfg.Target.MAC)
	cfg.HealthCheck.Method = strings.ToUpper(strings.TrimSpace(cfg.HealthCheck.Method))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
