package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete dozer.yaml configuration file.
type Config struct {
	Version     int               `yaml:"version" mapstructure:"version"`
	Listen      string            `yaml:"listen" mapstructure:"listen"`
	Target      Target            `yaml:"target" mapstructure:"target"`
	SSH         SSHConfig         `yaml:"ssh" mapstructure:"ssh"`
	HealthCheck HealthCheckConfig `yaml:"health_check" mapstructure:"health_check"`
	AutoSleep   AutoSleepConfig   `yaml:"auto_sleep" mapstructure:"auto_sleep"`
	Proxy       ProxyConfig       `yaml:"proxy" mapstructure:"proxy"`
	Monitor     MonitorConfig     `yaml:"monitor" mapstructure:"monitor"`
	Suspend     SuspendConfig     `yaml:"suspend" mapstructure:"suspend"`
	API         APIConfig         `yaml:"api" mapstructure:"api"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// Target is the single managed host.
type Target struct {
	// Address is the IPv4 address (or resolvable name) of the host.
	Address string `yaml:"address" mapstructure:"address"`

	// MAC is the hardware address woken by the magic packet.
	MAC string `yaml:"mac" mapstructure:"mac"`

	// SSHPort is the control channel port.
	SSHPort int `yaml:"ssh_port" mapstructure:"ssh_port"`

	// HTTPPort is where the proxied service listens.
	HTTPPort int `yaml:"http_port" mapstructure:"http_port"`

	// Broadcast overrides the subnet broadcast address. When empty it is
	// derived from Address assuming a /24.
	Broadcast string `yaml:"broadcast,omitempty" mapstructure:"broadcast"`
}

// SSHConfig controls the control channel to the target.
type SSHConfig struct {
	// User for the SSH login. Falls back to ~/.ssh/config, then $USER.
	User string `yaml:"user" mapstructure:"user"`

	// IdentityFile pins a private key. Supports ~ and ${HOME}.
	IdentityFile string `yaml:"identity_file,omitempty" mapstructure:"identity_file"`

	// StrictHostKeyChecking rejects unknown host keys when true.
	StrictHostKeyChecking bool `yaml:"strict_host_key_checking" mapstructure:"strict_host_key_checking"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`

	// CommandTimeout bounds the liveness echo.
	CommandTimeout time.Duration `yaml:"command_timeout" mapstructure:"command_timeout"`
}

// HealthCheckConfig is the readiness policy for the proxied service.
type HealthCheckConfig struct {
	Path    string        `yaml:"path" mapstructure:"path"`
	Method  string        `yaml:"method" mapstructure:"method"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// SuccessCodes lists inclusive ranges or single codes, e.g. "200-299,404".
	SuccessCodes string `yaml:"success_codes" mapstructure:"success_codes"`
}

// AutoSleepConfig is the initial auto-sleep policy. It can be changed at
// runtime through the control API; runtime changes are not written back.
type AutoSleepConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	IdleMinutes    int  `yaml:"idle_minutes" mapstructure:"idle_minutes"`
	MonitorGPU     bool `yaml:"monitor_gpu" mapstructure:"monitor_gpu"`
	GPUThreshold   int  `yaml:"gpu_threshold" mapstructure:"gpu_threshold"`
	GPUIdleMinutes int  `yaml:"gpu_idle_minutes" mapstructure:"gpu_idle_minutes"`
}

// ProxyConfig bounds the wake-then-forward path.
type ProxyConfig struct {
	WakeTimeout     time.Duration `yaml:"wake_timeout" mapstructure:"wake_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	ReadinessBuffer time.Duration `yaml:"readiness_buffer" mapstructure:"readiness_buffer"`
}

// MonitorConfig controls the periodic status cycle.
type MonitorConfig struct {
	Interval    time.Duration `yaml:"interval" mapstructure:"interval"`
	PingTimeout time.Duration `yaml:"ping_timeout" mapstructure:"ping_timeout"`

	// Liveness selects the reachability probe: "icmp" (falls back to tcp
	// when ICMP sockets are unavailable) or "tcp".
	Liveness string `yaml:"liveness" mapstructure:"liveness"`

	// Metrics toggles the SSH performance snapshot.
	Metrics bool `yaml:"metrics" mapstructure:"metrics"`
}

// SuspendConfig describes how the target is put to sleep.
type SuspendConfig struct {
	// WOLCommand re-arms wake-on-LAN. {iface} is replaced with the
	// default-route interface name.
	WOLCommand string `yaml:"wol_command" mapstructure:"wol_command"`

	// Command suspends the host.
	Command string `yaml:"command" mapstructure:"command"`

	// ExpectedDisconnects lists error kinds treated as a successful suspend:
	// eof, reset, broken_pipe, closed, exit_missing, timeout.
	ExpectedDisconnects []string `yaml:"expected_disconnects" mapstructure:"expected_disconnects"`
}

// APIConfig tunes the control API.
type APIConfig struct {
	// PowerRateLimit is the sustained wake/sleep calls per minute per client.
	PowerRateLimit int `yaml:"power_rate_limit" mapstructure:"power_rate_limit"`
}

// LogConfig selects the structured log backend.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Listen:  ":3000",
		Target: Target{
			SSHPort:  22,
			HTTPPort: 11434,
		},
		SSH: SSHConfig{
			StrictHostKeyChecking: false,
			ConnectTimeout:        10 * time.Second,
			CommandTimeout:        8 * time.Second,
		},
		HealthCheck: HealthCheckConfig{
			Path:         "/",
			Method:       "HEAD",
			Timeout:      5 * time.Second,
			SuccessCodes: "200-299,404",
		},
		AutoSleep: AutoSleepConfig{
			Enabled:        false,
			IdleMinutes:    15,
			MonitorGPU:     false,
			GPUThreshold:   5,
			GPUIdleMinutes: 5,
		},
		Proxy: ProxyConfig{
			WakeTimeout:     180 * time.Second,
			RequestTimeout:  300 * time.Second,
			ReadinessBuffer: time.Second,
		},
		Monitor: MonitorConfig{
			Interval:    5 * time.Second,
			PingTimeout: 2 * time.Second,
			Liveness:    "icmp",
			Metrics:     true,
		},
		Suspend: SuspendConfig{
			WOLCommand:          "sudo ethtool -s {iface} wol g",
			Command:             "sudo systemctl suspend",
			ExpectedDisconnects: []string{"eof", "reset", "broken_pipe", "closed", "exit_missing"},
		},
		API: APIConfig{
			PowerRateLimit: 6,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
