package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, CurrentConfigVersion, cfg.Version)
	assert.Equal(t, ":3000", cfg.Listen)
	assert.Equal(t, 22, cfg.Target.SSHPort)
	assert.Equal(t, 11434, cfg.Target.HTTPPort)

	assert.Equal(t, "/", cfg.HealthCheck.Path)
	assert.Equal(t, "HEAD", cfg.HealthCheck.Method)
	assert.Equal(t, 5*time.Second, cfg.HealthCheck.Timeout)
	assert.Equal(t, "200-299,404", cfg.HealthCheck.SuccessCodes)

	assert.False(t, cfg.AutoSleep.Enabled)
	assert.Equal(t, 15, cfg.AutoSleep.IdleMinutes)
	assert.Equal(t, 5, cfg.AutoSleep.GPUThreshold)
	assert.Equal(t, 5, cfg.AutoSleep.GPUIdleMinutes)

	assert.Equal(t, 180*time.Second, cfg.Proxy.WakeTimeout)
	assert.Equal(t, 300*time.Second, cfg.Proxy.RequestTimeout)
	assert.Equal(t, time.Second, cfg.Proxy.ReadinessBuffer)

	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, "icmp", cfg.Monitor.Liveness)
	assert.Equal(t, 8*time.Second, cfg.SSH.CommandTimeout)
	assert.Contains(t, cfg.Suspend.WOLCommand, "{iface}")
}

// clearLegacyEnv keeps the host environment from leaking into load tests.
func clearLegacyEnv(t *testing.T) {
	t.Helper()
	for _, lv := range legacyVars {
		t.Setenv(lv.env, "")
		os.Unsetenv(lv.env)
	}
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")
}

func TestLoad(t *testing.T) {
	clearLegacyEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "dozer.yaml")

	content := `
version: 1
listen: ":8080"
target:
  address: 192.168.1.100
  mac: "aa:bb:cc:dd:ee:ff"
  http_port: 8000
ssh:
  user: sparkuser
health_check:
  path: /api/tags
  method: get
  timeout: 3s
  success_codes: "200-299"
auto_sleep:
  enabled: true
  idle_minutes: 30
  monitor_gpu: true
proxy:
  wake_timeout: 2m
suspend:
  expected_disconnects: [eof, reset]
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "192.168.1.100", cfg.Target.Address)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", cfg.Target.MAC)
	assert.Equal(t, 22, cfg.Target.SSHPort, "unset keys keep defaults")
	assert.Equal(t, 8000, cfg.Target.HTTPPort)
	assert.Equal(t, "sparkuser", cfg.SSH.User)
	assert.Equal(t, "/api/tags", cfg.HealthCheck.Path)
	assert.Equal(t, "GET", cfg.HealthCheck.Method, "method is upper-cased")
	assert.Equal(t, 3*time.Second, cfg.HealthCheck.Timeout)
	assert.True(t, cfg.AutoSleep.Enabled)
	assert.Equal(t, 30, cfg.AutoSleep.IdleMinutes)
	assert.True(t, cfg.AutoSleep.MonitorGPU)
	assert.Equal(t, 2*time.Minute, cfg.Proxy.WakeTimeout)
	assert.Equal(t, 300*time.Second, cfg.Proxy.RequestTimeout)
	assert.Equal(t, []string{"eof", "reset"}, cfg.Suspend.ExpectedDisconnects)
	require.NoError(t, Validate(cfg))
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/dozer.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Config file not found")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("DOZER_TARGET_ADDRESS", "10.0.0.5")
	t.Setenv("DOZER_PROXY_REQUEST_TIMEOUT", "45s")
	t.Setenv("DOZER_AUTO_SLEEP_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Target.Address)
	assert.Equal(t, 45*time.Second, cfg.Proxy.RequestTimeout)
	assert.True(t, cfg.AutoSleep.Enabled)
}

func TestLoad_LegacyEnv(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("TARGET_SERVER_IP", "192.168.1.50")
	t.Setenv("TARGET_SERVER_MAC", "00:11:22:33:44:55")
	t.Setenv("TARGET_SERVER_HTTP_PORT", "8080")
	t.Setenv("TARGET_HEALTH_CHECK_TIMEOUT", "2500")
	t.Setenv("AUTO_SLEEP_ENABLED", "true")
	t.Setenv("AUTO_SLEEP_MINUTES", "20")
	t.Setenv("AUTO_SLEEP_IDLE_MINUTES", "7")
	t.Setenv("PROXY_WAKE_TIMEOUT", "90")
	t.Setenv("SERVICE_READINESS_BUFFER_MS", "250")
	t.Setenv("SSH_USERNAME", "sparkuser")
	t.Setenv("PORT", "4000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.50", cfg.Target.Address)
	assert.Equal(t, "00:11:22:33:44:55", cfg.Target.MAC)
	assert.Equal(t, 8080, cfg.Target.HTTPPort)
	assert.Equal(t, 2500*time.Millisecond, cfg.HealthCheck.Timeout)
	assert.True(t, cfg.AutoSleep.Enabled)
	assert.Equal(t, 20, cfg.AutoSleep.IdleMinutes)
	assert.Equal(t, 7, cfg.AutoSleep.GPUIdleMinutes)
	assert.Equal(t, 90*time.Second, cfg.Proxy.WakeTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Proxy.ReadinessBuffer)
	assert.Equal(t, "sparkuser", cfg.SSH.User)
	assert.Equal(t, ":4000", cfg.Listen)
}

func TestLoad_DozerEnvBeatsLegacy(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("TARGET_SERVER_IP", "192.168.1.50")
	t.Setenv("DOZER_TARGET_ADDRESS", "192.168.1.60")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.60", cfg.Target.Address)
}

func TestLoad_LegacyEnvBadNumber(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("PROXY_WAKE_TIMEOUT", "three minutes")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROXY_WAKE_TIMEOUT")
}

func TestFind(t *testing.T) {
	t.Run("explicit path exists", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("version: 1"), 0644))

		got, err := Find(path)
		require.NoError(t, err)
		assert.Equal(t, path, got)
	})

	t.Run("explicit path not found", func(t *testing.T) {
		_, err := Find("/nonexistent/config.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("current directory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("version: 1"), 0644))
		t.Chdir(dir)

		got, err := Find("")
		require.NoError(t, err)
		assert.Equal(t, ConfigFileName, filepath.Base(got))
	})

	t.Run("global config", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		t.Chdir(t.TempDir())

		global := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		require.NoError(t, os.MkdirAll(filepath.Dir(global), 0755))
		require.NoError(t, os.WriteFile(global, []byte("version: 1"), 0644))

		got, err := Find("")
		require.NoError(t, err)
		assert.Equal(t, global, got)
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		t.Chdir(t.TempDir())

		got, err := Find("")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestWriteAndReload(t *testing.T) {
	clearLegacyEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "dozer.yaml")
	cfg := DefaultConfig()
	cfg.Target.Address = "192.168.1.100"
	cfg.Target.MAC = "00:11:22:33:44:55"
	cfg.AutoSleep.Enabled = true
	cfg.Proxy.WakeTimeout = 4 * time.Minute

	require.NoError(t, Write(path, cfg, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# dozer configuration")
	assert.Contains(t, string(data), "wake_timeout: 4m0s")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Target, loaded.Target)
	assert.Equal(t, cfg.AutoSleep, loaded.AutoSleep)
	assert.Equal(t, cfg.Proxy, loaded.Proxy)
	assert.Equal(t, cfg.Suspend, loaded.Suspend)

	err = Write(path, cfg, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	require.NoError(t, Write(path, cfg, true))
}
