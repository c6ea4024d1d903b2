package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/dozer/internal/config"
)

const validConfig = `version: 1
target:
  address: 192.168.1.50
  mac: "aa:bb:cc:dd:ee:ff"
  http_port: 11434
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dozer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConfigFileCheck(t *testing.T) {
	t.Run("explicit path missing", func(t *testing.T) {
		check := &ConfigFileCheck{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")}
		result := check.Run(context.Background())
		assert.Equal(t, StatusFail, result.Status)
		assert.Contains(t, result.Message, "Specified config file not found")
	})

	t.Run("found", func(t *testing.T) {
		check := &ConfigFileCheck{ConfigPath: writeConfig(t, validConfig)}
		result := check.Run(context.Background())
		assert.Equal(t, StatusPass, result.Status, result.Message)
		assert.Equal(t, "Config file: dozer.yaml", result.Message)
	})

	t.Run("name and category", func(t *testing.T) {
		check := &ConfigFileCheck{}
		assert.Equal(t, "config_file", check.Name())
		assert.Equal(t, CategoryConfig, check.Category())
	})
}

func TestConfigSchemaCheck(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		result := (&ConfigSchemaCheck{ConfigPath: writeConfig(t, validConfig)}).Run(context.Background())
		assert.Equal(t, StatusPass, result.Status, result.Message)
		assert.Equal(t, "Schema valid (version 1)", result.Message)
	})

	t.Run("bad mac", func(t *testing.T) {
		path := writeConfig(t, `target:
  address: 192.168.1.50
  mac: "not-a-mac"
`)
		result := (&ConfigSchemaCheck{ConfigPath: path}).Run(context.Background())
		assert.Equal(t, StatusFail, result.Status)
		assert.Contains(t, result.Message, "isn't a valid MAC address")
	})

	t.Run("broken yaml", func(t *testing.T) {
		path := writeConfig(t, "target: [unclosed\n")
		result := (&ConfigSchemaCheck{ConfigPath: path}).Run(context.Background())
		assert.Equal(t, StatusFail, result.Status)
		assert.Contains(t, result.Message, "Failed to load config")
	})
}

func TestHealthPolicyCheck(t *testing.T) {
	hc := config.DefaultConfig().HealthCheck
	hc.Path = "api/tags"
	hc.SuccessCodes = "200-299,404"

	result := (&HealthPolicyCheck{HealthCheck: hc}).Run(context.Background())
	assert.Equal(t, StatusPass, result.Status, result.Message)
	assert.Contains(t, result.Message, "/api/tags expects 200-299,404")

	hc.SuccessCodes = "ok"
	result = (&HealthPolicyCheck{HealthCheck: hc}).Run(context.Background())
	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Suggestion, "success_codes")
}
