package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/dozer/internal/config"
	"github.com/rileyhilliard/dozer/internal/errors"
)

func TestInit_NonInteractive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dozer.yaml")
	var out bytes.Buffer

	err := Init(InitOptions{
		Path:           path,
		Address:        "192.168.1.50",
		MAC:            "AA-BB-CC-DD-EE-FF",
		User:           "ollama",
		NonInteractive: true,
		SkipProbe:      true,
		Out:            &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Created "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50", cfg.Target.Address)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", cfg.Target.MAC, "MAC is normalized")
	assert.Equal(t, "ollama", cfg.SSH.User)
	assert.Equal(t, config.DefaultConfig().Proxy, cfg.Proxy)
}

func TestInit_NonInteractiveRequiresTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dozer.yaml")
	err := Init(InitOptions{Path: path, Address: "192.168.1.50", NonInteractive: true, SkipProbe: true, Out: &bytes.Buffer{}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.NoFileExists(t, path)
}

func TestInit_RejectsBadMAC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dozer.yaml")
	err := Init(InitOptions{
		Path: path, Address: "192.168.1.50", MAC: "not-a-mac",
		NonInteractive: true, SkipProbe: true, Out: &bytes.Buffer{},
	})
	require.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestInit_ExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dozer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("# mine\n"), 0o644))

	opts := InitOptions{
		Path: path, Address: "192.168.1.50", MAC: "aa:bb:cc:dd:ee:ff",
		NonInteractive: true, SkipProbe: true, Out: &bytes.Buffer{},
	}
	err := Init(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	data, _ := os.ReadFile(path)
	assert.Equal(t, "# mine\n", string(data))

	opts.Overwrite = true
	require.NoError(t, Init(opts))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50", cfg.Target.Address)
}
