package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteVersion(t *testing.T) {
	b := BuildInfo{Version: "v1.4.0", Commit: "abc123", Date: "2026-01-02", Go: "go1.24.11", OS: "linux", Arch: "amd64"}

	var out bytes.Buffer
	require.NoError(t, writeVersion(&out, b, false, false))
	assert.Equal(t, "dozer v1.4.0 (abc123, built 2026-01-02)\ngo1.24.11 linux/amd64\n", out.String())

	out.Reset()
	require.NoError(t, writeVersion(&out, b, true, false))
	assert.Equal(t, "v1.4.0\n", out.String())

	out.Reset()
	require.NoError(t, writeVersion(&out, b, false, true))
	var env struct {
		Success bool      `json:"success"`
		Data    BuildInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Equal(t, b, env.Data)
}

func TestSetVersionInfo(t *testing.T) {
	saved := build
	t.Cleanup(func() { build = saved })

	SetVersionInfo("2.0.1", "deadbeef", "today")
	assert.Equal(t, "v2.0.1", GetVersion())
	assert.Equal(t, "deadbeef", currentBuild().Commit)

	SetVersionInfo("v2.0.2", "", "")
	assert.Equal(t, "v2.0.2", GetVersion())
}
