package sshutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSSHConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config")

	configContent := `
Host inference
    HostName 192.168.1.100
    User sparkuser
    Port 2222
    IdentityFile ~/.ssh/id_inference

Host gpu-box
    HostName gpu.example.com
    User ubuntu

Host *
    ServerAliveInterval 60

Host work-*
    User workuser
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0600))

	hosts, err := ParseSSHConfigFile(configPath)
	require.NoError(t, err)

	// Wildcards (*) and patterns (work-*) are excluded
	require.Len(t, hosts, 2)
	assert.Equal(t, "gpu-box", hosts[0].Alias)
	assert.Equal(t, "inference", hosts[1].Alias)

	inference := hosts[1]
	assert.Equal(t, "192.168.1.100", inference.Hostname)
	assert.Equal(t, "sparkuser", inference.User)
	assert.Equal(t, 2222, inference.PortNumber())
	assert.Contains(t, inference.IdentityFile, "id_inference")
	assert.True(t, inference.HasIPAddress())

	gpubox := hosts[0]
	assert.Equal(t, "gpu.example.com", gpubox.Address())
	assert.Equal(t, 22, gpubox.PortNumber())
	assert.False(t, gpubox.HasIPAddress())
}

func TestParseSSHConfigFileNotExists(t *testing.T) {
	hosts, err := ParseSSHConfigFile("/nonexistent/path/config")
	assert.NoError(t, err)
	assert.Nil(t, hosts)
}

func TestParseSSHConfigWithMatch(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config")
	configContent := `
Host before-match
    HostName before.example.com

Match host *.example.com
    User matchuser

Host after-match
    HostName after.example.com
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0600))

	hosts, err := ParseSSHConfigFile(configPath)
	require.NoError(t, err)

	require.Len(t, hosts, 1)
	assert.Equal(t, "before-match", hosts[0].Alias)
}

func TestSSHHostEntryDescription(t *testing.T) {
	tests := []struct {
		name  string
		entry SSHHostEntry
		want  string
	}{
		{
			name:  "alias only",
			entry: SSHHostEntry{Alias: "box"},
			want:  "box",
		},
		{
			name:  "hostname user and port",
			entry: SSHHostEntry{Alias: "box", Hostname: "10.0.0.2", User: "me", Port: "2200"},
			want:  "10.0.0.2, user: me, port: 2200",
		},
		{
			name:  "default port hidden",
			entry: SSHHostEntry{Alias: "box", Hostname: "10.0.0.2", Port: "22"},
			want:  "10.0.0.2",
		},
		{
			name:  "hostname same as alias hidden",
			entry: SSHHostEntry{Alias: "10.0.0.2", Hostname: "10.0.0.2", User: "me"},
			want:  "user: me",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.Description())
		})
	}
}

func TestParseSSHConfigFile_MultiplePatterns(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config")
	configContent := `
Host spark spark-lan
    HostName 192.168.1.50
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0600))

	hosts, err := ParseSSHConfigFile(configPath)
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Equal(t, "192.168.1.50", hosts[0].Hostname)
	assert.Equal(t, "192.168.1.50", hosts[1].Hostname)
}
