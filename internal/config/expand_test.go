package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	t.Setenv("USER", "sparkuser")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "bare tilde", input: "~", expected: home},
		{name: "tilde path", input: "~/.ssh/id_ed25519", expected: filepath.Join(home, ".ssh/id_ed25519")},
		{name: "home var", input: "${HOME}/.ssh/id", expected: home + "/.ssh/id"},
		{name: "user var", input: "/home/${USER}/.ssh/id", expected: "/home/sparkuser/.ssh/id"},
		{name: "absolute unchanged", input: "/etc/dozer/key", expected: "/etc/dozer/key"},
		{name: "other user unchanged", input: "~bob/key", expected: "~bob/key"},
		{name: "unknown var unchanged", input: "/keys/$KEY", expected: "/keys/$KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExpandPath(tt.input))
		})
	}
}

func TestCurrentUser(t *testing.T) {
	t.Setenv("USER", "alice")
	assert.Equal(t, "alice", CurrentUser())

	t.Setenv("USER", "")
	t.Setenv("LOGNAME", "bob")
	assert.Equal(t, "bob", CurrentUser())
}
