package config

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// ExpandPath resolves a leading ~ (current user only, not ~name) and the
// ${HOME} and ${USER} variables in a local path such as ssh.identity_file.
// Other $ sequences are left alone so key paths containing them survive.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	path = strings.NewReplacer("${HOME}", homeDir(), "${USER}", CurrentUser()).Replace(path)

	switch {
	case path == "~":
		return homeDir()
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// CurrentUser returns the local username, used as the SSH login when neither
// the config nor ~/.ssh/config names one.
func CurrentUser() string {
	for _, key := range []string{"USER", "LOGNAME", "USERNAME"} {
		if name := os.Getenv(key); name != "" {
			return name
		}
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "root"
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "~"
}
