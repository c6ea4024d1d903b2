package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/dozer/internal/client"
	"github.com/rileyhilliard/dozer/internal/errors"
)

// RemoteFlags are shared by commands that talk to a running gateway.
type RemoteFlags struct {
	Server  string
	Timeout string
	JSON    bool
}

// AddRemoteFlags registers --server, --timeout, and optionally --json.
func AddRemoteFlags(cmd *cobra.Command, flags *RemoteFlags, withJSON bool) {
	cmd.Flags().StringVar(&flags.Server, "server", envOr("DOZER_SERVER", client.DefaultServer), "gateway URL (env DOZER_SERVER)")
	cmd.Flags().StringVar(&flags.Timeout, "timeout", "30s", "request timeout (e.g., 10s, 2m)")
	if withJSON {
		cmd.Flags().BoolVar(&flags.JSON, "json", false, "print machine-readable JSON")
	}
}

// Client builds an API client from the flags.
func (f RemoteFlags) Client() (*client.Client, error) {
	timeout, err := ParseDuration("--timeout", f.Timeout)
	if err != nil {
		return nil, err
	}
	return client.New(f.Server, timeout)
}

// ParseDuration parses a duration flag. Empty means zero.
func ParseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("'%s' doesn't look like a valid %s", value, name),
			"Try something like 5s, 2m, or 500ms.")
	}
	return d, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
