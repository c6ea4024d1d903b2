package cli

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rileyhilliard/dozer/internal/dashboard"
	"github.com/rileyhilliard/dozer/internal/errors"
)

var watchFlags RemoteFlags

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard for the target",
	Long: `Follow the gateway's event stream: status, performance sparklines, and
the gateway log as it happens. Press w to wake, s to sleep, q to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(watchFlags)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	AddRemoteFlags(watchCmd, &watchFlags, false)
}

func runWatch(flags RemoteFlags) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New(errors.ErrConfig,
			"dozer watch needs a terminal",
			"Use 'dozer status --json' from scripts")
	}
	c, err := flags.Client()
	if err != nil {
		return err
	}

	model := dashboard.New(dashboard.Options{
		Server: c.Server(),
		Dial: func(ctx context.Context) (dashboard.Stream, error) {
			s, err := c.Events(ctx)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		Control: c,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if m, ok := final.(dashboard.Model); ok {
		m.Close()
	}
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Dashboard exited unexpectedly",
			"Try 'dozer status' if your terminal doesn't support full-screen apps")
	}
	return nil
}
