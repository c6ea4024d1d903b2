package cli

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/rileyhilliard/dozer/internal/ui"
)

// Global flags
var (
	cfgFile     string
	noColor     bool
	machineMode bool
)

var rootCmd = &cobra.Command{
	Use:   "dozer",
	Short: "Wake-on-demand proxy for a GPU server that likes to sleep",
	Long: `dozer sits in front of a service on a machine that is usually asleep.

Requests to the gateway wake the machine with Wake-on-LAN, wait for the
service to answer, and stream through. When nothing has used the machine
for a while, dozer suspends it over SSH.

Examples:
  dozer init
  dozer serve
  dozer status
  dozer wake --wait`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stdout.Fd())) {
			ui.DisableColors()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./dozer.yaml, then ~/.config/dozer/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if machineMode {
			_ = WriteJSONFromError(os.Stdout, err)
		} else {
			fmt.Fprintln(os.Stderr, renderError(err))
		}
		os.Exit(1)
	}
}

// renderError prints structured errors in their multi-line form and
// everything else on one line.
func renderError(err error) string {
	var dzErr *errors.Error
	if stderrors.As(err, &dzErr) {
		return dzErr.Error()
	}
	return ui.SymbolFail + " " + err.Error()
}
