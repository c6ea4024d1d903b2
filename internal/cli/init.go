package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rileyhilliard/dozer/internal/config"
	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/rileyhilliard/dozer/internal/host"
	"github.com/rileyhilliard/dozer/internal/power"
	"github.com/rileyhilliard/dozer/internal/ui"
	"github.com/rileyhilliard/dozer/pkg/sshutil"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Path           string // Where to write; defaults to ./dozer.yaml
	Address        string // Target IP or hostname
	MAC            string // Target MAC address
	User           string // SSH user
	Overwrite      bool   // Overwrite existing config without asking
	NonInteractive bool   // Skip prompts
	SkipProbe      bool   // Don't test the SSH port before saving

	Out io.Writer
}

var initOpts InitOptions

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a dozer config file",
	Long: `Create a dozer.yaml describing the machine to wake and put to sleep.

Interactive by default. Hosts from ~/.ssh/config are offered as a starting
point. Use --non-interactive with --address and --mac for scripts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		initOpts.Out = cmd.OutOrStdout()
		if initOpts.Path == "" {
			initOpts.Path = cfgFile
		}
		return Init(initOpts)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initOpts.Address, "address", "", "target IP address or hostname")
	initCmd.Flags().StringVar(&initOpts.MAC, "mac", "", "target MAC address for Wake-on-LAN")
	initCmd.Flags().StringVar(&initOpts.User, "user", "", "SSH user on the target")
	initCmd.Flags().BoolVarP(&initOpts.Overwrite, "force", "f", false, "overwrite an existing config")
	initCmd.Flags().BoolVar(&initOpts.NonInteractive, "non-interactive", false, "don't prompt; requires --address and --mac")
	initCmd.Flags().BoolVar(&initOpts.SkipProbe, "skip-probe", false, "don't check the target's SSH port")
}

// Init writes a new config file.
func Init(opts InitOptions) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	path := opts.Path
	if path == "" {
		path = filepath.Join(".", config.ConfigFileName)
	}

	if _, err := os.Stat(path); err == nil && !opts.Overwrite {
		if opts.NonInteractive {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config file already exists: %s", path),
				"Use --force to overwrite")
		}
		var overwrite bool
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("'%s' already exists. Overwrite?", path)).
				Value(&overwrite),
		))
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	cfg.Target.Address = opts.Address
	cfg.Target.MAC = opts.MAC
	cfg.SSH.User = opts.User

	if !opts.NonInteractive && !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New(errors.ErrConfig,
			"dozer init needs a terminal to ask questions",
			"Pass --non-interactive with --address and --mac")
	}

	if opts.NonInteractive {
		if cfg.Target.Address == "" || cfg.Target.MAC == "" {
			return errors.New(errors.ErrConfig,
				"--address and --mac are required in non-interactive mode",
				"Provide both flags or run interactively")
		}
	} else if err := promptTarget(cfg); err != nil {
		return err
	}

	if mac, err := power.ParseMAC(cfg.Target.MAC); err == nil {
		cfg.Target.MAC = mac.String()
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if !opts.SkipProbe {
		checkSSHPort(out, cfg.Target)
	}

	if err := config.Write(path, cfg, true); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Created %s\n\n", ui.SymbolSuccess, path)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  dozer serve   - start the gateway")
	fmt.Fprintln(out, "  dozer status  - check on the target")
	return nil
}

// promptTarget fills the target section interactively.
func promptTarget(cfg *config.Config) error {
	hosts, _ := sshutil.ParseSSHConfig()
	if cfg.Target.Address == "" && len(hosts) > 0 {
		var alias string
		options := []huh.Option[string]{huh.NewOption("Enter manually", "")}
		for _, h := range hosts {
			label := h.Alias + " (" + h.Description() + ")"
			if !h.HasIPAddress() {
				// Broadcast derivation needs an IPv4 literal.
				label += " [hostname: set target.broadcast]"
			}
			options = append(options, huh.NewOption(label, h.Alias))
		}
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("Start from an SSH host?").
				Options(options...).
				Value(&alias),
		))
		if err := form.Run(); err != nil {
			return inputError(err)
		}
		for _, h := range hosts {
			if h.Alias == alias {
				cfg.Target.Address = h.Address()
				cfg.Target.SSHPort = h.PortNumber()
				if cfg.SSH.User == "" {
					cfg.SSH.User = h.User
				}
				cfg.SSH.IdentityFile = h.IdentityFile
			}
		}
	}

	sshPort := strconv.Itoa(cfg.Target.SSHPort)
	httpPort := strconv.Itoa(cfg.Target.HTTPPort)
	idle := strconv.Itoa(cfg.AutoSleep.IdleMinutes)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target address").
				Description("IPv4 address of the machine to wake").
				Placeholder("192.168.1.50").
				Value(&cfg.Target.Address).
				Validate(required("address")),
			huh.NewInput().
				Title("MAC address").
				Description("The NIC that listens for Wake-on-LAN").
				Placeholder("aa:bb:cc:dd:ee:ff").
				Value(&cfg.Target.MAC).
				Validate(func(s string) error {
					_, err := power.ParseMAC(s)
					return err
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Service port").
				Description("Where the proxied service listens on the target").
				Value(&httpPort).
				Validate(portValidator),
			huh.NewInput().
				Title("SSH port").
				Value(&sshPort).
				Validate(portValidator),
			huh.NewInput().
				Title("SSH user").
				Placeholder(config.CurrentUser()).
				Value(&cfg.SSH.User),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable auto-sleep?").
				Value(&cfg.AutoSleep.Enabled),
			huh.NewInput().
				Title("Idle minutes before sleep").
				Value(&idle).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 1 || n > 120 {
						return fmt.Errorf("enter a number between 1 and 120")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Also sleep when the GPU is idle?").
				Value(&cfg.AutoSleep.MonitorGPU),
		),
	)
	if err := form.Run(); err != nil {
		return inputError(err)
	}

	cfg.Target.Address = strings.TrimSpace(cfg.Target.Address)
	cfg.Target.HTTPPort, _ = strconv.Atoi(httpPort)
	cfg.Target.SSHPort, _ = strconv.Atoi(sshPort)
	cfg.AutoSleep.IdleMinutes, _ = strconv.Atoi(idle)
	return nil
}

// checkSSHPort warns when the control channel port doesn't answer. A
// sleeping target is a normal reason for that, so it never blocks saving.
func checkSSHPort(out io.Writer, t config.Target) {
	addr := net.JoinHostPort(t.Address, strconv.Itoa(t.SSHPort))
	spinner := ui.NewSpinner(out, "Checking SSH on "+addr)
	spinner.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := host.ProbeTCP(ctx, addr, 5*time.Second); err != nil {
		spinner.Fail("SSH on " + addr + " didn't answer; saving anyway (the target may be asleep)")
		return
	}
	spinner.Success("SSH on " + addr + " is reachable")
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func portValidator(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("enter a port between 1 and 65535")
	}
	return nil
}

func inputError(err error) error {
	return errors.WrapWithCode(err, errors.ErrConfig,
		"Failed to get user input",
		"Check terminal compatibility or use --non-interactive")
}
