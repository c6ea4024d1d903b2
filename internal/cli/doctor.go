package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rileyhilliard/dozer/internal/config"
	"github.com/rileyhilliard/dozer/internal/doctor"
	"github.com/rileyhilliard/dozer/internal/readiness"
	"github.com/rileyhilliard/dozer/internal/ui"
	"github.com/rileyhilliard/dozer/pkg/sshutil"
)

var doctorFlags RemoteFlags

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose config, network, target, and gateway problems",
	Long: `Run diagnostics for everything dozer depends on: the config file, the
Wake-on-LAN setup, the SSH control channel and the tools it runs on the
target, the proxied service, and a running gateway.

Unreachable targets and gateways are warnings, since a sleeping target is
normal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		machineMode = doctorFlags.JSON
		return runDoctor(cmd.Context(), cmd.OutOrStdout(), doctorFlags, nil)
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	AddRemoteFlags(doctorCmd, &doctorFlags, true)
}

// DoctorOutput represents the JSON output for doctor command.
type DoctorOutput struct {
	Categories []CategoryOutput `json:"categories"`
	Summary    SummaryOutput    `json:"summary"`
}

// CategoryOutput represents a category of check results.
type CategoryOutput struct {
	Name    string               `json:"name"`
	Results []doctor.CheckResult `json:"results"`
}

// SummaryOutput summarizes the check results.
type SummaryOutput struct {
	Pass     int  `json:"pass"`
	Warn     int  `json:"warn"`
	Fail     int  `json:"fail"`
	AllClear bool `json:"all_clear"`
}

// runDoctor collects and runs every check that the available config allows.
// A nil dial uses the real SSH dialer.
func runDoctor(ctx context.Context, w io.Writer, flags RemoteFlags, dial sshutil.DialFunc) error {
	ctx = orBackground(ctx)

	gateway, err := flags.Client()
	if err != nil {
		return err
	}

	checks, address, cleanup := collectChecks(cfgFile, dial)
	defer cleanup()
	checks = append(checks, &doctor.GatewayCheck{Client: gateway, Address: address})

	results := doctor.RunAllParallel(ctx, checks)

	if flags.JSON {
		return outputDoctorJSON(w, checks, results)
	}
	outputDoctorText(w, checks, results)
	return nil
}

// collectChecks gathers the config checks, plus network and target checks
// when the config is usable. It also returns the configured target address.
func collectChecks(cfgPath string, dial sshutil.DialFunc) ([]doctor.Check, string, func()) {
	checks := doctor.NewConfigChecks(cfgPath)

	cfg, _, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return checks, "", func() {}
	}
	if config.Validate(cfg) != nil {
		// The schema check reports why.
		return checks, cfg.Target.Address, func() {}
	}

	checks = append(checks, &doctor.HealthPolicyCheck{HealthCheck: cfg.HealthCheck})
	checks = append(checks, doctor.NewNetworkChecks(cfg)...)

	runner := controlRunner(cfg, dial)
	checks = append(checks, doctor.NewTargetChecks(cfg, runner, readiness.NewProber(nil, nil))...)

	return checks, cfg.Target.Address, runner.Close
}

// outputDoctorJSON outputs results in JSON format.
func outputDoctorJSON(w io.Writer, checks []doctor.Check, results []doctor.CheckResult) error {
	grouped := doctor.GroupByCategory(checks)

	output := DoctorOutput{Categories: make([]CategoryOutput, 0, len(grouped))}
	for _, cat := range doctor.CategoryOrder {
		indices, ok := grouped[cat]
		if !ok {
			continue
		}
		co := CategoryOutput{Name: cat, Results: make([]doctor.CheckResult, 0, len(indices))}
		for _, idx := range indices {
			co.Results = append(co.Results, results[idx])
		}
		output.Categories = append(output.Categories, co)
	}

	counts := doctor.CountByStatus(results)
	output.Summary = SummaryOutput{
		Pass:     counts[doctor.StatusPass],
		Warn:     counts[doctor.StatusWarn],
		Fail:     counts[doctor.StatusFail],
		AllClear: !doctor.HasIssues(results),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// outputDoctorText outputs results in human-readable format.
func outputDoctorText(w io.Writer, checks []doctor.Check, results []doctor.CheckResult) {
	successStyle := lipgloss.NewStyle().Foreground(ui.ColorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(ui.ColorError)
	headerStyle := lipgloss.NewStyle().Bold(true)

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("dozer Diagnostic Report"))
	fmt.Fprintln(w)

	grouped := doctor.GroupByCategory(checks)
	for _, category := range doctor.CategoryOrder {
		indices, ok := grouped[category]
		if !ok || len(indices) == 0 {
			continue
		}

		fmt.Fprintln(w, headerStyle.Render(category))
		for _, idx := range indices {
			renderCheckResult(w, results[idx])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("━", 60))
	fmt.Fprintln(w)

	if !doctor.HasIssues(results) {
		fmt.Fprintf(w, "%s %s\n", successStyle.Render(ui.SymbolSuccess), doctor.Summary(results))
	} else {
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render(ui.SymbolFail), doctor.Summary(results))
	}
	fmt.Fprintln(w)
}

// renderCheckResult renders a single check result.
func renderCheckResult(w io.Writer, result doctor.CheckResult) {
	mutedStyle := lipgloss.NewStyle().Foreground(ui.ColorMuted)

	var symbol string
	var style lipgloss.Style
	switch result.Status {
	case doctor.StatusPass:
		symbol = ui.SymbolSuccess
		style = lipgloss.NewStyle().Foreground(ui.ColorSuccess)
	case doctor.StatusWarn:
		symbol = "!"
		style = lipgloss.NewStyle().Foreground(ui.ColorWarning)
	default:
		symbol = ui.SymbolFail
		style = lipgloss.NewStyle().Foreground(ui.ColorError)
	}

	fmt.Fprintf(w, "  %s %s\n", style.Render(symbol), result.Message)

	if result.Suggestion != "" && result.Status != doctor.StatusPass {
		for _, line := range strings.Split(result.Suggestion, "\n") {
			fmt.Fprintf(w, "    %s\n", mutedStyle.Render(line))
		}
	}
}
