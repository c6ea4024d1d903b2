package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/dozer/internal/api"
	"github.com/rileyhilliard/dozer/internal/client"
	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/rileyhilliard/dozer/internal/power"
	"github.com/rileyhilliard/dozer/internal/ui"
)

var (
	statusFlags RemoteFlags

	wakeFlags   RemoteFlags
	wakeWait    bool
	wakeTimeout string

	sleepFlags RemoteFlags

	autoSleepFlags RemoteFlags
	autoSleepOpts  autoSleepOptions
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the target's current status",
	RunE: func(cmd *cobra.Command, args []string) error {
		machineMode = statusFlags.JSON
		return runStatus(cmd.Context(), cmd.OutOrStdout(), statusFlags)
	},
}

var wakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Wake the target",
	Long: `Send a Wake-on-LAN packet through the gateway.

A successful wake only means the packet went out. Use --wait to block until
the proxied service answers its health check.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		machineMode = wakeFlags.JSON
		wait, err := ParseDuration("--wait-timeout", wakeTimeout)
		if err != nil {
			return err
		}
		if !wakeWait {
			wait = 0
		}
		return runWake(cmd.Context(), cmd.OutOrStdout(), wakeFlags, wait)
	},
}

var sleepCmd = &cobra.Command{
	Use:   "sleep",
	Short: "Suspend the target now",
	RunE: func(cmd *cobra.Command, args []string) error {
		machineMode = sleepFlags.JSON
		return runSleep(cmd.Context(), cmd.OutOrStdout(), sleepFlags)
	},
}

var autoSleepCmd = &cobra.Command{
	Use:   "autosleep",
	Short: "Show or change the auto-sleep policy",
	Long: `Show the running gateway's auto-sleep policy, or change it with flags.

Changes apply immediately and last until the gateway restarts.

Examples:
  dozer autosleep
  dozer autosleep --enable --minutes 20
  dozer autosleep --gpu --gpu-threshold 10 --gpu-minutes 5
  dozer autosleep --disable`,
	RunE: func(cmd *cobra.Command, args []string) error {
		machineMode = autoSleepFlags.JSON
		return runAutoSleep(cmd.Context(), cmd.OutOrStdout(), autoSleepFlags, autoSleepOpts, cmd.Flags().Changed)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, wakeCmd, sleepCmd, autoSleepCmd)

	AddRemoteFlags(statusCmd, &statusFlags, true)

	AddRemoteFlags(wakeCmd, &wakeFlags, true)
	wakeCmd.Flags().BoolVarP(&wakeWait, "wait", "w", false, "wait until the service is healthy")
	wakeCmd.Flags().StringVar(&wakeTimeout, "wait-timeout", "3m", "how long --wait waits")

	AddRemoteFlags(sleepCmd, &sleepFlags, true)

	AddRemoteFlags(autoSleepCmd, &autoSleepFlags, true)
	f := autoSleepCmd.Flags()
	f.BoolVar(&autoSleepOpts.enable, "enable", false, "turn auto-sleep on")
	f.BoolVar(&autoSleepOpts.disable, "disable", false, "turn auto-sleep off")
	f.IntVar(&autoSleepOpts.minutes, "minutes", 0, "idle minutes without requests before sleeping (1-120)")
	f.BoolVar(&autoSleepOpts.gpu, "gpu", false, "also sleep when the GPU is idle")
	f.BoolVar(&autoSleepOpts.noGPU, "no-gpu", false, "stop watching the GPU")
	f.IntVar(&autoSleepOpts.gpuThreshold, "gpu-threshold", 0, "GPU utilization percent counted as idle (0-100)")
	f.IntVar(&autoSleepOpts.gpuMinutes, "gpu-minutes", 0, "minutes the GPU must stay idle (1-120)")
	autoSleepCmd.MarkFlagsMutuallyExclusive("enable", "disable")
	autoSleepCmd.MarkFlagsMutuallyExclusive("gpu", "no-gpu")
}

func runStatus(ctx context.Context, w io.Writer, flags RemoteFlags) error {
	c, err := flags.Client()
	if err != nil {
		return err
	}
	st, err := c.Status(orBackground(ctx))
	if err != nil {
		return err
	}
	if flags.JSON {
		return WriteJSONSuccess(w, st)
	}
	fmt.Fprintln(w, ui.RenderStatus(st, ui.StatusOptions{Boxed: true}))
	return nil
}

func runWake(ctx context.Context, w io.Writer, flags RemoteFlags, wait time.Duration) error {
	ctx = orBackground(ctx)
	c, err := flags.Client()
	if err != nil {
		return err
	}
	res, err := c.Wake(ctx)
	if err != nil {
		return err
	}
	if !res.Success {
		return powerFailure("Wake", res)
	}
	if wait <= 0 {
		return writePowerResult(w, flags.JSON, "Wake", res)
	}

	if !flags.JSON {
		fmt.Fprintln(w, ui.RenderPowerResult("Wake", res))
	}
	elapsed, err := waitHealthy(ctx, w, c, wait, !flags.JSON)
	if err != nil {
		return err
	}
	if flags.JSON {
		return WriteJSONSuccess(w, map[string]interface{}{
			"wake":      res,
			"healthy":   true,
			"elapsedMs": elapsed.Milliseconds(),
		})
	}
	return nil
}

// waitHealthy follows the event stream until a status reports the service
// healthy, or wait runs out.
func waitHealthy(ctx context.Context, w io.Writer, c *client.Client, wait time.Duration, draw bool) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var spinner *ui.Spinner
	if draw {
		spinner = ui.NewSpinner(w, "Waiting for the service")
		spinner.Start()
	}
	start := time.Now()
	fail := func(err error) (time.Duration, error) {
		if spinner != nil {
			spinner.Fail("Service not ready")
		}
		return time.Since(start), err
	}

	stream, err := c.Events(ctx)
	if err != nil {
		return fail(err)
	}
	defer stream.Close()

	for {
		ev, err := stream.Next()
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fail(errors.New(errors.ErrReadinessTimeout,
					fmt.Sprintf("Service didn't become healthy within %s", wait),
					"The target may still be booting. Check 'dozer status' or raise --wait-timeout"))
			}
			return fail(err)
		}
		if ev.Status == nil {
			continue
		}
		if spinner != nil {
			spinner.SetLabel(waitLabel(ev))
		}
		if ev.Status.Services.ServiceHealthy {
			elapsed := time.Since(start)
			if spinner != nil {
				spinner.Success("Service healthy after " + ui.FormatDuration(elapsed))
			}
			return elapsed, nil
		}
	}
}

func waitLabel(ev client.Event) string {
	s := ev.Status.Services
	switch {
	case !ev.Status.IsOnline:
		return "Waiting for the host to come up"
	case !s.ServicePortOpen:
		return "Host is up, waiting for the service port"
	default:
		return "Service port open, waiting for a healthy response"
	}
}

func runSleep(ctx context.Context, w io.Writer, flags RemoteFlags) error {
	c, err := flags.Client()
	if err != nil {
		return err
	}
	res, err := c.Sleep(orBackground(ctx))
	if err != nil {
		return err
	}
	if !res.Success {
		return powerFailure("Sleep", res)
	}
	return writePowerResult(w, flags.JSON, "Sleep", res)
}

type autoSleepOptions struct {
	enable, disable bool
	minutes         int
	gpu, noGPU      bool
	gpuThreshold    int
	gpuMinutes      int
}

// runAutoSleep shows the policy, or updates it when any policy flag was set.
func runAutoSleep(ctx context.Context, w io.Writer, flags RemoteFlags, opts autoSleepOptions, changed func(string) bool) error {
	ctx = orBackground(ctx)
	c, err := flags.Client()
	if err != nil {
		return err
	}
	cfg, err := c.Config(ctx)
	if err != nil {
		return err
	}

	if !changed("enable") && !changed("disable") && !changed("minutes") &&
		!changed("gpu") && !changed("no-gpu") && !changed("gpu-threshold") && !changed("gpu-minutes") {
		if flags.JSON {
			return WriteJSONSuccess(w, cfg.AutoSleep)
		}
		fmt.Fprintln(w, ui.RenderAutoSleepPolicy(cfg.AutoSleep))
		return nil
	}

	// The API replaces enabled, minutes, and monitorGpu together, so start
	// from what the gateway has now.
	enabled := cfg.AutoSleep.Enabled
	minutes := cfg.AutoSleep.IdleMinutes
	gpu := cfg.AutoSleep.MonitorGPU
	switch {
	case opts.enable:
		enabled = true
	case opts.disable:
		enabled = false
	}
	if changed("minutes") {
		minutes = opts.minutes
	}
	switch {
	case opts.gpu:
		gpu = true
	case opts.noGPU:
		gpu = false
	}
	req := api.AutoSleepRequest{Enabled: &enabled, Minutes: &minutes, MonitorGPU: &gpu}
	if changed("gpu-threshold") {
		req.GPUThreshold = &opts.gpuThreshold
	}
	if changed("gpu-minutes") {
		req.GPUIdleMinutes = &opts.gpuMinutes
	}

	policy, err := c.UpdateAutoSleep(ctx, req)
	if err != nil {
		return err
	}
	if flags.JSON {
		return WriteJSONSuccess(w, policy)
	}
	fmt.Fprintf(w, "%s Auto-sleep updated\n", ui.SymbolSuccess)
	fmt.Fprintln(w, ui.RenderAutoSleepPolicy(policy))
	return nil
}

func writePowerResult(w io.Writer, asJSON bool, action string, res power.Result) error {
	if asJSON {
		return WriteJSONSuccess(w, res)
	}
	fmt.Fprintln(w, ui.RenderPowerResult(action, res))
	return nil
}

func powerFailure(action string, res power.Result) error {
	suggestion := "Check 'dozer serve' logs for details"
	if action == "Wake" {
		suggestion = "Check the MAC address and that Wake-on-LAN is enabled on the target's NIC"
	}
	return errors.New(errors.ErrAPI, action+" failed: "+res.Message, suggestion)
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
