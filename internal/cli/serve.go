package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/rileyhilliard/dozer/internal/api"
	"github.com/rileyhilliard/dozer/internal/clock"
	"github.com/rileyhilliard/dozer/internal/config"
	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/rileyhilliard/dozer/internal/gateway"
	"github.com/rileyhilliard/dozer/internal/host"
	"github.com/rileyhilliard/dozer/internal/logger"
	"github.com/rileyhilliard/dozer/internal/monitor"
	"github.com/rileyhilliard/dozer/internal/observability"
	"github.com/rileyhilliard/dozer/internal/perf"
	"github.com/rileyhilliard/dozer/internal/power"
	"github.com/rileyhilliard/dozer/internal/readiness"
	"github.com/rileyhilliard/dozer/pkg/sshutil"
)

// shutdownGrace bounds how long in-flight requests get after a signal.
const shutdownGrace = 10 * time.Second

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	Long: `Run the gateway: the status monitor, the control API under /api, and the
wake-on-demand proxy for every other path, all on one listener.

Stops cleanly on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address, overrides the config (e.g. :3000)")
}

// AppOptions overrides pieces of the wiring. Zero values mean production.
type AppOptions struct {
	Log     logger.Logger
	Clock   clock.Clock
	Dial    sshutil.DialFunc
	Pinger  host.Pinger
	Version string
}

// App is every long-lived component of a running gateway.
type App struct {
	Config  *config.Config
	Monitor *monitor.Monitor
	Power   *power.Controller
	Gateway *gateway.Gateway
	API     *api.Server
	Metrics *observability.Metrics

	runner *sshutil.Runner
	log    logger.Logger
}

// NewApp wires the components for cfg. Nothing runs until Serve.
func NewApp(cfg *config.Config, opts AppOptions) (*App, error) {
	if opts.Log == nil {
		opts.Log = logger.Noop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	policy, err := readiness.PolicyFromConfig(cfg.HealthCheck)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()
	hub := api.NewHub(logger.With(opts.Log, "events"), metrics)
	// Components log through the sink so watchers see the same lines.
	log := api.NewLogSink(opts.Log, hub)

	runner := controlRunner(cfg, opts.Dial)

	ctl := power.New(power.Options{
		Target:   cfg.Target,
		Suspend:  cfg.Suspend,
		Executor: runner,
		Clock:    opts.Clock,
		Log:      logger.With(log, "power"),
		Metrics:  metrics,
	})

	pinger := opts.Pinger
	if pinger == nil {
		pinger = host.NewPinger(cfg.Monitor.Liveness,
			[]int{cfg.Target.SSHPort, cfg.Target.HTTPPort}, logger.With(log, "liveness"))
	}
	prober := readiness.NewProber(opts.Clock, logger.With(log, "readiness"))

	var provider perf.Provider
	if cfg.Monitor.Metrics {
		provider = perf.NewSSHProvider(runner, cfg.SSH.CommandTimeout, logger.With(log, "perf"))
	}

	mon := monitor.New(monitor.Options{
		Target:         cfg.Target,
		HealthCheck:    policy,
		AutoSleep:      monitor.PolicyFromConfig(cfg.AutoSleep),
		Interval:       cfg.Monitor.Interval,
		PingTimeout:    cfg.Monitor.PingTimeout,
		ControlTimeout: cfg.SSH.CommandTimeout,
		Pinger:         pinger,
		Checker:        prober,
		Control:        runner,
		Perf:           provider,
		Power:          ctl,
		Clock:          opts.Clock,
		Log:            logger.With(log, "monitor"),
		Metrics:        metrics,
	})

	gw := gateway.New(gateway.Options{
		Target:      cfg.Target,
		HealthCheck: policy,
		Proxy:       cfg.Proxy,
		Prober:      prober,
		Waker:       ctl,
		Pinger:      pinger,
		Activity:    mon,
		Clock:       opts.Clock,
		Log:         logger.With(log, "proxy"),
		Metrics:     metrics,
	})

	srv := api.New(api.Options{
		Config:  cfg,
		Monitor: mon,
		Power:   ctl,
		Gateway: gw,
		Hub:     hub,
		Version: opts.Version,
		Clock:   opts.Clock,
		Log:     logger.With(log, "api"),
		Metrics: metrics,
	})

	return &App{
		Config:  cfg,
		Monitor: mon,
		Power:   ctl,
		Gateway: gw,
		API:     srv,
		Metrics: metrics,
		runner:  runner,
		log:     log,
	}, nil
}

// Handler is the single handler serving the API and the proxy.
func (a *App) Handler() http.Handler {
	return a.API.Handler()
}

// Serve runs the monitor and serves ln until ctx is done, then drains.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: proxied responses stream for as long as the
		// target keeps producing them, bounded by proxy.request_timeout.
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Monitor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.log.Info("Listening on %s, proxying to %s:%d", ln.Addr(), a.Config.Target.Address, a.Config.Target.HTTPPort)
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return errors.WrapWithCode(err, errors.ErrConfig, "Gateway listener failed", "")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("Shutting down")
		// Event listeners are hijacked connections Shutdown doesn't track.
		a.API.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("Forced shutdown with requests still in flight: %v", err)
			_ = srv.Close()
		}
		return nil
	})

	err := g.Wait()
	a.runner.Close()
	sshutil.CloseAgent()
	return err
}

func runServe(ctx context.Context) error {
	cfg, path, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	base := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if logger.ParseLevel(cfg.Log.Level) != slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger.SetDefault(base)
	tuneRuntime(base)

	if path == "" {
		base.Info("No config file found; using defaults and DOZER_* environment")
	} else {
		base.Info("Loaded config from %s", path)
	}

	app, err := NewApp(cfg, AppOptions{Log: base, Version: GetVersion()})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't listen on %s", cfg.Listen),
			"Is another gateway already running? Pick a different address with --listen")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Serve(ctx, ln)
}

// tuneRuntime sizes GOMAXPROCS and GOMEMLIMIT to the container's cgroup
// quotas. Outside a container both are left alone.
func tuneRuntime(log logger.Logger) {
	if _, err := maxprocs.Set(maxprocs.Logger(log.Debug)); err != nil {
		log.Debug("GOMAXPROCS unchanged: %v", err)
	}
	if limit, err := memlimit.SetGoMemLimitWithOpts(); err != nil {
		log.Debug("GOMEMLIMIT unchanged: %v", err)
	} else if limit > 0 {
		log.Debug("GOMEMLIMIT set to %d bytes", limit)
	}
}

// controlRunner opens the SSH control channel described by cfg.
func controlRunner(cfg *config.Config, dial sshutil.DialFunc) *sshutil.Runner {
	return sshutil.NewRunner(sshutil.Options{
		Host:                  cfg.Target.Address,
		Port:                  cfg.Target.SSHPort,
		User:                  cfg.SSH.User,
		IdentityFile:          config.ExpandPath(cfg.SSH.IdentityFile),
		StrictHostKeyChecking: cfg.SSH.StrictHostKeyChecking,
		Timeout:               cfg.SSH.ConnectTimeout,
	}, dial)
}
