// Package gateway is the transparent proxy in front of the target. It wakes
// the target on demand, waits for the service to answer, then streams the
// request through.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/rileyhilliard/dozer/internal/clock"
	"github.com/rileyhilliard/dozer/internal/config"
	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/rileyhilliard/dozer/internal/host"
	"github.com/rileyhilliard/dozer/internal/logger"
	"github.com/rileyhilliard/dozer/internal/observability"
	"github.com/rileyhilliard/dozer/internal/power"
	"github.com/rileyhilliard/dozer/internal/readiness"
)

// RequestIDHeader carries a per-request ID to the target.
const RequestIDHeader = "X-Request-ID"

// LivenessTimeout bounds the ping used to decide whether to wake.
const LivenessTimeout = 3 * time.Second

// DefaultInternalPaths never reach the target.
var DefaultInternalPaths = []string{
	"/api/status",
	"/api/wake",
	"/api/sleep",
	"/api/config",
	"/api/config/autosleep",
	"/api/events",
	"/health",
	"/metrics",
}

// Prober checks and waits on service readiness. *readiness.Prober satisfies it.
type Prober interface {
	Check(ctx context.Context, hostname string, port int, policy readiness.Policy) readiness.Result
	Wait(ctx context.Context, hostname string, port int, policy readiness.Policy, maxWait time.Duration) readiness.WaitResult
}

// Waker sends the wake signal. *power.Controller satisfies it.
type Waker interface {
	Wake(ctx context.Context) power.Result
}

// ActivityRecorder is told about every proxied request.
type ActivityRecorder interface {
	RecordActivity()
}

// Options wires a Gateway.
type Options struct {
	Target      config.Target
	HealthCheck readiness.Policy
	Proxy       config.ProxyConfig

	// InternalPaths defaults to DefaultInternalPaths.
	InternalPaths []string

	Prober   Prober
	Waker    Waker
	Pinger   host.Pinger
	Activity ActivityRecorder

	// Transport defaults to a dedicated http.Transport.
	Transport http.RoundTripper

	Clock   clock.Clock
	Log     logger.Logger
	Metrics *observability.Metrics
}

// Gateway is an http.Handler.
type Gateway struct {
	opts     Options
	internal map[string]bool
	proxy    *httputil.ReverseProxy
	target   *url.URL
	clock    clock.Clock
	log      logger.Logger
	metrics  *observability.Metrics

	// wake coalesces concurrent cold starts into one wake and one wait.
	wake singleflight.Group
}

// New creates a Gateway.
func New(opts Options) *Gateway {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Log == nil {
		opts.Log = logger.Noop()
	}
	if opts.InternalPaths == nil {
		opts.InternalPaths = DefaultInternalPaths
	}
	if opts.Transport == nil {
		opts.Transport = &http.Transport{
			Proxy:               nil,
			DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     60 * time.Second,
		}
	}

	g := &Gateway{
		opts:     opts,
		internal: make(map[string]bool, len(opts.InternalPaths)),
		target: &url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(opts.Target.Address, strconv.Itoa(opts.Target.HTTPPort)),
		},
		clock:   opts.Clock,
		log:     opts.Log,
		metrics: opts.Metrics,
	}
	for _, p := range opts.InternalPaths {
		g.internal[p] = true
	}

	g.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(g.target)
			// Path, query, and headers are preserved; Host becomes the target.
			if pr.Out.Method == http.MethodGet || pr.Out.Method == http.MethodHead {
				pr.Out.Body = nil
				pr.Out.GetBody = nil
				pr.Out.ContentLength = 0
			}
		},
		ModifyResponse: func(*http.Response) error {
			g.count("forwarded")
			return nil
		},
		Transport:     opts.Transport,
		FlushInterval: -1,
		ErrorHandler:  g.handleProxyError,
	}
	return g
}

// IsInternal reports whether path belongs to the gateway itself.
func (g *Gateway) IsInternal(path string) bool {
	return g.internal[path]
}

// TargetAddress returns host:port of the proxied service.
func (g *Gateway) TargetAddress() string {
	return g.target.Host
}

// ServeHTTP wakes the target if needed and forwards the request.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.IsInternal(r.URL.Path) {
		http.NotFound(w, r)
		return
	}

	if g.opts.Activity != nil {
		g.opts.Activity.RecordActivity()
	}
	if r.Header.Get(RequestIDHeader) == "" {
		r.Header.Set(RequestIDHeader, uuid.NewString())
	}
	if g.metrics != nil {
		g.metrics.ProxyInflight.Inc()
		defer g.metrics.ProxyInflight.Dec()
	}

	g.log.Info("Proxy [%s] %s (%s)", r.Method, r.URL.RequestURI(), r.Header.Get(RequestIDHeader))

	start := g.clock.Now()
	cold, err := g.ensureReady(r.Context())
	if err != nil {
		g.fail(w, r, err)
		return
	}

	if cold && g.metrics != nil {
		g.metrics.ColdStart.Observe(g.clock.Now().Sub(start).Seconds())
	}

	// The settle buffer applies to every ready target, warm or just woken.
	// Zero disables it.
	if buf := g.opts.Proxy.ReadinessBuffer; buf > 0 {
		select {
		case <-r.Context().Done():
			g.count("aborted")
			return
		case <-g.clock.After(buf):
		}
		g.log.Debug("Applied %s readiness buffer", buf)
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.opts.Proxy.RequestTimeout)
	defer cancel()

	g.proxy.ServeHTTP(w, r.WithContext(ctx))
}

// ensureReady returns once the service answers. cold reports whether the
// request had to wait for it.
func (g *Gateway) ensureReady(ctx context.Context) (cold bool, err error) {
	t := g.opts.Target
	res := g.opts.Prober.Check(ctx, t.Address, t.HTTPPort, g.opts.HealthCheck)
	if res.Ready {
		g.log.Debug("Target service is immediately available (HTTP %d)", res.StatusCode)
		return false, nil
	}
	g.log.Info("Target service not ready (%s). Checking if server needs to be woken", res.Describe())

	ch := g.wake.DoChan("wake", func() (interface{}, error) {
		// Shared by every waiting request, so it must outlive any one of them.
		return nil, g.wakeAndWait(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case r := <-ch:
		if r.Shared {
			g.log.Debug("Joined an in-progress wake")
		}
		return true, r.Err
	}
}

func (g *Gateway) wakeAndWait(ctx context.Context) error {
	t := g.opts.Target

	woke := false
	online := false
	if g.opts.Pinger != nil {
		ping, err := g.opts.Pinger.Ping(ctx, t.Address, LivenessTimeout)
		online = err == nil && ping.Alive
	}

	if !online {
		g.log.Info("Server is offline. Sending Wake-on-LAN packet")
		wr := g.opts.Waker.Wake(ctx)
		if !wr.Success {
			return errors.New(errors.ErrWake, "Failed to wake server: "+wr.Message,
				"Check the target MAC and that Wake-on-LAN is enabled in firmware")
		}
		woke = true
		g.log.Info("Wake-on-LAN packet sent, waiting for server to boot")
	} else {
		g.log.Info("Server is online but service not ready. Waiting for service to start")
	}

	wait := g.opts.Prober.Wait(ctx, t.Address, t.HTTPPort, g.opts.HealthCheck, g.opts.Proxy.WakeTimeout)
	if wait.Ready {
		g.log.Info("Target service is now ready for requests")
		return nil
	}

	seconds := int(g.opts.Proxy.WakeTimeout.Seconds())
	if !woke && wait.Last.Refused() {
		return errors.WrapWithCode(wait.Last.Err, errors.ErrConnectionRefused,
			"Target server refused connection",
			fmt.Sprintf("The host is up but nothing is listening on port %d", t.HTTPPort))
	}
	return errors.New(errors.ErrReadinessTimeout,
		fmt.Sprintf("Service readiness timeout after %d seconds (last check: %s)", seconds, wait.Last.Describe()),
		fmt.Sprintf("Try the request again with a longer timeout. Current timeout: %ds", seconds))
}
