// Package readiness decides whether the proxied service on the target is
// answering well enough to receive traffic.
package readiness

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rileyhilliard/dozer/internal/clock"
	"github.com/rileyhilliard/dozer/internal/config"
	"github.com/rileyhilliard/dozer/internal/host"
	"github.com/rileyhilliard/dozer/internal/logger"
)

// Backoff bounds for WaitUntilReady.
const (
	InitialDelay = time.Second
	MaxDelay     = 5 * time.Second
	Growth       = 1.2
	MaxJitter    = 500 * time.Millisecond
)

// Policy is how readiness is judged. Immutable per deployment.
type Policy struct {
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	Timeout      time.Duration `json:"-"`
	SuccessCodes StatusRanges  `json:"-"`
}

// PolicyFromConfig builds a Policy from the health_check section.
func PolicyFromConfig(hc config.HealthCheckConfig) (Policy, error) {
	ranges, err := ParseStatusRanges(hc.SuccessCodes)
	if err != nil {
		return Policy{}, err
	}
	path := hc.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	method := strings.ToUpper(hc.Method)
	if method == "" {
		method = http.MethodHead
	}
	return Policy{Path: path, Method: method, Timeout: hc.Timeout, SuccessCodes: ranges}, nil
}

// Result is one readiness check. Err is set when no HTTP response arrived.
type Result struct {
	Ready      bool
	StatusCode int
	Err        error
}

// Refused reports whether the check failed because the port actively
// refused the connection.
func (r Result) Refused() bool {
	return r.Err != nil && host.IsRefused(r.Err)
}

// Describe summarizes the result for logs and error bodies.
func (r Result) Describe() string {
	switch {
	case r.Ready:
		return fmt.Sprintf("HTTP %d", r.StatusCode)
	case r.StatusCode != 0:
		return fmt.Sprintf("HTTP %d (not a success code)", r.StatusCode)
	case r.Err != nil:
		return r.Err.Error()
	default:
		return "no response"
	}
}

// WaitResult is the outcome of WaitUntilReady.
type WaitResult struct {
	Ready    bool
	Attempts int
	Elapsed  time.Duration
	Last     Result
}

// Prober runs readiness checks.
type Prober struct {
	client *http.Client
	clock  clock.Clock
	log    logger.Logger
	jitter func() time.Duration
}

// NewProber creates a Prober. Redirects are never followed and connections
// are not reused, so a suspended host never leaves a stale socket behind.
func NewProber(clk clock.Clock, log logger.Logger) *Prober {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Prober{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:             nil,
				DisableKeepAlives: true,
				DialContext:       (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		clock:  clk,
		log:    log,
		jitter: func() time.Duration { return time.Duration(rand.Int64N(int64(MaxJitter))) },
	}
}

// SetJitter replaces the random jitter source.
func (p *Prober) SetJitter(f func() time.Duration) {
	p.jitter = f
}

// URL returns the health check URL for host:port.
func URL(hostname string, port int, policy Policy) string {
	return "http://" + net.JoinHostPort(hostname, strconv.Itoa(port)) + policy.Path
}

// Check performs one request. It never panics and never returns an error;
// failures are reported in Result.
func (p *Prober) Check(ctx context.Context, hostname string, port int, policy Policy) Result {
	timeout := policy.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := URL(hostname, port, policy)
	req, err := http.NewRequestWithContext(ctx, policy.Method, url, nil)
	if err != nil {
		return Result{Err: err}
	}
	req.Header.Set("User-Agent", "dozer-readiness")

	p.log.Debug("Health check: %s %s (timeout: %s)", policy.Method, url, timeout)

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug("Health check failed: %v", err)
		return Result{Err: err}
	}
	resp.Body.Close()

	ready := policy.SuccessCodes.Contains(resp.StatusCode)
	p.log.Debug("Health check response: %d (healthy: %t)", resp.StatusCode, ready)
	return Result{Ready: ready, StatusCode: resp.StatusCode}
}

// WaitUntilReady checks repeatedly until ready or maxWait elapses.
func (p *Prober) WaitUntilReady(ctx context.Context, hostname string, port int, policy Policy, maxWait time.Duration) bool {
	return p.Wait(ctx, hostname, port, policy, maxWait).Ready
}

// Wait is WaitUntilReady with attempt details. The delay between checks
// starts at one second and grows by 1.2x plus up to 500ms of jitter, capped
// at five seconds. No sleep extends past maxWait.
func (p *Prober) Wait(ctx context.Context, hostname string, port int, policy Policy, maxWait time.Duration) WaitResult {
	start := p.clock.Now()
	delay := InitialDelay
	var res WaitResult

	for {
		elapsed := p.clock.Now().Sub(start)
		if elapsed >= maxWait || ctx.Err() != nil {
			break
		}

		res.Attempts++
		p.log.Debug("Service readiness check attempt %d (delay: %s)", res.Attempts, delay)
		res.Last = p.Check(ctx, hostname, port, policy)
		if res.Last.Ready {
			res.Ready = true
			res.Elapsed = p.clock.Now().Sub(start)
			p.log.Info("Service became ready after %s (%d attempts) - HTTP %d",
				res.Elapsed.Round(time.Second), res.Attempts, res.Last.StatusCode)
			return res
		}
		p.log.Debug("Service not ready: %s", res.Last.Describe())

		remaining := maxWait - p.clock.Now().Sub(start)
		if remaining <= 0 {
			break
		}
		sleep := delay
		if sleep > remaining {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
		case <-p.clock.After(sleep):
		}

		delay = NextDelay(delay, p.jitter())
	}

	res.Elapsed = p.clock.Now().Sub(start)
	p.log.Warn("Service readiness timeout after %s (%d attempts)", res.Elapsed.Round(time.Second), res.Attempts)
	return res
}

// NextDelay computes min(MaxDelay, prev*Growth + jitter).
func NextDelay(prev, jitter time.Duration) time.Duration {
	next := time.Duration(float64(prev)*Growth) + jitter
	if next > MaxDelay {
		return MaxDelay
	}
	return next
}
