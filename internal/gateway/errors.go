package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/rileyhilliard/dozer/internal/host"
)

// ErrorBody is the JSON written for any request the gateway could not
// forward.
type ErrorBody struct {
	Error       string    `json:"error"`
	Details     string    `json:"details"`
	Target      string    `json:"target"`
	HealthCheck string    `json:"healthCheck"`
	Timestamp   time.Time `json:"timestamp"`
	Suggestion  string    `json:"suggestion,omitempty"`
}

// classify maps a failure onto a status code, a summary, a metric outcome,
// and (for timeouts) a suggestion.
func (g *Gateway) classify(err error) (status int, summary, outcome, suggestion string) {
	var dzErr *errors.Error
	if stderrors.As(err, &dzErr) {
		suggestion = dzErr.Suggestion
	}

	switch errors.CodeOf(err) {
	case errors.ErrConnectionRefused:
		return http.StatusBadGateway, "Target server refused connection", "refused", ""
	case errors.ErrReadinessTimeout:
		return http.StatusGatewayTimeout, "Server failed to become ready in time", "readiness_timeout", suggestion
	case errors.ErrRequestTimeout:
		return http.StatusGatewayTimeout,
			fmt.Sprintf("Request timed out after %d seconds - this may be normal for long LLM responses", int(g.opts.Proxy.RequestTimeout.Seconds())),
			"request_timeout", suggestion
	case errors.ErrWake:
		return http.StatusInternalServerError, "Failed to wake server", "wake_failed", ""
	}
	if host.IsRefused(err) {
		return http.StatusBadGateway, "Target server refused connection", "refused", ""
	}
	return http.StatusInternalServerError, "Failed to process request through proxy", "error", ""
}

// fail reports err to the client. Nothing has been written yet.
func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		g.log.Debug("Client went away during [%s] %s", r.Method, r.URL.RequestURI())
		g.count("aborted")
		return
	}

	status, summary, outcome, suggestion := g.classify(err)
	g.count(outcome)
	g.log.Error("Proxy error for [%s] %s: %s", r.Method, r.URL.RequestURI(), errors.Flatten(err))

	body := ErrorBody{
		Error:       summary,
		Details:     errors.Flatten(err),
		Target:      g.target.Host,
		HealthCheck: g.opts.HealthCheck.Method + " " + g.opts.HealthCheck.Path,
		Timestamp:   g.clock.Now().UTC(),
		Suggestion:  suggestion,
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// handleProxyError runs when the round trip to the target fails before any
// response byte was written. Failures after that point abort the connection
// inside ReverseProxy.
func (g *Gateway) handleProxyError(w http.ResponseWriter, r *http.Request, err error) {
	if stderrors.Is(err, context.DeadlineExceeded) && stderrors.Is(r.Context().Err(), context.DeadlineExceeded) {
		seconds := int(g.opts.Proxy.RequestTimeout.Seconds())
		g.log.Warn("Request timeout after %ds, aborting", seconds)
		err = errors.WrapWithCode(err, errors.ErrRequestTimeout,
			fmt.Sprintf("Request timeout after %d seconds", seconds),
			fmt.Sprintf("Try the request again with a longer timeout. Current timeout: %ds", seconds))
		// The deadline belongs to the outbound request; report it anyway.
		g.failUncancelled(w, r, err)
		return
	}
	if host.IsRefused(err) {
		err = errors.WrapWithCode(err, errors.ErrConnectionRefused, "Target server refused connection", "")
	}
	g.fail(w, r, err)
}

// failUncancelled is fail for a request whose own context has expired.
func (g *Gateway) failUncancelled(w http.ResponseWriter, r *http.Request, err error) {
	g.fail(w, r.WithContext(context.WithoutCancel(r.Context())), err)
}

func (g *Gateway) count(outcome string) {
	if g.metrics != nil {
		g.metrics.ProxyRequests.WithLabelValues(outcome).Inc()
	}
}
