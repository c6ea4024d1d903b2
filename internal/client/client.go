// Package client talks to a running dozer gateway's control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rileyhilliard/dozer/internal/api"
	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/rileyhilliard/dozer/internal/monitor"
	"github.com/rileyhilliard/dozer/internal/power"
)

// DefaultServer is where `dozer serve` listens by default.
const DefaultServer = "http://localhost:3000"

// Client is a control API client. Power calls can take a while (suspend
// waits on the remote command), so the timeout covers the slowest of them.
type Client struct {
	base       *url.URL
	httpClient *http.Client
}

// New creates a client for the gateway at server.
func New(server string, timeout time.Duration) (*Client, error) {
	if server == "" {
		server = DefaultServer
	}
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("'%s' isn't a valid server URL", server),
			"Use something like http://localhost:3000")
	}
	return &Client{
		base: u,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}, nil
}

// Server returns the base URL.
func (c *Client) Server() string {
	return c.base.String()
}

// Status fetches the latest server status.
func (c *Client) Status(ctx context.Context) (monitor.Status, error) {
	var st monitor.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

// Config fetches the gateway's configuration view.
func (c *Client) Config(ctx context.Context) (api.ConfigView, error) {
	var cv api.ConfigView
	err := c.do(ctx, http.MethodGet, "/api/config", nil, &cv)
	return cv, err
}

// Health fetches gateway process health.
func (c *Client) Health(ctx context.Context) (api.HealthView, error) {
	var hv api.HealthView
	err := c.do(ctx, http.MethodGet, "/health", nil, &hv)
	return hv, err
}

// Wake asks the gateway to send Wake-on-LAN.
func (c *Client) Wake(ctx context.Context) (power.Result, error) {
	var res power.Result
	err := c.do(ctx, http.MethodPost, "/api/wake", nil, &res)
	return res, err
}

// Sleep asks the gateway to suspend the target.
func (c *Client) Sleep(ctx context.Context) (power.Result, error) {
	var res power.Result
	err := c.do(ctx, http.MethodPost, "/api/sleep", nil, &res)
	return res, err
}

// UpdateAutoSleep changes the auto-sleep policy and returns the new one.
func (c *Client) UpdateAutoSleep(ctx context.Context, req api.AutoSleepRequest) (monitor.AutoSleepPolicy, error) {
	var out struct {
		Config monitor.AutoSleepPolicy `json:"config"`
	}
	err := c.do(ctx, http.MethodPost, "/api/config/autosleep", req, &out)
	return out.Config, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrAPI, "Failed to encode request", "")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrAPI, "Failed to build request", "")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrAPI,
			fmt.Sprintf("Can't reach dozer at %s", c.base),
			"Is 'dozer serve' running? Point --server at it if it listens elsewhere")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrAPI, "Failed to read response", "")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.WrapWithCode(err, errors.ErrAPI,
			fmt.Sprintf("Unexpected response from %s", path),
			"Check that --server points at a dozer gateway")
	}
	return nil
}

func responseError(status int, data []byte) error {
	var apiErr api.APIError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		return errors.New(errors.ErrAPI,
			fmt.Sprintf("%s (HTTP %d)", apiErr.Error, status),
			apiErr.Details)
	}
	return errors.New(errors.ErrAPI,
		fmt.Sprintf("Gateway answered HTTP %d", status),
		strings.TrimSpace(string(data)))
}
