package sshutil

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Output is the result of a command that ran to completion.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns trimmed stdout, falling back to stderr.
func (o Output) Combined() string {
	if s := strings.TrimSpace(o.Stdout); s != "" {
		return s
	}
	return strings.TrimSpace(o.Stderr)
}

// Runner keeps one connection to a single host alive between calls so the
// monitor doesn't pay for a handshake every few seconds. A connection that
// fails a liveness check, or breaks mid-command, is dropped and redialed on
// the next call.
type Runner struct {
	mu     sync.Mutex
	opts   Options
	dial   DialFunc
	client SSHClient
}

// NewRunner creates a Runner for opts. A nil dial uses DefaultDial.
func NewRunner(opts Options, dial DialFunc) *Runner {
	if dial == nil {
		dial = DefaultDial
	}
	return &Runner{opts: opts, dial: dial}
}

// Run executes cmd with the given timeout. A non-zero exit is reported in
// Output with a nil error; err is set only when the command couldn't run
// or the connection dropped before it finished.
func (r *Runner) Run(ctx context.Context, cmd string, timeout time.Duration) (Output, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	client, err := r.get(ctx)
	if err != nil {
		return Output{ExitCode: -1}, err
	}

	stdout, stderr, code, err := client.Exec(ctx, cmd)
	out := Output{Stdout: string(stdout), Stderr: string(stderr), ExitCode: code}
	if err != nil {
		r.drop(client)
		return out, err
	}
	return out, nil
}

// Close closes the cached connection, if any.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		_ = r.client.Close()
		r.client = nil
	}
}

// Connected reports whether a connection is cached.
func (r *Runner) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client != nil
}

func (r *Runner) get(ctx context.Context) (SSHClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		if isAlive(r.client) {
			return r.client, nil
		}
		_ = r.client.Close()
		r.client = nil
	}

	client, err := r.dial(ctx, r.opts)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

// drop discards client if it is still the cached one.
func (r *Runner) drop(client SSHClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == client {
		_ = r.client.Close()
		r.client = nil
	}
}

// isAlive opens and closes a session as a connectivity test.
func isAlive(client SSHClient) bool {
	session, err := client.NewSession()
	if err != nil {
		return false
	}
	_ = session.Close()
	return true
}
