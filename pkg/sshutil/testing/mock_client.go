// Package testing provides an in-memory SSH client for exercising code that
// drives a remote host without a real connection.
package testing

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/rileyhilliard/dozer/pkg/sshutil"
)

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error
}

type cannedResponse struct {
	pattern string
	re      *regexp.Regexp
	resp    CommandResponse
}

// MockClient simulates an SSH connection for testing.
// Commands are matched against registered responses in registration order
// (exact match first, then regex); `cat <path>` reads from the mock file table
// and `echo` returns its argument.
type MockClient struct {
	mu       sync.Mutex
	host     string
	address  string
	files    map[string]string
	closed   bool
	commands []cannedResponse
	history  []string
	dialErr  error
}

// NewMockClient creates a new mock SSH client with no files.
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:    host,
		address: host + ":22",
		files:   make(map[string]string),
	}
}

// Exec runs a command against the canned responses and file table.
func (m *MockClient) Exec(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, -1, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, cmd)

	if m.closed {
		return nil, nil, -1, errors.New("connection closed")
	}

	for _, c := range m.commands {
		if c.pattern == cmd {
			return c.resp.Stdout, c.resp.Stderr, c.resp.ExitCode, c.resp.Error
		}
	}
	for _, c := range m.commands {
		if c.re != nil && c.re.MatchString(cmd) {
			return c.resp.Stdout, c.resp.Stderr, c.resp.ExitCode, c.resp.Error
		}
	}

	return m.parseAndExecute(cmd)
}

// Close marks the connection as closed.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockClient) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GetHost returns the host name.
func (m *MockClient) GetHost() string {
	return m.host
}

// GetAddress returns the host:port address.
func (m *MockClient) GetAddress() string {
	return m.address
}

// SetCommandResponse registers a canned response for a command pattern.
// The pattern can be an exact string or a regex pattern.
func (m *MockClient) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := cannedResponse{pattern: pattern, resp: resp}
	if re, err := regexp.Compile(pattern); err == nil {
		c.re = re
	}
	m.commands = append(m.commands, c)
}

// SetFile makes `cat path` return content.
func (m *MockClient) SetFile(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
}

// Commands returns every command passed to Exec, in order.
func (m *MockClient) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.history))
	copy(out, m.history)
	return out
}

// Ran reports whether any executed command contains substr.
func (m *MockClient) Ran(substr string) bool {
	for _, c := range m.Commands() {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

// mockSession is a minimal session that just closes.
type mockSession struct{}

func (s *mockSession) Close() error { return nil }

// NewSession creates a mock session for liveness checks.
func (m *MockClient) NewSession() (sshutil.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("connection closed")
	}
	return &mockSession{}, nil
}

// parseAndExecute handles the few shell commands dozer issues without a
// canned response.
func (m *MockClient) parseAndExecute(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	cmd = strings.TrimSuffix(cmd, " 2>/dev/null")
	cmd = strings.TrimSpace(cmd)

	switch {
	case strings.HasPrefix(cmd, "echo "):
		return []byte(strings.Trim(strings.TrimPrefix(cmd, "echo "), `"'`) + "\n"), nil, 0, nil
	case strings.HasPrefix(cmd, "cat "):
		path := extractPath(strings.TrimPrefix(cmd, "cat "))
		content, ok := m.files[path]
		if !ok {
			return nil, []byte("cat: " + path + ": No such file or directory"), 1, nil
		}
		return []byte(content), nil, 0, nil
	case strings.HasPrefix(cmd, "uname"):
		return []byte("Linux\n"), nil, 0, nil
	}

	// Unknown command - return success by default
	return nil, nil, 0, nil
}

// extractPath extracts a path from a command argument.
// Handles both quoted and unquoted paths.
func extractPath(arg string) string {
	arg = strings.TrimSpace(arg)

	if strings.HasPrefix(arg, "\"") || strings.HasPrefix(arg, "'") {
		quote := arg[:1]
		if end := strings.Index(arg[1:], quote); end != -1 {
			return arg[1 : end+1]
		}
	}

	parts := strings.Fields(arg)
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}

// Dialer returns an sshutil.DialFunc that hands out client, or fails with
// the error set by FailDial. Each call is counted.
func (m *MockClient) Dialer(count *int) sshutil.DialFunc {
	return func(ctx context.Context, opts sshutil.Options) (sshutil.SSHClient, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if count != nil {
			*count++
		}
		if m.dialErr != nil {
			return nil, m.dialErr
		}
		m.closed = false
		return m, nil
	}
}

// FailDial makes the Dialer return err. Pass nil to restore.
func (m *MockClient) FailDial(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialErr = err
}
