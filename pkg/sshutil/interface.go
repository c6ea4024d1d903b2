package sshutil

import (
	"context"
	"io"
)

// SSHClient defines the interface for SSH command execution.
// Both the real Client and mock implementations satisfy this interface.
type SSHClient interface {
	// Exec runs a command and returns stdout, stderr, and exit code.
	// Exit code is -1 if the command couldn't be executed at all.
	// A non-zero exit code with nil error means the command ran but failed.
	Exec(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error)

	// Close closes the SSH connection.
	Close() error

	// GetHost returns the original host/alias used to connect.
	GetHost() string

	// GetAddress returns the resolved host:port address.
	GetAddress() string

	// NewSession creates a new SSH session for liveness checks.
	// The returned session should be closed after use.
	NewSession() (Session, error)
}

// Session represents an SSH session that can be closed.
// This is a minimal interface for the ssh.Session type.
type Session interface {
	io.Closer
}

// DialFunc opens a connection. Runner uses Dial by default; tests swap in a
// function returning a mock client.
type DialFunc func(ctx context.Context, opts Options) (SSHClient, error)

// DefaultDial adapts Dial to DialFunc.
func DefaultDial(ctx context.Context, opts Options) (SSHClient, error) {
	c, err := Dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}
