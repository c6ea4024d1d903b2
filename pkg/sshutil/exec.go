package sshutil

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rileyhilliard/dozer/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Exec runs a command on the remote host and returns the output.
// Returns stdout, stderr, exit code, and any error.
// Exit code is -1 if the command couldn't be executed at all, or if the
// connection went away before an exit status arrived. In that case the
// returned error wraps the transport error (io.EOF, *ssh.ExitMissingError...)
// so callers can classify it.
//
// Cancelling ctx closes the session; the command may keep running remotely.
func (c *Client) Exec(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	session, err := c.Client.NewSession()
	if err != nil {
		return nil, nil, -1, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to create SSH session",
			"Connection may have been closed. Try reconnecting.")
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	stop := context.AfterFunc(ctx, func() { session.Close() })
	defer stop()

	err = session.Run(cmd)
	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), exitErr.ExitStatus(), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), -1, errors.WrapWithCode(ctxErr, errors.ErrExec,
				fmt.Sprintf("Command timed out: %s", cmd),
				"The host may be overloaded or the connection stalled.")
		}
		return stdoutBuf.Bytes(), stderrBuf.Bytes(), -1, errors.WrapWithCode(err, errors.ErrExec,
			fmt.Sprintf("Failed to execute command: %s", cmd),
			"Check if the command exists on the remote host.")
	}

	return stdoutBuf.Bytes(), stderrBuf.Bytes(), 0, nil
}
