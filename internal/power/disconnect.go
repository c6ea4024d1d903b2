package power

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"syscall"

	"golang.org/x/crypto/ssh"
)

// DisconnectKind names a way the control channel can drop.
type DisconnectKind string

const (
	DisconnectEOF         DisconnectKind = "eof"
	DisconnectReset       DisconnectKind = "reset"
	DisconnectBrokenPipe  DisconnectKind = "broken_pipe"
	DisconnectClosed      DisconnectKind = "closed"
	DisconnectExitMissing DisconnectKind = "exit_missing"
	DisconnectTimeout     DisconnectKind = "timeout"
)

// ClassifyDisconnect maps a transport error onto a DisconnectKind by
// inspecting the error chain. ok is false for anything that isn't a
// connection drop (auth failures, remote command errors).
func ClassifyDisconnect(err error) (kind DisconnectKind, ok bool) {
	if err == nil {
		return "", false
	}

	var exitMissing *ssh.ExitMissingError
	switch {
	case stderrors.As(err, &exitMissing):
		return DisconnectExitMissing, true
	case stderrors.Is(err, io.EOF), stderrors.Is(err, io.ErrUnexpectedEOF):
		return DisconnectEOF, true
	case stderrors.Is(err, syscall.ECONNRESET), stderrors.Is(err, syscall.ECONNABORTED):
		return DisconnectReset, true
	case stderrors.Is(err, syscall.EPIPE):
		return DisconnectBrokenPipe, true
	case stderrors.Is(err, net.ErrClosed), stderrors.Is(err, io.ErrClosedPipe):
		return DisconnectClosed, true
	case stderrors.Is(err, context.DeadlineExceeded):
		return DisconnectTimeout, true
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return DisconnectTimeout, true
	}
	return "", false
}

// DisconnectPolicy decides which drops during a suspend count as the host
// going to sleep.
type DisconnectPolicy struct {
	kinds map[DisconnectKind]bool
}

// NewDisconnectPolicy builds a policy from kind names. Unknown names are
// ignored; config validation rejects them earlier.
func NewDisconnectPolicy(kinds []string) DisconnectPolicy {
	p := DisconnectPolicy{kinds: make(map[DisconnectKind]bool, len(kinds))}
	for _, k := range kinds {
		p.kinds[DisconnectKind(k)] = true
	}
	return p
}

// Expected reports whether err is a disconnect this policy accepts.
func (p DisconnectPolicy) Expected(err error) (DisconnectKind, bool) {
	kind, ok := ClassifyDisconnect(err)
	if !ok || !p.kinds[kind] {
		return kind, false
	}
	return kind, true
}
