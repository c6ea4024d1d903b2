// Package host answers "is the target there?" at the network level: TCP
// reachability of a port and ICMP echo liveness.
package host

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// ProbeError is a failed TCP probe with the reason it failed.
type ProbeError struct {
	Address string
	Reason  ProbeFailReason
	Cause   error
}

// ProbeFailReason says why a probe failed. Refused means the host is up.
type ProbeFailReason int

const (
	ProbeFailUnknown ProbeFailReason = iota
	ProbeFailTimeout
	ProbeFailRefused
	ProbeFailUnreachable
)

var reasonText = map[ProbeFailReason]string{
	ProbeFailTimeout:     "connection timed out",
	ProbeFailRefused:     "connection refused",
	ProbeFailUnreachable: "host unreachable",
}

func (r ProbeFailReason) String() string {
	if s, ok := reasonText[r]; ok {
		return s
	}
	return "unknown error"
}

func (e *ProbeError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("probe %s failed: %s", e.Address, e.Reason)
	}
	return fmt.Sprintf("probe %s failed: %s (%v)", e.Address, e.Reason, e.Cause)
}

func (e *ProbeError) Unwrap() error { return e.Cause }

// ProbeTCP connects to address and returns how long the connect took.
// Failures are *ProbeError.
func ProbeTCP(ctx context.Context, address string, timeout time.Duration) (time.Duration, error) {
	start := time.Now()
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return 0, categorizeProbeError(address, err)
	}
	latency := time.Since(start)
	_ = conn.Close()
	return latency, nil
}

// IsRefused reports whether err is an active refusal: something answered
// and said no, so the host itself is up.
func IsRefused(err error) bool {
	var probeErr *ProbeError
	if stderrors.As(err, &probeErr) {
		return probeErr.Reason == ProbeFailRefused
	}
	return err != nil && categorizeProbeError("", err).Reason == ProbeFailRefused
}

var (
	errnoReasons = []struct {
		errno  error
		reason ProbeFailReason
	}{
		{syscall.ECONNREFUSED, ProbeFailRefused},
		{syscall.EHOSTUNREACH, ProbeFailUnreachable},
		{syscall.ENETUNREACH, ProbeFailUnreachable},
		{syscall.EHOSTDOWN, ProbeFailUnreachable},
		{syscall.ETIMEDOUT, ProbeFailTimeout},
		{context.DeadlineExceeded, ProbeFailTimeout},
	}

	// Errors that crossed a library boundary may only keep their text.
	textReasons = []struct {
		substr string
		reason ProbeFailReason
	}{
		{"timeout", ProbeFailTimeout},
		{"timed out", ProbeFailTimeout},
		{"connection refused", ProbeFailRefused},
		{"no route to host", ProbeFailUnreachable},
		{"network is unreachable", ProbeFailUnreachable},
		{"host is down", ProbeFailUnreachable},
	}
)

func categorizeProbeError(address string, err error) *ProbeError {
	if err == nil {
		return nil
	}
	return &ProbeError{Address: address, Reason: failReason(err), Cause: err}
}

func failReason(err error) ProbeFailReason {
	for _, e := range errnoReasons {
		if stderrors.Is(err, e.errno) {
			return e.reason
		}
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return ProbeFailTimeout
	}
	msg := strings.ToLower(err.Error())
	for _, t := range textReasons {
		if strings.Contains(msg, t.substr) {
			return t.reason
		}
	}
	return ProbeFailUnknown
}
