package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig = "CONFIG"
	ErrSSH    = "SSH"
	ErrExec   = "EXEC"

	// Power control
	ErrInvalidAddress     = "INVALID_ADDRESS"
	ErrNetworkSend        = "NETWORK_SEND"
	ErrExpectedDisconnect = "EXPECTED_DISCONNECT"
	ErrWake               = "WAKE"

	// Proxying
	ErrReadinessTimeout  = "READINESS_TIMEOUT"
	ErrRequestTimeout    = "REQUEST_TIMEOUT"
	ErrConnectionRefused = "CONNECTION_REFUSED"

	// Control API clients
	ErrAPI = "API"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// The rendered form is:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrSSH code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrSSH,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Detail returns the message and cause on a single line, for places where the
// multi-line rendering does not fit (JSON bodies, PowerResult messages).
func (e *Error) Detail() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, Flatten(e.Cause))
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var dzErr *Error
	if errors.As(err, &dzErr) {
		return dzErr.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost structured Error in the chain, or
// "" when there is none.
func CodeOf(err error) string {
	var dzErr *Error
	if errors.As(err, &dzErr) {
		return dzErr.Code
	}
	return ""
}

// Flatten renders any error on one line. Structured errors use Detail,
// joined errors are separated by "; ".
func Flatten(err error) string {
	if err == nil {
		return ""
	}
	var dzErr *Error
	if errors.As(err, &dzErr) && dzErr == err {
		return dzErr.Detail()
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		parts := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			parts = append(parts, Flatten(e))
		}
		return strings.Join(parts, "; ")
	}
	return strings.ReplaceAll(strings.TrimSpace(err.Error()), "\n", " ")
}
