package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodes(t *testing.T) {
	codes := []string{
		ErrConfig,
		ErrSSH,
		ErrExec,
		ErrInvalidAddress,
		ErrNetworkSend,
		ErrExpectedDisconnect,
		ErrWake,
		ErrReadinessTimeout,
		ErrRequestTimeout,
		ErrConnectionRefused,
		ErrAPI,
	}

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.NotEmpty(t, code, "error code should not be empty")
		assert.False(t, seen[code], "error code %q should be unique", code)
		seen[code] = true
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		message    string
		suggestion string
	}{
		{
			name:       "config error",
			code:       ErrConfig,
			message:    "Minutes must be between 1 and 120",
			suggestion: "Pick a value in range",
		},
		{
			name:       "invalid address",
			code:       ErrInvalidAddress,
			message:    "Invalid MAC address format",
			suggestion: "Use six hex octets, like 00:11:22:33:44:55",
		},
		{
			name:       "readiness timeout",
			code:       ErrReadinessTimeout,
			message:    "Service readiness timeout after 180 seconds",
			suggestion: "Try the request again with a longer timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, tt.suggestion)

			require.NotNil(t, err)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.message, err.Message)
			assert.Equal(t, tt.suggestion, err.Suggestion)
			assert.Nil(t, err.Cause)
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name          string
		err           *Error
		expectedParts []string
		notExpected   []string
	}{
		{
			name:          "basic error formatting",
			err:           New(ErrConfig, "Invalid configuration", "Check dozer.yaml syntax"),
			expectedParts: []string{"✗", "Invalid configuration", "Check dozer.yaml syntax"},
		},
		{
			name:          "error with cause",
			err:           WrapWithCode(errors.New("dial tcp: i/o timeout"), ErrSSH, "Can't reach 'gpu'", ""),
			expectedParts: []string{"Can't reach 'gpu'", "dial tcp: i/o timeout"},
		},
		{
			name:          "error without suggestion",
			err:           New(ErrExec, "Command failed", ""),
			expectedParts: []string{"Command failed"},
			notExpected:   []string{"suggestion"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := tt.err.Error()

			for _, part := range tt.expectedParts {
				assert.Contains(t, output, part)
			}
			for _, part := range tt.notExpected {
				assert.NotContains(t, output, part)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying network error")
	wrapped := Wrap(cause, "SSH connection failed")

	require.NotNil(t, wrapped)
	assert.Equal(t, ErrSSH, wrapped.Code, "Wrap should default to ErrSSH code")
	assert.Equal(t, cause, wrapped.Cause)
	assert.True(t, errors.Is(wrapped, cause))
}

func TestIsCode(t *testing.T) {
	err := New(ErrWake, "wake failed", "")
	wrapped := fmt.Errorf("proxy: %w", err)

	assert.True(t, IsCode(err, ErrWake))
	assert.True(t, IsCode(wrapped, ErrWake))
	assert.False(t, IsCode(wrapped, ErrConfig))
	assert.False(t, IsCode(nil, ErrWake))
	assert.False(t, IsCode(errors.New("plain"), ErrWake))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrRequestTimeout, CodeOf(fmt.Errorf("x: %w", New(ErrRequestTimeout, "t", ""))))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.Equal(t, "", CodeOf(nil))
}

func TestDetail(t *testing.T) {
	assert.Equal(t, "bad mac", New(ErrInvalidAddress, "bad mac", "fix it").Detail())

	wrapped := WrapWithCode(errors.New("exit status 1"), ErrExec, "Suspend command failed", "")
	assert.Equal(t, "Suspend command failed: exit status 1", wrapped.Detail())
}

func TestFlatten(t *testing.T) {
	joined := errors.Join(
		errors.New("send to 255.255.255.255:9: network is unreachable"),
		New(ErrNetworkSend, "send to 10.0.0.255:9 timed out", ""),
	)

	assert.Equal(t,
		"send to 255.255.255.255:9: network is unreachable; send to 10.0.0.255:9 timed out",
		Flatten(joined))
	assert.Equal(t, "", Flatten(nil))
	assert.Equal(t, "line one line two", Flatten(errors.New("line one\nline two")))
}
