package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"

	"github.com/rileyhilliard/dozer/internal/errors"
)

// JSONEnvelope wraps --json output so scripts can check one field for
// success. All --json output uses it.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError is the machine-readable form of a structured error.
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Error codes for machine-readable output.
const (
	ErrCodeConfigNotFound = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "CONFIG_INVALID"
	ErrCodeUnreachable    = "GATEWAY_UNREACHABLE"
	ErrCodeAPI            = "API_ERROR"
	ErrCodeUnknown        = "UNKNOWN"
)

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: true, Data: data})
}

// WriteJSONFromError converts a Go error to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	return writeJSONEnvelope(w, JSONEnvelope{Error: ErrorToJSON(err)})
}

func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts a Go error to a JSONError with a stable code.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}
	var dzErr *errors.Error
	if stderrors.As(err, &dzErr) {
		return &JSONError{
			Code:       mapErrorCode(dzErr),
			Message:    dzErr.Detail(),
			Suggestion: dzErr.Suggestion,
		}
	}
	return &JSONError{Code: ErrCodeUnknown, Message: errors.Flatten(err)}
}

func mapErrorCode(e *errors.Error) string {
	switch e.Code {
	case errors.ErrConfig:
		if e.Message == "Config file not found" {
			return ErrCodeConfigNotFound
		}
		return ErrCodeConfigInvalid
	case errors.ErrAPI:
		if e.Cause != nil {
			return ErrCodeUnreachable
		}
		return ErrCodeAPI
	case "":
		return ErrCodeUnknown
	}
	return e.Code
}
