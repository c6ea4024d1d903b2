package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/dozer/internal/errors"
)

func TestErrorToJSON(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"nil", nil, ""},
		{"plain", fmt.Errorf("boom"), ErrCodeUnknown},
		{"config not found", errors.WrapWithCode(fmt.Errorf("stat"), errors.ErrConfig, "Config file not found", ""), ErrCodeConfigNotFound},
		{"config invalid", errors.New(errors.ErrConfig, "target.mac is required", ""), ErrCodeConfigInvalid},
		{"unreachable", errors.WrapWithCode(fmt.Errorf("dial tcp: refused"), errors.ErrAPI, "Can't reach dozer", ""), ErrCodeUnreachable},
		{"api", errors.New(errors.ErrAPI, "Rate limit exceeded (HTTP 429)", ""), ErrCodeAPI},
		{"other code", errors.New(errors.ErrReadinessTimeout, "not ready", ""), errors.ErrReadinessTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ErrorToJSON(tt.err)
			if tt.err == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONSuccess(&buf, map[string]int{"n": 1}))

	var env struct {
		Success bool           `json:"success"`
		Data    map[string]int `json:"data"`
		Error   *JSONError     `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Equal(t, 1, env.Data["n"])
	assert.Nil(t, env.Error)

	buf.Reset()
	require.NoError(t, WriteJSONFromError(&buf, errors.New(errors.ErrAPI, "Wake failed", "Check the MAC")))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeAPI, env.Error.Code)
	assert.Equal(t, "Check the MAC", env.Error.Suggestion)
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("--timeout", "")
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = ParseDuration("--timeout", "90s")
	require.NoError(t, err)
	assert.Equal(t, "1m30s", d.String())

	for _, bad := range []string{"soon", "-5s"} {
		_, err = ParseDuration("--timeout", bad)
		assert.True(t, errors.IsCode(err, errors.ErrConfig), bad)
	}
}

func TestRemoteFlags_ServerFromEnv(t *testing.T) {
	t.Setenv("DOZER_SERVER", "http://gateway.lan:3000")
	assert.Equal(t, "http://gateway.lan:3000", envOr("DOZER_SERVER", "fallback"))
	t.Setenv("DOZER_SERVER", "")
	assert.Equal(t, "fallback", envOr("DOZER_SERVER", "fallback"))
}
