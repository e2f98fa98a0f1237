package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	vars := []string{
		"CASKET_BIND_ADDR", "CASKET_NUM_WORKERS", "CASKET_MAX_CONNECTIONS",
		"CASKET_MAX_REQUESTS", "CASKET_REQUEST_READ_TIMEOUT",
		"CASKET_PYTHON_CODE_GATEWAY_TIMEOUT", "CASKET_CTRLC_WAIT_TIME",
		"CASKET_RETURN_STACKTRACE_IN_BODY", "CASKET_LOG_HTTP_RESPONSE",
	}
	for _, v := range vars {
		require.NoError(t, os.Unsetenv(v))
	}
}

func TestLoad_defaults(t *testing.T) {
	clearEnv(t)
	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8080", c.BindAddr)
	require.Equal(t, 3, c.NumWorkers)
	require.Equal(t, 128, c.MaxConnections)
	require.Equal(t, 12, c.MaxRequests)
	require.True(t, c.ReturnStacktraceInBody)
	require.True(t, c.LogHTTPResponse)
	require.Equal(t, 8080, c.ServerPort)
}

func TestLoad_overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CASKET_NUM_WORKERS", "5")
	t.Setenv("CASKET_MAX_REQUESTS", "64")
	t.Setenv("CASKET_RETURN_STACKTRACE_IN_BODY", "0")
	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5, c.NumWorkers)
	require.Equal(t, 64, c.MaxRequests)
	require.False(t, c.ReturnStacktraceInBody)
}

func TestLoad_malformedVariable(t *testing.T) {
	clearEnv(t)
	t.Setenv("CASKET_NUM_WORKERS", "not-a-number")
	_, err := Load()
	require.Error(t, err)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "CASKET_NUM_WORKERS", cfgErr.Var)
}
