package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"transform-registry/internal/app"
	"transform-registry/internal/config"
)

const fnText = `CREATE FUNCTION f (data DOUBLE) RETURN TABLE (result DOUBLE) LANGUAGE PYTHON
{
    import numpy; return {'result': numpy.log(data)}
}`

// newTestServer serves a fresh SQLite-backed registry.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	a, err := app.New(ctx, &config.Config{
		DBPath:             filepath.Join(t.TempDir(), "registry.sqlite"),
		ReadPoolSize:       2,
		RateLimitRPS:       1000,
		RateLimitBurst:     1000,
		CORSAllowedOrigins: []string{"*"},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(a.Handler)
	t.Cleanup(srv.Close)
	return srv
}

// runCLI executes one command line against host with an isolated HOME.
func runCLI(t *testing.T, host string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("REGISTRY_HOST", "")
	t.Setenv("REGISTRY_OUTPUT", "")

	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--host", host}, args...))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, host string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, host, args...)
	require.NoError(t, err, out)
	return out
}
