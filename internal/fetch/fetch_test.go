package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFileInstallsAtomically(t *testing.T) {
	srv := serve(t, http.StatusOK, "#!/bin/sh\necho ok\n")
	dest := filepath.Join(t.TempDir(), "bin", "tool")

	var progress bytes.Buffer
	err := File(context.Background(), srv.URL, dest, Options{Mode: 0755, Label: "tool", Progress: &progress})
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho ok\n", string(data))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0100)

	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestFileHTTPError(t *testing.T) {
	srv := serve(t, http.StatusNotFound, "missing")
	dest := filepath.Join(t.TempDir(), "tool")

	err := File(context.Background(), srv.URL, dest, Options{Label: "tool"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")

	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
}

func TestFileCanceled(t *testing.T) {
	srv := serve(t, http.StatusOK, "data")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := File(ctx, srv.URL, filepath.Join(t.TempDir(), "tool"), Options{Label: "tool"})
	assert.ErrorIs(t, err, context.Canceled)
}
