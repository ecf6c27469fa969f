package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/fetch-install-go/internal/domain"
)

func newGetFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	registerGetFlags(cmd)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestBuildRequest_Defaults(t *testing.T) {
	cmd := newGetFlags(t)

	req, err := buildRequest(cmd, "https://example.com/files/app.apk?x=1", "/downloads")
	require.NoError(t, err)
	assert.Equal(t, "/downloads/app.apk", req.DestinationPath)
	assert.Equal(t, "https://example.com/files/app.apk?x=1", req.VersionKey)
	assert.Equal(t, domain.MimeTypeAPK, req.MimeType)
	assert.Equal(t, domain.NetworkAny, req.AllowedNetworks)
}

func TestBuildRequest_Flags(t *testing.T) {
	cmd := newGetFlags(t, "--version", "3", "--wifi-only", "--title", "App", "--mime", "application/zip", "--dest", "/tmp/x.bin")

	req, err := buildRequest(cmd, "https://example.com/", "/downloads")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.bin", req.DestinationPath)
	assert.Equal(t, "3", req.VersionKey)
	assert.Equal(t, "App", req.DisplayTitle)
	assert.Equal(t, "application/zip", req.MimeType)
	assert.Equal(t, domain.NetworkWifi, req.AllowedNetworks)
}

func TestBuildRequest_NoFileName(t *testing.T) {
	cmd := newGetFlags(t)

	_, err := buildRequest(cmd, "https://example.com/", "/downloads")
	assert.Error(t, err)
}

func TestGetCommand_DownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("release build"))
	}))
	defer server.Close()

	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
download:
  destination_dir: `+filepath.Join(dir, "downloads")+`
store:
  database_path: `+filepath.Join(dir, "records.db")+`
logging:
  logs_dir: `+filepath.Join(dir, "logs")+`
notification:
  enabled: false
poll:
  interval: 20ms
`), 0644))

	run := func() string {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs([]string{"--config", cfg, "get", server.URL + "/app.apk", "-V", "7", "--no-install"})
		require.NoError(t, rootCmd.Execute())
		return out.String()
	}

	out := run()
	assert.Contains(t, out, "Downloading app.apk")
	assert.Contains(t, out, "Saved "+filepath.Join(dir, "downloads", "app.apk"))
	assert.Equal(t, int32(1), hits.Load())

	out = run()
	assert.Contains(t, out, "Saved")
	assert.Equal(t, int32(1), hits.Load())
}
