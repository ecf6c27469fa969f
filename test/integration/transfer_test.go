//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/fetch-install-go/internal/app"
	"github.com/yourusername/fetch-install-go/internal/bootstrap"
	"github.com/yourusername/fetch-install-go/internal/domain"
)

type listener struct {
	mu     sync.Mutex
	events []string
}

func (l *listener) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, s)
}

func (l *listener) OnPrepared(req domain.TransferRequest)      { l.add("prepared") }
func (l *listener) OnProgress(total, soFar int64, percent int) { l.add("progress") }
func (l *listener) OnSuccess(uri, mimeType string) {
	l.add("success:" + domain.ResultPath(uri) + "|" + mimeType)
}
func (l *listener) OnFailed(err error) { l.add("failed:" + err.Error()) }

func (l *listener) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *listener) last() string {
	events := l.Events()
	if len(events) == 0 {
		return ""
	}
	return events[len(events)-1]
}

func setup(t *testing.T) (*bootstrap.Components, *httptest.Server, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	payload := strings.Repeat("x", 64*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Length", "65536")
		w.Write([]byte(payload))
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	config := domain.DefaultConfig()
	config.Download.DestinationDir = filepath.Join(dir, "downloads")
	config.Store.DatabasePath = filepath.Join(dir, "records.db")
	config.Logging.LogsDir = filepath.Join(dir, "logs")
	config.Install.Enabled = false
	config.Notification.Enabled = false
	config.Poll.Interval = 10 * time.Millisecond

	c, err := bootstrap.Build(config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, server, hits
}

func TestTransferWorkflow_DownloadThenCache(t *testing.T) {
	c, server, hits := setup(t)
	dest := filepath.Join(c.Config.Download.DestinationDir, "app.apk")
	req := domain.NewTransferRequest(server.URL+"/app.apk", dest, "3")

	l := &listener{}
	coordinator := app.NewCoordinator(c.Deps(), l)
	coordinator.StartDownload(context.Background(), req)

	want := "success:" + dest + "|" + domain.MimeTypeAPK
	require.Eventually(t, func() bool { return l.last() == want }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "prepared", l.Events()[0])
	assert.Equal(t, int32(1), hits.Load())

	record, err := c.Store.Get("3")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, dest, record.FilePath)

	cached := &listener{}
	again := app.NewCoordinator(c.Deps(), cached)
	again.StartDownload(context.Background(), req)

	require.Eventually(t, func() bool { return cached.last() == want }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{want}, cached.Events())
	assert.Equal(t, int32(1), hits.Load())
}

func TestTransferWorkflow_ServiceDisabled(t *testing.T) {
	c, server, hits := setup(t)
	c.Backend.SetServiceEnabled(false)

	l := &listener{}
	coordinator := app.NewCoordinator(c.Deps(), l)
	coordinator.StartDownload(context.Background(), domain.NewTransferRequest(server.URL+"/app.apk",
		filepath.Join(c.Config.Download.DestinationDir, "app.apk"), "3"))

	require.Eventually(t, func() bool { return l.last() != "" }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"failed:service unavailable"}, l.Events())
	assert.Equal(t, int32(0), hits.Load())
}
