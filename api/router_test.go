package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/fetch-install-go/internal/app"
	"github.com/yourusername/fetch-install-go/internal/domain"
	"github.com/yourusername/fetch-install-go/internal/infrastructure"
	"github.com/yourusername/fetch-install-go/pkg/logger"
)

type testEnv struct {
	router  http.Handler
	service *app.TransferService
	store   *infrastructure.SQLiteRecordStore
	backend *infrastructure.HTTPBackend
	destDir string
	files   *httptest.Server
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	destDir := filepath.Join(dir, "downloads")
	log := zap.NewNop()

	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.apk" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("package-contents"))
	}))
	t.Cleanup(files.Close)

	store, err := infrastructure.NewSQLiteRecordStore(filepath.Join(dir, "records.db"), domain.RecordNamespace)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	config := domain.DefaultConfig()
	config.Download.DestinationDir = destDir
	config.Download.Network = "wifi"
	config.Download.MaxRetries = 0
	config.Install.Enabled = false
	config.Notification.Enabled = false

	backend, err := infrastructure.NewHTTPBackend(&config.Download, nil, log)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	events, err := logger.NewMultiLogger(logger.MultiLoggerConfig{Level: "info", LogsDir: filepath.Join(dir, "logs")})
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	service := app.NewTransferService(app.CoordinatorDeps{
		Backend:   backend,
		Gate:      infrastructure.NewFilesystemPermissionGate(destDir, log),
		Store:     store,
		Installer: infrastructure.NewCommandInstaller(&config.Install, log),
		Messenger: infrastructure.NewNotificationService(&config.Notification, log),
		Poll:      &domain.PollConfig{Interval: 10 * time.Millisecond},
		Logger:    log,
		Events:    events,
	}, nil)
	t.Cleanup(service.Shutdown)

	router := NewRouter(RouterConfig{
		Service:        service,
		Store:          store,
		Logger:         log,
		Events:         events,
		LogsDir:        filepath.Join(dir, "logs"),
		DestinationDir: destDir,
		Version:        "test",
	})

	return &testEnv{router: router, service: service, store: store, backend: backend, destDir: destDir, files: files}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) waitState(t *testing.T, target string, want domain.CoordinatorState) app.TargetSnapshot {
	t.Helper()
	var snap app.TargetSnapshot
	require.Eventually(t, func() bool {
		rec := e.do(t, http.MethodGet, "/api/v1/transfers/"+target, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
			return false
		}
		return snap.State == want
	}, 5*time.Second, 10*time.Millisecond)
	return snap
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "test", health["version"])

	rec = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartTransfer_Validation(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/transfers", map[string]string{"url": "https://example.com/a.apk"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/transfers", map[string]string{
		"url":         "https://example.com/a.apk",
		"version_key": "1",
		"network":     "satellite",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartTransfer_DownloadsAndRecords(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/transfers", map[string]string{
		"url":         env.files.URL + "/app.apk",
		"version_key": "3",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	snap := env.waitState(t, "3", domain.StateSucceeded)
	assert.Equal(t, 100, snap.Percent)
	assert.Equal(t, domain.MimeTypeAPK, snap.MimeType)
	assert.Equal(t, filepath.Join(env.destDir, "app.apk"), domain.ResultPath(snap.URI))
	assert.Empty(t, snap.Error)

	// the finished transfer is released from the backend
	_, err := env.backend.Query(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrTransferNotFound)
	assert.FileExists(t, filepath.Join(env.destDir, "app.apk"))

	rec = env.do(t, http.MethodGet, "/api/v1/records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []domain.DownloadRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "3", records[0].VersionKey)
	assert.Equal(t, filepath.Join(env.destDir, "app.apk"), records[0].FilePath)

	rec = env.do(t, http.MethodGet, "/api/v1/transfers?state=succeeded", nil)
	var list []app.TargetSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = env.do(t, http.MethodDelete, "/api/v1/records/3", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	record, err := env.store.Get("3")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestStartTransfer_Failure(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/transfers", map[string]string{
		"url":         env.files.URL + "/missing.apk",
		"version_key": "4",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	snap := env.waitState(t, "4", domain.StateFailed)
	assert.Equal(t, "transfer failed: http error", snap.Error)
}

func TestTransferNotFound(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/transfers/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/transfers/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogs(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/logs/categories", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "transfer")

	rec = env.do(t, http.MethodGet, "/api/v1/logs/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/logs/transfer?date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/logs/transfer/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/logs/transfer", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventsWebSocket(t *testing.T) {
	env := setupTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/events?target=5"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return env.service.Events().Subscribers() == 1
	}, time.Second, 5*time.Millisecond)

	_, err = env.service.Start(domain.NewTransferRequest(env.files.URL+"/five.apk", filepath.Join(env.destDir, "five.apk"), "5"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var types []app.EventType
	for {
		var event app.TransferEvent
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, "5", event.Target)
		types = append(types, event.Type)
		if event.Type == app.EventSuccess || event.Type == app.EventFailed {
			break
		}
	}
	assert.Equal(t, app.EventPrepared, types[0])
	assert.Equal(t, app.EventSuccess, types[len(types)-1])
}
