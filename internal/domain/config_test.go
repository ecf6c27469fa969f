package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotNil(t, config)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8090, config.Server.Port)
	assert.True(t, config.Download.ServiceEnabled)
	assert.Equal(t, "wifi", config.Download.Network)
	assert.Equal(t, 3, config.Download.MaxRetries)
	assert.Equal(t, 5*time.Second, config.Download.RetryDelay)
	assert.Equal(t, time.Second, config.Poll.Interval)
	assert.Zero(t, config.Poll.MaxPausedWait)
	assert.Equal(t, RecordNamespace, config.Store.Namespace)
	assert.True(t, config.Install.Enabled)
	assert.Equal(t, "adb install -r {path}", config.Install.CommandFor(MimeTypeAPK))
	assert.Equal(t, "xdg-open {path}", config.Install.CommandFor("application/pdf"))
	assert.True(t, config.Notification.Enabled)
	assert.Equal(t, "info", config.Logging.Level)
}
