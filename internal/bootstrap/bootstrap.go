// Package bootstrap builds the components shared by the server and the CLI
// from a loaded configuration.
package bootstrap

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/yourusername/fetch-install-go/internal/app"
	"github.com/yourusername/fetch-install-go/internal/domain"
	"github.com/yourusername/fetch-install-go/internal/infrastructure"
	"github.com/yourusername/fetch-install-go/pkg/logger"
)

// Components are the concrete collaborators of a coordinator
type Components struct {
	Config    *domain.Config
	Logger    *zap.Logger
	Events    *logger.MultiLogger
	Store     *infrastructure.SQLiteRecordStore
	Notifier  *infrastructure.NotificationService
	Backend   *infrastructure.HTTPBackend
	Gate      *infrastructure.FilesystemPermissionGate
	Installer *infrastructure.CommandInstaller
}

// Build creates every component. On error the ones already created are closed.
func Build(config *domain.Config, log *zap.Logger) (c *Components, err error) {
	c = &Components{Config: config, Logger: log}
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()

	if err = os.MkdirAll(config.Download.DestinationDir, 0755); err != nil {
		return c, fmt.Errorf("failed to create destination directory: %w", err)
	}

	c.Events, err = logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Logging.LogsDir,
	})
	if err != nil {
		return c, fmt.Errorf("failed to initialize event logs: %w", err)
	}

	c.Store, err = infrastructure.NewSQLiteRecordStore(config.Store.DatabasePath, config.Store.Namespace)
	if err != nil {
		return c, fmt.Errorf("failed to initialize record store: %w", err)
	}

	c.Notifier = infrastructure.NewNotificationService(&config.Notification, log)

	c.Backend, err = infrastructure.NewHTTPBackend(&config.Download, c.Notifier, log)
	if err != nil {
		return c, fmt.Errorf("failed to initialize download service: %w", err)
	}

	c.Gate = infrastructure.NewFilesystemPermissionGate(config.Download.DestinationDir, log)
	c.Installer = infrastructure.NewCommandInstaller(&config.Install, log)
	return c, nil
}

// Deps returns coordinator dependencies backed by the components
func (c *Components) Deps() app.CoordinatorDeps {
	return app.CoordinatorDeps{
		Backend:   c.Backend,
		Gate:      c.Gate,
		Store:     c.Store,
		Installer: c.Installer,
		Messenger: c.Notifier,
		Poll:      &c.Config.Poll,
		Logger:    c.Logger,
		Events:    c.Events,
	}
}

// Close releases the backend, store and event logs
func (c *Components) Close() {
	if c.Backend != nil {
		c.Backend.Close()
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.Logger.Warn("Failed to close record store", zap.Error(err))
		}
	}
	if c.Events != nil {
		c.Events.Sync()
		c.Events.Close()
	}
}
