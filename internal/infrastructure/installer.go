package infrastructure

import (
	"context"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/fetch-install-go/internal/domain"
)

const defaultInstallTimeout = 5 * time.Minute

// CommandInstaller installs finished downloads by running a command chosen
// by media type
type CommandInstaller struct {
	config  *domain.InstallConfig
	logger  *zap.Logger
	timeout time.Duration
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCommandInstaller creates an installer
func NewCommandInstaller(config *domain.InstallConfig, logger *zap.Logger) *CommandInstaller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandInstaller{
		config:  config,
		logger:  logger,
		timeout: defaultInstallTimeout,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Install runs the install command for mimeType. With installing disabled
// the file is left for the caller and Install reports success.
func (i *CommandInstaller) Install(uri, mimeType string) bool {
	path := domain.ResultPath(uri)

	if i.config == nil || !i.config.Enabled {
		i.logger.Info("Install disabled, leaving file in place", zap.String("path", path))
		return true
	}

	template := i.config.CommandFor(mimeType)
	if template == "" {
		i.logger.Warn("No install command for media type", zap.String("mime", mimeType))
		return false
	}

	binary, args, err := ExpandCommand(template, map[string]string{
		"path": path,
		"uri":  uri,
		"mime": mimeType,
	})
	if err != nil {
		i.logger.Error("Invalid install command", zap.String("template", template), zap.Error(err))
		return false
	}

	i.logger.Info("Installing",
		zap.String("command", ShellEscapeCommand(binary, args...)),
		zap.String("mime", mimeType))

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	output, err := i.run(ctx, binary, args...)
	if err != nil {
		i.logger.Error("Install command failed",
			zap.String("command", ShellEscapeCommand(binary, args...)),
			zap.ByteString("output", output),
			zap.Error(err))
		return false
	}

	i.logger.Info("Install command finished", zap.String("path", path))
	return true
}
