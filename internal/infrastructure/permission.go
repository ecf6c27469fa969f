package infrastructure

import (
	"os"

	"go.uber.org/zap"

	"github.com/yourusername/fetch-install-go/internal/domain"
)

// FilesystemPermissionGate grants the storage permission when the download
// directory exists and is writable by this process
type FilesystemPermissionGate struct {
	dir    string
	logger *zap.Logger
}

// NewFilesystemPermissionGate creates a gate for dir
func NewFilesystemPermissionGate(dir string, logger *zap.Logger) *FilesystemPermissionGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilesystemPermissionGate{dir: dir, logger: logger}
}

// IsGranted reports whether permission is held. Only storage is known.
func (g *FilesystemPermissionGate) IsGranted(permission string) bool {
	if permission != domain.PermissionStorage {
		return false
	}

	info, err := os.Stat(g.dir)
	if err != nil || !info.IsDir() {
		return false
	}

	probe, err := os.CreateTemp(g.dir, ".fetch-install-probe-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return true
}

// Request creates the download directory if needed and reports through
// callback, asynchronously, whether every permission is now held
func (g *FilesystemPermissionGate) Request(permissions []string, callback func(granted bool)) {
	go func() {
		granted := true
		for _, p := range permissions {
			if p == domain.PermissionStorage {
				if err := os.MkdirAll(g.dir, 0755); err != nil {
					g.logger.Warn("Failed to create download directory",
						zap.String("dir", g.dir),
						zap.Error(err))
				}
			}
			if !g.IsGranted(p) {
				granted = false
			}
		}
		g.logger.Info("Permission request finished",
			zap.Strings("permissions", permissions),
			zap.Bool("granted", granted))
		callback(granted)
	}()
}
