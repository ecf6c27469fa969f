package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/fetch-install-go/internal/domain"
)

// NotificationService shows desktop notifications. It is the Messenger
// used by coordinators and the completion notifier of the HTTP backend.
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if n.config == nil || !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var (
		name string
		args []string
	)
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, appleScriptQuote(message), appleScriptQuote(title))
		if n.config.Sound {
			script += ` sound name "default"`
		}
		name, args = "osascript", []string{"-e", script}
	case "notify-send":
		name, args = "notify-send", []string{title, message}
	case "log":
		n.logger.Info("Notification", zap.String("title", title), zap.String("message", message))
		return nil
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err := n.run(name, args...); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// ShowMessage implements domain.Messenger
func (n *NotificationService) ShowMessage(title, message string) {
	if title == "" {
		title = "fetch-install"
	}
	n.Send(title, message)
}

// OfferSettings implements domain.Messenger
func (n *NotificationService) OfferSettings(message string) {
	n.Send("Download service disabled", message)
}

// OfferFallback opens url with the configured opener so the user can fetch
// it manually
func (n *NotificationService) OfferFallback(url string) {
	if n.config == nil || n.config.FallbackOpener == "" || !n.config.Enabled {
		n.logger.Info("Open the download manually", zap.String("url", url))
		return
	}

	if err := n.run(n.config.FallbackOpener, url); err != nil {
		n.logger.Warn("Failed to open fallback viewer",
			zap.String("opener", n.config.FallbackOpener),
			zap.String("url", url),
			zap.Error(err))
	}
}

// NotifyTransferFinished announces the end of a transfer
func (n *NotificationService) NotifyTransferFinished(title string, status domain.TransferStatus) {
	switch status.Kind {
	case domain.StatusSucceeded:
		n.Send("Download Completed", truncateString(title, 60))
	case domain.StatusFailed:
		n.Send("Download Failed", fmt.Sprintf("%s (%s)", truncateString(title, 40), status.FailureReason))
	}
}

func appleScriptQuote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
