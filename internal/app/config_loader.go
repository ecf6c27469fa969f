package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/yourusername/fetch-install-go/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. FETCHINSTALL_SERVER_PORT
const EnvPrefix = "FETCHINSTALL"

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.fetch-install")
		v.AddConfigPath("/etc/fetch-install")
	}

	// Every key needs a default for AutomaticEnv to see it
	for key, value := range configValues(config) {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// configValues flattens config into dotted viper keys. Durations are
// written as strings so saved files stay readable.
func configValues(config *domain.Config) map[string]interface{} {
	return map[string]interface{}{
		"server.host": config.Server.Host,
		"server.port": config.Server.Port,

		"download.destination_dir": config.Download.DestinationDir,
		"download.service_enabled": config.Download.ServiceEnabled,
		"download.network":         config.Download.Network,
		"download.max_retries":     config.Download.MaxRetries,
		"download.retry_delay":     config.Download.RetryDelay.String(),
		"download.max_redirects":   config.Download.MaxRedirects,
		"download.user_agent":      config.Download.UserAgent,

		"download.max_bytes_per_second": config.Download.MaxBytesPerSecond,

		"poll.interval":        config.Poll.Interval.String(),
		"poll.max_paused_wait": config.Poll.MaxPausedWait.String(),

		"store.database_path": config.Store.DatabasePath,
		"store.namespace":     config.Store.Namespace,

		"install.enabled":         config.Install.Enabled,
		"install.default_command": config.Install.DefaultCommand,
		"install.commands":        installCommands(config.Install.Commands),

		"notification.enabled":         config.Notification.Enabled,
		"notification.sound":           config.Notification.Sound,
		"notification.method":          config.Notification.Method,
		"notification.fallback_opener": config.Notification.FallbackOpener,

		"logging.level":       config.Logging.Level,
		"logging.format":      config.Logging.Format,
		"logging.output_path": config.Logging.OutputPath,
		"logging.logs_dir":    config.Logging.LogsDir,
	}
}

func installCommands(commands []domain.InstallCommand) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(commands))
	for _, c := range commands {
		out = append(out, map[string]interface{}{"mime": c.MimeType, "command": c.Command})
	}
	return out
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.DestinationDir = expandPath(config.Download.DestinationDir)
	config.Store.DatabasePath = expandPath(config.Store.DatabasePath)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if strings.Contains(path, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.DestinationDir == "" {
		return fmt.Errorf("download destination directory not configured")
	}

	if _, err := domain.ParseNetworkType(config.Download.Network); err != nil {
		return fmt.Errorf("invalid download network: %w", err)
	}

	if config.Download.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if config.Download.MaxRedirects < 0 {
		return fmt.Errorf("max redirects cannot be negative")
	}

	if config.Download.MaxBytesPerSecond < 0 {
		return fmt.Errorf("max bytes per second cannot be negative")
	}

	if config.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if config.Poll.MaxPausedWait < 0 {
		return fmt.Errorf("max paused wait cannot be negative")
	}

	if config.Store.DatabasePath == "" {
		return fmt.Errorf("record database path not configured")
	}

	if config.Store.Namespace == "" {
		config.Store.Namespace = domain.RecordNamespace
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range configValues(config) {
		v.Set(key, value)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
