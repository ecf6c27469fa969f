package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Poll         PollConfig         `mapstructure:"poll"`
	Store        StoreConfig        `mapstructure:"store"`
	Install      InstallConfig      `mapstructure:"install"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains settings of the HTTP download service
type DownloadConfig struct {
	DestinationDir string        `mapstructure:"destination_dir"`
	ServiceEnabled bool          `mapstructure:"service_enabled"`
	Network        string        `mapstructure:"network"` // wifi or mobile: the network the service is on
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	MaxRedirects   int           `mapstructure:"max_redirects"`
	UserAgent      string        `mapstructure:"user_agent"`

	// MaxBytesPerSecond caps the combined read rate of all transfers. Zero is unlimited.
	MaxBytesPerSecond int64 `mapstructure:"max_bytes_per_second"`
}

// PollConfig contains progress polling configuration
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`

	// MaxPausedWait bounds how long a transfer may stay paused. Zero waits forever.
	MaxPausedWait time.Duration `mapstructure:"max_paused_wait"`
}

// StoreConfig contains download record store configuration
type StoreConfig struct {
	DatabasePath string `mapstructure:"database_path"`
	Namespace    string `mapstructure:"namespace"`
}

// InstallConfig contains installer configuration
type InstallConfig struct {
	Enabled        bool             `mapstructure:"enabled"`
	DefaultCommand string           `mapstructure:"default_command"`
	Commands       []InstallCommand `mapstructure:"commands"`
}

// InstallCommand is the command template used for one media type.
// Templates may reference {path}, {uri} and {mime}.
type InstallCommand struct {
	MimeType string `mapstructure:"mime"`
	Command  string `mapstructure:"command"`
}

// CommandFor returns the template for mimeType, falling back to DefaultCommand
func (c InstallConfig) CommandFor(mimeType string) string {
	for _, cmd := range c.Commands {
		if cmd.MimeType == mimeType {
			return cmd.Command
		}
	}
	return c.DefaultCommand
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Sound          bool   `mapstructure:"sound"`
	Method         string `mapstructure:"method"` // osascript, notify-send, log
	FallbackOpener string `mapstructure:"fallback_opener"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Download: DownloadConfig{
			DestinationDir: "$HOME/Downloads/fetch-install",
			ServiceEnabled: true,
			Network:        "wifi",
			MaxRetries:     3,
			RetryDelay:     5 * time.Second,
			MaxRedirects:   10,
			UserAgent:      "fetch-install/1.0",
		},
		Poll: PollConfig{
			Interval:      time.Second,
			MaxPausedWait: 0,
		},
		Store: StoreConfig{
			DatabasePath: "$HOME/.fetch-install/records.db",
			Namespace:    RecordNamespace,
		},
		Install: InstallConfig{
			Enabled:        true,
			DefaultCommand: "xdg-open {path}",
			Commands: []InstallCommand{
				{MimeType: MimeTypeAPK, Command: "adb install -r {path}"},
			},
		},
		Notification: NotificationConfig{
			Enabled:        true,
			Sound:          false,
			Method:         "notify-send",
			FallbackOpener: "xdg-open",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/.fetch-install/logs",
		},
	}
}
