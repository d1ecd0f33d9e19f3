// Package app provides the application initialization and wiring.
package app

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultDataDir returns the default data directory path.
// Uses ~/.sandboxer for user installations, /var/lib/sandboxer as fallback.
func DefaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".sandboxer")
	}
	return "/var/lib/sandboxer"
}

// ConfigureViper sets up viper with standard config file search paths.
// Config file: sandboxer.toml
// Search paths (in order): /etc/sandboxer, ~/.config/sandboxer, current directory
func ConfigureViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("sandboxer")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/sandboxer")
		v.AddConfigPath("$HOME/.config/sandboxer")
		v.AddConfigPath(".")
	}
}

// locksDir returns where name lock files are kept.
func locksDir(cfg Config) string {
	return filepath.Join(cfg.DataDir, "locks")
}

// auditPath returns the configured audit file or its default under data_dir.
func auditPath(cfg Config) string {
	if cfg.Audit.Path != "" {
		return cfg.Audit.Path
	}
	return filepath.Join(cfg.DataDir, "audit.log")
}

// logFilePath returns the configured log file or its default under data_dir.
func logFilePath(cfg Config) string {
	if cfg.Logging.File.Path != "" {
		return cfg.Logging.File.Path
	}
	return filepath.Join(cfg.DataDir, "logs", "sandboxer.log")
}
