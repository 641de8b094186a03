package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const (
	BaseDirName      = ".config/lifeline"
	ConfigFileName   = "config.hcl"
	SocketName       = "notify.sock"
	DatabaseFileName = "lifeline.db"
	PidFileName      = "listener.pid"
)

// DefaultConfigPath returns the per-user configuration directory. The
// directory also holds the default listener socket and the database.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return BaseDirName
	}
	return filepath.Join(home, BaseDirName)
}

// GetConfigFilePath returns the config file inside the active config path.
func GetConfigFilePath() string {
	return filepath.Join(Config.ConfigPath, ConfigFileName)
}

// GetSocketPath returns the listener socket in NOTIFY_SOCKET notation.
// Explicit configuration wins; the default is a socket file next to the
// config.
func GetSocketPath() string {
	if Config.Listener.Socket != "" {
		return Config.Listener.Socket
	}
	return filepath.Join(Config.ConfigPath, SocketName)
}

// GetDatabasePath returns the notification database file.
func GetDatabasePath() string {
	return filepath.Join(Config.ConfigPath, DatabaseFileName)
}

// GetPIDFilePath returns the listener pid file.
func GetPIDFilePath() string {
	return filepath.Join(Config.ConfigPath, PidFileName)
}

// InitializeConfig loads the configuration for a cobra command run and
// installs it as the global Config. A missing config file is not an error
// and yields the defaults; command line flags win over file values.
func InitializeConfig(cmd *cobra.Command) error {
	configPath, err := cmd.Root().PersistentFlags().GetString("config-path")
	if err != nil {
		return fmt.Errorf("failed to determine config path: %w", err)
	}
	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	var cfg *Configuration
	configFile := filepath.Join(configPath, ConfigFileName)
	if ConfigExists(configFile) {
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return err
		}
	} else {
		cfg = GetDefaultConfig()
	}
	cfg.ConfigPath = configPath

	if verbose, err := cmd.Root().PersistentFlags().GetCount("verbose"); err == nil && verbose > cfg.Verbose {
		cfg.Verbose = verbose
	}

	Config = cfg
	return nil
}
