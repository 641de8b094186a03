package core

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"go.olrik.dev/lifeline/pkg/notify"
)

// Config is the global configuration instance
var Config *Configuration

// Configuration represents the complete lifeline configuration
type Configuration struct {
	ConfigPath string // Directory containing config, default socket and database
	Verbose    int    // Verbosity level
	Listener   ListenerConfig
	Retention  RetentionConfig
}

// ListenerConfig holds settings for the notification listener.
type ListenerConfig struct {
	Socket        string        // NOTIFY_SOCKET notation, empty means notify.sock in the config path
	LogRatePerSec int           // Cap on notification log lines per second (0 disables the cap)
	WatchdogGrace time.Duration // Slack added to announced watchdog intervals before declaring a miss
	Record        bool          // Persist received notifications to the database
}

// RetentionConfig controls pruning of recorded notifications.
type RetentionConfig struct {
	Schedule string        // Cron spec for the prune job (e.g. "@hourly", "@every 6h")
	MaxAge   time.Duration // Notifications older than this are pruned
}

// HCL parsing structs

type hclConfig struct {
	Verbose   int           `hcl:"verbose,optional"`
	Listener  *hclListener  `hcl:"listener,block"`
	Retention *hclRetention `hcl:"retention,block"`
}

type hclListener struct {
	Socket        string `hcl:"socket,optional"`
	LogRatePerSec *int   `hcl:"log_rate_per_sec,optional"`
	WatchdogGrace string `hcl:"watchdog_grace,optional"`
	Record        *bool  `hcl:"record,optional"`
}

type hclRetention struct {
	Schedule string `hcl:"schedule,optional"`
	MaxAge   string `hcl:"max_age,optional"`
}

// LoadConfig loads the HCL configuration file and returns a Configuration struct
func LoadConfig(filename string) (*Configuration, error) {
	var hclCfg hclConfig

	err := hclsimple.DecodeFile(filename, nil, &hclCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HCL config: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.Verbose = hclCfg.Verbose

	if hclCfg.Listener != nil {
		if hclCfg.Listener.Socket != "" {
			// Fail early on a socket value the listener could never bind.
			if _, err := notify.ResolveAddress(hclCfg.Listener.Socket); err != nil {
				return nil, fmt.Errorf("invalid listener socket: %w", err)
			}
			cfg.Listener.Socket = hclCfg.Listener.Socket
		}
		if hclCfg.Listener.LogRatePerSec != nil {
			if *hclCfg.Listener.LogRatePerSec < 0 {
				return nil, fmt.Errorf("log_rate_per_sec must not be negative, got %d", *hclCfg.Listener.LogRatePerSec)
			}
			cfg.Listener.LogRatePerSec = *hclCfg.Listener.LogRatePerSec
		}
		if hclCfg.Listener.WatchdogGrace != "" {
			grace, err := parseDurationField("watchdog_grace", hclCfg.Listener.WatchdogGrace)
			if err != nil {
				return nil, err
			}
			if grace < 0 {
				return nil, fmt.Errorf("watchdog_grace must not be negative, got %s", grace)
			}
			cfg.Listener.WatchdogGrace = grace
		}
		if hclCfg.Listener.Record != nil {
			cfg.Listener.Record = *hclCfg.Listener.Record
		}
	}

	if hclCfg.Retention != nil {
		if hclCfg.Retention.Schedule != "" {
			cfg.Retention.Schedule = hclCfg.Retention.Schedule
		}
		if hclCfg.Retention.MaxAge != "" {
			maxAge, err := parseDurationField("max_age", hclCfg.Retention.MaxAge)
			if err != nil {
				return nil, err
			}
			if maxAge <= 0 {
				return nil, fmt.Errorf("max_age must be positive, got %s", maxAge)
			}
			cfg.Retention.MaxAge = maxAge
		}
	}

	return cfg, nil
}

// parseDurationField parses a duration given as config text, naming the
// offending field in the error.
func parseDurationField(field, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s %q: %w", field, raw, err)
	}
	return d, nil
}

// GetDefaultConfig returns a Configuration with default values
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Verbose: 0,
		Listener: ListenerConfig{
			Socket:        "",
			LogRatePerSec: 20,
			WatchdogGrace: 10 * time.Second,
			Record:        true,
		},
		Retention: RetentionConfig{
			Schedule: "@hourly",
			MaxAge:   720 * time.Hour,
		},
	}
}

// ConfigExists checks if a config file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return err == nil
}
