// Package config loads engine settings from file, environment and
// defaults.
//
// Precedence is the usual viper order: explicit env (RFSYNC_*) over the
// config file over built-in defaults. A .env file in the working
// directory is folded into the environment first, so local development
// setups need no shell exports.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every knob the engine exposes. The retry ceiling and the
// network timeout were once buried constants; they are configuration
// here, with the documented defaults.
type Config struct {
	// DBPath is the device database file.
	DBPath string `mapstructure:"db_path"`

	// APIBaseURL is the remote service root, prepended to relative
	// action endpoints.
	APIBaseURL string `mapstructure:"api_base_url"`

	// AuthRefreshURL mints replacement bearer tokens.
	AuthRefreshURL string `mapstructure:"auth_refresh_url"`

	// ProbeURL is checked periodically for reachability; empty means
	// probe the API base URL itself.
	ProbeURL string `mapstructure:"probe_url"`

	// ProbeInterval between reachability checks.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// RequestTimeout bounds each remote delivery attempt.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// MaxRetries is the per-action delivery budget.
	MaxRetries int `mapstructure:"max_retries"`

	// SweepInterval between cache maintenance sweeps; 0 disables the
	// background sweeper (expiry stays lazy-on-read regardless).
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// LogFile routes daemon logs to a rotated file; empty means stderr.
	LogFile string `mapstructure:"log_file"`
}

// Load reads configuration from an optional config file plus environment.
// path may be empty, in which case rfsync.yaml is searched for in the
// working directory and ~/.rfsync.
func Load(path string) (*Config, error) {
	// Best-effort: a missing .env file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	// Every key gets a default so AutomaticEnv can populate it even
	// without a config file.
	v.SetDefault("db_path", ".rfsync/offline.db")
	v.SetDefault("api_base_url", "")
	v.SetDefault("auth_refresh_url", "")
	v.SetDefault("probe_url", "")
	v.SetDefault("log_file", "")
	v.SetDefault("probe_interval", 15*time.Second)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("max_retries", 3)
	v.SetDefault("sweep_interval", 5*time.Minute)

	v.SetEnvPrefix("RFSYNC")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("rfsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.rfsync")
		if err := v.ReadInConfig(); err != nil {
			// No config file is fine; env and defaults carry it.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("api_base_url is required (RFSYNC_API_BASE_URL)")
	}
	if cfg.ProbeURL == "" {
		cfg.ProbeURL = cfg.APIBaseURL
	}
	if cfg.MaxRetries <= 0 {
		return nil, fmt.Errorf("max_retries must be positive, got %d", cfg.MaxRetries)
	}

	return &cfg, nil
}

// Watch re-reads the config file on change and hands the result to onChange.
// Parse failures keep the previous config and are reported via onError.
// Used by the daemon so operators can tune intervals without a restart.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	if path == "" {
		return fmt.Errorf("config watch requires an explicit config file")
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load(path)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()

	return nil
}
