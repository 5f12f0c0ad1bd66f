// Package config loads process configuration from file, .env and MSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/chmdznr/oss-project-sync/internal/remote"
	"github.com/chmdznr/oss-project-sync/pkg/models"
)

const (
	envPrefix      = "MSYNC"
	configFileName = "msync"
)

// Config is the static configuration of the process.
type Config struct {
	Path             string          `mapstructure:"-"`
	DBPath           string          `mapstructure:"db_path"`
	LogLevel         string          `mapstructure:"log_level"`
	Storage          remote.Config   `mapstructure:"storage"`
	Server           ServerConfig    `mapstructure:"server"`
	Sync             models.Settings `mapstructure:"sync"`
	SettingsCacheTTL time.Duration   `mapstructure:"settings_cache_ttl"`
}

// ServerConfig configures the trigger API.
type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	CronSecret string `mapstructure:"cron_secret"`
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	defaults := models.DefaultSettings()

	v.SetDefault("db_path", filepath.Join(home, ".msync", "msync.db"))
	v.SetDefault("log_level", "info")
	v.SetDefault("settings_cache_ttl", 5*time.Minute)

	v.SetDefault("storage.driver", remote.DriverMinio)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.secure", true)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cron_secret", "")

	v.SetDefault("sync.cutoff_seconds", defaults.SyncCutoffSeconds)
	v.SetDefault("sync.enable_auto_schedule", defaults.EnableAutoSchedule)
	v.SetDefault("sync.enable_notifications", defaults.EnableNotifications)
	v.SetDefault("sync.webhook_url", "")
	v.SetDefault("sync.max_retries", defaults.MaxRetries)
	v.SetDefault("sync.batch_size", defaults.BatchSize)
	v.SetDefault("sync.concurrency", defaults.SyncConcurrency)
	v.SetDefault("sync.log_flush_size", defaults.LogFlushSize)
	v.SetDefault("sync.stale_lock_after", defaults.StaleLockAfter)
}

// Load reads configuration. An explicit path must exist; otherwise msync.yaml
// is looked up in the working directory and ~/.msync, and a missing file is
// not an error. Variables from ./.env are loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".msync"))
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	cfg.Sync = cfg.Sync.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields that have no usable default.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	switch c.Storage.Driver {
	case remote.DriverMinio, remote.DriverS3, remote.DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
