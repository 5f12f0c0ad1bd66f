package models

import "time"

const (
	DefaultSyncCutoffSeconds = 300
	DefaultMaxRetries        = 3
	DefaultBatchSize         = 450
	DefaultSyncConcurrency   = 5
	DefaultLogFlushSize      = 50
	DefaultStaleLockAfter    = 2 * time.Hour
)

// Settings are the runtime tunables of the sync engine and scheduler.
type Settings struct {
	SyncCutoffSeconds   int           `json:"syncCutoffSeconds" mapstructure:"cutoff_seconds"`
	EnableAutoSchedule  bool          `json:"enableAutoSchedule" mapstructure:"enable_auto_schedule"`
	EnableNotifications bool          `json:"enableNotifications" mapstructure:"enable_notifications"`
	WebhookURL          string        `json:"webhookUrl" mapstructure:"webhook_url"`
	MaxRetries          int           `json:"maxRetries" mapstructure:"max_retries"`
	BatchSize           int           `json:"batchSize" mapstructure:"batch_size"`
	SyncConcurrency     int           `json:"syncConcurrency" mapstructure:"concurrency"`
	LogFlushSize        int           `json:"logFlushSize" mapstructure:"log_flush_size"`
	StaleLockAfter      time.Duration `json:"staleLockAfter" mapstructure:"stale_lock_after"`
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		SyncCutoffSeconds:   DefaultSyncCutoffSeconds,
		EnableAutoSchedule:  true,
		EnableNotifications: true,
		MaxRetries:          DefaultMaxRetries,
		BatchSize:           DefaultBatchSize,
		SyncConcurrency:     DefaultSyncConcurrency,
		LogFlushSize:        DefaultLogFlushSize,
		StaleLockAfter:      DefaultStaleLockAfter,
	}
}

// Cutoff returns the wall-clock budget of a single project run.
func (s Settings) Cutoff() time.Duration {
	if s.SyncCutoffSeconds <= 0 {
		return DefaultSyncCutoffSeconds * time.Second
	}
	return time.Duration(s.SyncCutoffSeconds) * time.Second
}

// Normalize replaces non-positive tunables with their defaults.
func (s Settings) Normalize() Settings {
	if s.MaxRetries < 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultBatchSize
	}
	if s.SyncConcurrency <= 0 {
		s.SyncConcurrency = DefaultSyncConcurrency
	}
	if s.LogFlushSize <= 0 {
		s.LogFlushSize = DefaultLogFlushSize
	}
	if s.StaleLockAfter <= 0 {
		s.StaleLockAfter = DefaultStaleLockAfter
	}
	return s
}
