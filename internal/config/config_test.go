package config

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmdznr/oss-project-sync/pkg/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "msync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
db_path: /tmp/msync-test.db
log_level: debug
storage:
  driver: s3
  endpoint: http://localhost:9000
  access_key: key
sync:
  cutoff_seconds: 60
  concurrency: 2
  stale_lock_after: 30m
server:
  cron_secret: s3cret
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "/tmp/msync-test.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "s3", cfg.Storage.Driver)
	assert.Equal(t, "key", cfg.Storage.AccessKey)
	assert.Equal(t, "us-east-1", cfg.Storage.Region)
	assert.Equal(t, 60, cfg.Sync.SyncCutoffSeconds)
	assert.Equal(t, 2, cfg.Sync.SyncConcurrency)
	assert.Equal(t, 30*time.Minute, cfg.Sync.StaleLockAfter)
	assert.Equal(t, models.DefaultLogFlushSize, cfg.Sync.LogFlushSize)
	assert.True(t, cfg.Sync.EnableAutoSchedule)
	assert.Equal(t, "s3cret", cfg.Server.CronSecret)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "db_path: /tmp/a.db\n")
	t.Setenv("MSYNC_DB_PATH", "/tmp/b.db")
	t.Setenv("MSYNC_SYNC_ENABLE_AUTO_SCHEDULE", "false")
	t.Setenv("MSYNC_STORAGE_DRIVER", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/b.db", cfg.DBPath)
	assert.False(t, cfg.Sync.EnableAutoSchedule)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeConfig(t, "storage:\n  driver: ftp\n")
	_, err = Load(path)
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLoggerNoColor(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info")
	logger.Debug("hidden")
	logger.Info("sync started", "project", "alpha")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "sync started")
	assert.Contains(t, out, "project=alpha")
	assert.NotContains(t, out, "\x1b[")
}

type fakeSettingsStore struct {
	settings models.Settings
	ok       bool
	err      error
	loads    int
}

func (f *fakeSettingsStore) LoadSettings(context.Context) (models.Settings, bool, error) {
	f.loads++
	return f.settings, f.ok, f.err
}

func (f *fakeSettingsStore) SaveSettings(_ context.Context, s models.Settings) error {
	f.settings, f.ok = s, true
	return nil
}

func TestSettingsProvider(t *testing.T) {
	ctx := context.Background()
	store := &fakeSettingsStore{}
	defaults := models.DefaultSettings()
	p := NewSettingsProvider(store, defaults, time.Minute)

	got, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaults, got)

	_, err = p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads, "second read served from cache")

	updated := defaults
	updated.SyncCutoffSeconds = 0
	updated.EnableAutoSchedule = false
	require.NoError(t, p.Save(ctx, updated))

	got, err = p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, store.loads)
	assert.False(t, got.EnableAutoSchedule)
	assert.Equal(t, models.DefaultSyncCutoffSeconds*time.Second, got.Cutoff())
}

func TestSettingsProviderStoreError(t *testing.T) {
	store := &fakeSettingsStore{err: errors.New("db locked")}
	p := NewSettingsProvider(store, models.DefaultSettings(), time.Minute)

	got, err := p.Get(context.Background())
	assert.Error(t, err)
	assert.Equal(t, models.DefaultSettings(), got)
}
