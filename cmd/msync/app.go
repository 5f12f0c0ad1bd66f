package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/chmdznr/oss-project-sync/internal/cancel"
	"github.com/chmdznr/oss-project-sync/internal/config"
	"github.com/chmdznr/oss-project-sync/internal/db"
	"github.com/chmdznr/oss-project-sync/internal/notify"
	"github.com/chmdznr/oss-project-sync/internal/remote"
	"github.com/chmdznr/oss-project-sync/internal/sync"
)

// app bundles the wired components a command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *db.DB
	settings *config.SettingsProvider
	webhook  *notify.Webhook

	// Set by withEngine.
	registry  *cancel.Registry
	engine    *sync.Engine
	scheduler *sync.Scheduler
}

// loadConfig reads the config and installs the default logger.
func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// openApp opens the database. Commands that sync also call withEngine.
func openApp(c *cli.Context) (*app, error) {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	store, err := db.New(cfg.DBPath, db.WithBatchSize(cfg.Sync.Normalize().BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		settings: config.NewSettingsProvider(store, cfg.Sync, cfg.SettingsCacheTTL),
		webhook:  notify.NewWebhook(nil, logger),
	}, nil
}

// withEngine connects the storage backend and builds the engine and scheduler.
func (a *app) withEngine(c *cli.Context) error {
	storage, err := remote.NewStorage(c.Context, a.cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to connect storage: %w", err)
	}

	settings, err := a.settings.Get(c.Context)
	if err != nil {
		a.logger.Warn("failed to load settings, using defaults", "error", err)
	}
	gateway := remote.NewGateway(storage,
		remote.WithRetryPolicy(remote.DefaultRetryPolicy(settings.MaxRetries)),
		remote.WithLogger(a.logger),
	)

	a.registry = cancel.NewRegistry()
	a.engine = sync.NewEngine(sync.EngineConfig{
		Store:    a.store,
		Gateway:  gateway,
		Registry: a.registry,
		Logger:   a.logger,
	})
	a.scheduler = sync.NewScheduler(sync.SchedulerConfig{
		Engine:   a.engine,
		Projects: a.store,
		Sessions: a.store,
		Settings: a.settings,
		Notifier: a.webhook,
		Logger:   a.logger,
	})
	return nil
}

func (a *app) Close() error {
	return a.store.Close()
}
