package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/chmdznr/oss-project-sync/internal/server"
	"github.com/chmdznr/oss-project-sync/internal/sync"
	"github.com/chmdznr/oss-project-sync/pkg/models"
	"github.com/chmdznr/oss-project-sync/pkg/utils"
)

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run a sync now, for one project or all of them",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Project id or name"},
			&cli.BoolFlag{Name: "all", Usage: "Sync every active project"},
			&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "Press q to stop safely"},
		},
		Action: runSync,
	}
}

func runSync(c *cli.Context) error {
	if c.Bool("all") == (c.String("project") != "") {
		return errors.New("exactly one of --project or --all is required")
	}

	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withEngine(c); err != nil {
		return err
	}

	var targets []string
	var project *models.Project
	if c.Bool("all") {
		projects, err := a.store.ListProjects(c.Context)
		if err != nil {
			return err
		}
		for _, p := range sync.Eligible(projects) {
			targets = append(targets, p.ID)
		}
	} else {
		project, err = a.store.FindProject(c.Context, c.String("project"))
		if err != nil {
			return err
		}
		targets = []string{project.ID}
	}

	if c.Bool("interactive") {
		stopKeys, err := a.watchKeys(c.Context, targets)
		if err != nil {
			return err
		}
		defer stopKeys()
	}

	if project == nil {
		_, err := a.scheduler.SyncAll(c.Context, models.TriggerManual, sync.NewBarProgress(os.Stdout))
		return err
	}

	session, err := a.scheduler.SyncOne(c.Context, project.ID, models.TriggerManual)
	if err != nil {
		return err
	}
	printSession(session)
	return nil
}

// watchKeys asks every target to stop when q, Esc or Ctrl+C is pressed.
// The terminal is in raw mode until the returned func is called.
func (a *app) watchKeys(ctx context.Context, targets []string) (func(), error) {
	keys, err := keyboard.GetKeys(10)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyboard: %w", err)
	}
	fmt.Println("Press 'q' to stop after the current file.")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-keys:
				if !ok || ev.Err != nil {
					return
				}
				if ev.Rune == 'q' || ev.Rune == 'Q' || ev.Key == keyboard.KeyEsc || ev.Key == keyboard.KeyCtrlC {
					for _, id := range targets {
						a.registry.RequestStop(id)
					}
					a.logger.Info("stop requested", "projects", len(targets))
					return
				}
			}
		}
	}()
	return func() { _ = keyboard.Close() }, nil
}

func printSession(s *models.SyncSession) {
	fmt.Printf("\nSync %s in %s:\n", s.Status, utils.FormatDuration(time.Duration(s.ExecutionDurationSeconds)*time.Second))
	fmt.Printf("- Session: %s (run %s)\n", s.ID, s.RunID)
	fmt.Printf("- Synced: %d files (%s)\n", s.FilesCount, utils.FormatSize(s.TotalSizeSynced))
	fmt.Printf("- Failed files: %d\n", s.FailedFilesCount)
	if s.ErrorMessage != "" {
		fmt.Printf("- Message: %s\n", s.ErrorMessage)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the trigger API and optionally run scheduled syncs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address, overrides server.addr"},
			&cli.DurationFlag{Name: "interval", Usage: "Run a scheduled sync of all projects at this interval (0 disables)"},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withEngine(c); err != nil {
		return err
	}

	addr := a.cfg.Server.Addr
	if v := c.String("addr"); v != "" {
		addr = v
	}
	if a.cfg.Server.CronSecret == "" {
		a.logger.Warn("server.cron_secret is empty, the API is unauthenticated")
	}

	srv := server.New(server.Config{
		Addr:       addr,
		CronSecret: a.cfg.Server.CronSecret,
		Scheduler:  a.scheduler,
		Stopper:    a.registry,
		Store:      a.store,
		Settings:   a.settings,
		Webhook:    a.webhook,
		Logger:     a.logger,
	})

	g, ctx := errgroup.WithContext(c.Context)
	g.Go(func() error {
		return srv.Start(ctx)
	})
	if interval := c.Duration("interval"); interval > 0 {
		g.Go(func() error {
			a.logger.Info("scheduler start", "interval", interval)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if _, err := a.scheduler.SyncAll(ctx, models.TriggerScheduled, nil); err != nil {
						a.logger.Error("scheduled run failed", "error", err)
					}
				}
			}
		})
	}
	return g.Wait()
}

func settingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change runtime settings",
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.settings.Get(c.Context)
			if err != nil {
				return err
			}
			printSettings(s)
			return nil
		},
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Change settings, unspecified flags keep their value",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "cutoff", Usage: "Per-project time budget in seconds"},
					&cli.IntFlag{Name: "max-retries", Usage: "Retries per remote call"},
					&cli.IntFlag{Name: "concurrency", Usage: "Projects synced in parallel"},
					&cli.IntFlag{Name: "log-flush", Usage: "File logs buffered before a flush"},
					&cli.IntFlag{Name: "batch-size", Usage: "Rows per file log insert"},
					&cli.DurationFlag{Name: "stale-lock", Usage: "Age after which a pending marker is ignored"},
					&cli.BoolFlag{Name: "auto-schedule", Usage: "Allow scheduled runs"},
					&cli.BoolFlag{Name: "notifications", Usage: "Send run summaries to the webhook"},
					&cli.StringFlag{Name: "webhook", Usage: "Google Chat webhook url"},
				},
				Action: setSettings,
			},
			{
				Name:  "test-webhook",
				Usage: "Send a test message to the configured webhook",
				Action: func(c *cli.Context) error {
					a, err := openApp(c)
					if err != nil {
						return err
					}
					defer a.Close()

					s, err := a.settings.Get(c.Context)
					if err != nil {
						return err
					}
					if err := a.webhook.Test(c.Context, s.WebhookURL); err != nil {
						return err
					}
					fmt.Println("Test message sent")
					return nil
				},
			},
		},
	}
}

func setSettings(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.settings.Get(c.Context)
	if err != nil {
		return err
	}
	if c.IsSet("cutoff") {
		s.SyncCutoffSeconds = c.Int("cutoff")
	}
	if c.IsSet("max-retries") {
		s.MaxRetries = c.Int("max-retries")
	}
	if c.IsSet("concurrency") {
		s.SyncConcurrency = c.Int("concurrency")
	}
	if c.IsSet("log-flush") {
		s.LogFlushSize = c.Int("log-flush")
	}
	if c.IsSet("batch-size") {
		s.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("stale-lock") {
		s.StaleLockAfter = c.Duration("stale-lock")
	}
	if c.IsSet("auto-schedule") {
		s.EnableAutoSchedule = c.Bool("auto-schedule")
	}
	if c.IsSet("notifications") {
		s.EnableNotifications = c.Bool("notifications")
	}
	if c.IsSet("webhook") {
		s.WebhookURL = c.String("webhook")
	}

	s = s.Normalize()
	if err := a.settings.Save(c.Context, s); err != nil {
		return err
	}
	printSettings(s)
	return nil
}

func printSettings(s models.Settings) {
	fmt.Printf("Cutoff:            %s\n", s.Cutoff())
	fmt.Printf("Max retries:       %d\n", s.MaxRetries)
	fmt.Printf("Concurrency:       %d\n", s.SyncConcurrency)
	fmt.Printf("Log flush size:    %d\n", s.LogFlushSize)
	fmt.Printf("Batch size:        %d\n", s.BatchSize)
	fmt.Printf("Stale lock after:  %s\n", s.StaleLockAfter)
	fmt.Printf("Auto schedule:     %t\n", s.EnableAutoSchedule)
	fmt.Printf("Notifications:     %t\n", s.EnableNotifications)
	fmt.Printf("Webhook:           %s\n", orDash(s.WebhookURL))
}
