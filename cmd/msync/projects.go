package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/chmdznr/oss-project-sync/internal/remote"
	"github.com/chmdznr/oss-project-sync/pkg/models"
	"github.com/chmdznr/oss-project-sync/pkg/utils"
)

const dateLayout = "2006-01-02"

func projectFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "project",
		Aliases:  []string{"p"},
		Usage:    "Project id or name",
		Required: true,
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a new sync project",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Project name", Required: true},
			&cli.StringFlag{Name: "source", Usage: "Source folder (bucket/prefix/)", Required: true},
			&cli.StringFlag{Name: "dest", Usage: "Destination folder (bucket/prefix/)", Required: true},
			&cli.StringFlag{Name: "description", Usage: "Free text description"},
			&cli.StringFlag{Name: "start-date", Usage: "Ignore files modified before this date (YYYY-MM-DD)"},
		},
		Action: createProject,
	}
}

func createProject(c *cli.Context) error {
	source, err := remote.NormalizeFolderID(c.String("source"))
	if err != nil {
		return err
	}
	dest, err := remote.NormalizeFolderID(c.String("dest"))
	if err != nil {
		return err
	}

	project := &models.Project{
		Name:           c.String("name"),
		Description:    c.String("description"),
		SourceFolderID: source,
		DestFolderID:   dest,
	}
	if raw := c.String("start-date"); raw != "" {
		start, err := time.Parse(dateLayout, raw)
		if err != nil {
			return fmt.Errorf("invalid start date %q: %w", raw, err)
		}
		project.SyncStartDate = &start
	}

	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.CreateProject(c.Context, project); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	fmt.Printf("Project '%s' created successfully (id %s)\n", project.Name, project.ID)
	return nil
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List projects",
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.Close()

			projects, err := a.store.ListProjects(c.Context)
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Println("No projects")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tLAST SYNC\tRESULT\tFILES\tSIZE")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					p.ID, p.Name, p.Status, relTime(p.LastSyncTimestamp), orDash(string(p.LastSyncStatus)),
					p.FilesCount, utils.FormatSize(p.TotalSize))
			}
			return w.Flush()
		},
	}
}

func setStatusCommand(name, usage string, status models.ProjectStatus) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{projectFlag()},
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.Close()

			project, err := a.store.FindProject(c.Context, c.String("project"))
			if err != nil {
				return err
			}
			if err := a.store.UpdateProject(c.Context, models.ProjectUpdate{ID: project.ID, Status: &status}); err != nil {
				return err
			}
			fmt.Printf("Project '%s' is now %s\n", project.Name, status)
			return nil
		},
	}
}

func pauseCommand() *cli.Command {
	return setStatusCommand("pause", "Exclude a project from scheduled runs", models.ProjectPaused)
}

func resumeCommand() *cli.Command {
	return setStatusCommand("resume", "Re-activate a paused or failed project", models.ProjectActive)
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Soft delete a project",
		Flags: []cli.Flag{projectFlag()},
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.Close()

			project, err := a.store.FindProject(c.Context, c.String("project"))
			if err != nil {
				return err
			}
			if err := a.store.DeleteProject(c.Context, project.ID); err != nil {
				return err
			}
			fmt.Printf("Project '%s' deleted\n", project.Name)
			return nil
		},
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Clear a project's checkpoint so the next sync rescans everything",
		Flags: []cli.Flag{projectFlag()},
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.Close()

			project, err := a.store.FindProject(c.Context, c.String("project"))
			if err != nil {
				return err
			}
			if _, err := a.store.ResetProject(c.Context, project.ID); err != nil {
				return err
			}
			fmt.Printf("Project '%s' reset, the next sync is a full rescan\n", project.Name)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show project status and recent sessions",
		Flags: []cli.Flag{
			projectFlag(),
			&cli.IntFlag{Name: "sessions", Usage: "Number of recent sessions to show", Value: 10},
		},
		Action: showStatus,
	}
}

func showStatus(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	project, err := a.store.FindProject(c.Context, c.String("project"))
	if err != nil {
		return err
	}
	stats, err := a.store.Stats(c.Context, project.ID)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Printf("Project: %s (%s)\n", project.Name, project.ID)
	if project.Description != "" {
		fmt.Printf("Description: %s\n", project.Description)
	}
	fmt.Printf("Source: %s\n", project.SourceFolderID)
	fmt.Printf("Destination: %s\n", project.DestFolderID)
	fmt.Printf("Status: %s\n", project.Status)
	fmt.Printf("Last sync: %s (%s)\n", relTime(project.LastSyncTimestamp), orDash(string(project.LastSyncStatus)))
	fmt.Printf("Last success: %s\n", relTime(project.LastSuccessSyncTimestamp))
	if cp := project.Checkpoint(); !cp.IsZero() {
		fmt.Printf("Checkpoint: %s\n", cp.Local().Format(time.RFC3339))
	}
	fmt.Printf("Total synced: %d files (%s)\n", project.FilesCount, utils.FormatSize(project.TotalSize))

	heartbeats, err := a.store.Heartbeats(c.Context)
	if err == nil {
		for _, hb := range heartbeats {
			if hb.ProjectID == project.ID {
				fmt.Printf("Heartbeat: %s (%s)\n", humanize.Time(hb.LastCheckTimestamp), hb.LastStatus)
			}
		}
	}

	fmt.Printf("\nSessions: %d total, %d success, %d warning, %d interrupted, %d error\n",
		stats.TotalSessions, stats.SuccessSessions, stats.WarningSessions, stats.InterruptedSessions, stats.ErrorSessions)
	fmt.Printf("Files: %d synced (%s), %d failed, %d skipped\n",
		stats.SyncedFiles, utils.FormatSize(stats.SyncedSize), stats.FailedFiles, stats.SkippedFiles)

	sessions, err := a.store.RecentSessions(c.Context, project.ID, c.Int("sessions"))
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tRUN\tWHEN\tSTATUS\tCURRENT\tFILES\tFAILED\tSIZE\tDURATION\tBY\tERROR")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			s.ID, s.RunID, humanize.Time(s.Timestamp), s.Status, orDash(string(s.Current)),
			s.FilesCount, s.FailedFilesCount, utils.FormatSize(s.TotalSizeSynced),
			utils.FormatDuration(time.Duration(s.ExecutionDurationSeconds)*time.Second),
			s.TriggeredBy, s.ErrorMessage)
	}
	return w.Flush()
}

func logsCommand() *cli.Command {
	return &cli.Command{
		Name:  "logs",
		Usage: "Show the file logs of a session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Session id", Required: true},
		},
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.Close()

			logs, err := a.store.FileLogs(c.Context, c.String("session"))
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				fmt.Println("No file logs")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STATUS\tPATH\tSIZE\tMODIFIED\tDEST\tERROR")
			for _, l := range logs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					l.Status, l.SourcePath, utils.FormatSize(l.FileSize),
					l.ModifiedDate.Local().Format(time.DateTime), orDash(l.DestLink), l.ErrorMessage)
			}
			return w.Flush()
		},
	}
}

func relTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return humanize.Time(*t)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
