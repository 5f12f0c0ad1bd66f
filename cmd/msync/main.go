package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/chmdznr/oss-project-sync/pkg/version"
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	app := &cli.App{
		Name:                 "msync",
		Usage:                "Incremental folder sync between object storage locations",
		Version:              version.Version,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the config file",
				EnvVars: []string{"MSYNC_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			versionCommand(),
			createCommand(),
			listCommand(),
			pauseCommand(),
			resumeCommand(),
			deleteCommand(),
			resetCommand(),
			statusCommand(),
			logsCommand(),
			syncCommand(),
			stopCommand(),
			triggerCommand(),
			settingsCommand(),
			serveCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print detailed version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("Version:    %s\n", version.Version)
			fmt.Printf("Git commit: %s\n", version.GitCommit)
			fmt.Printf("Built:      %s\n", version.BuildTime)
			return nil
		},
	}
}
