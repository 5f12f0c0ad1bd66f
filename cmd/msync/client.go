package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"github.com/urfave/cli/v2"

	"github.com/chmdznr/oss-project-sync/internal/server"
	"github.com/chmdznr/oss-project-sync/pkg/version"
)

func serverFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "server",
		Usage: "Base url of a running 'msync serve', defaults to server.addr",
	}
}

func stopCommand() *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "Ask a running server to stop syncing a project after the current file",
		Flags: []cli.Flag{projectFlag(), serverFlag()},
		Action: func(c *cli.Context) error {
			resp, err := callServer(c, "/api/sync/stop/"+c.String("project"), nil)
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		},
	}
}

func triggerCommand() *cli.Command {
	return &cli.Command{
		Name:  "trigger",
		Usage: "Start a background sync on a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Project id or name, all projects when empty"},
			serverFlag(),
		},
		Action: func(c *cli.Context) error {
			path := "/api/sync/all"
			var body any = map[string]string{"triggeredBy": "manual"}
			if p := c.String("project"); p != "" {
				path = "/api/sync/" + p
				body = nil
			}
			resp, err := callServer(c, path, body)
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		},
	}
}

// callServer posts to the trigger API with the configured cron secret.
func callServer(c *cli.Context, path string, body any) (*server.TriggerResponse, error) {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	base := c.String("server")
	if base == "" {
		base = baseURL(cfg.Server.Addr)
	}

	client := req.C().
		SetTimeout(30*time.Second).
		SetUserAgent("msync/"+version.Version).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal)

	var (
		ok     server.TriggerResponse
		failed server.APIError
	)
	r := client.R().
		SetContext(c.Context).
		SetSuccessResult(&ok).
		SetErrorResult(&failed)
	if cfg.Server.CronSecret != "" {
		r.SetBearerAuthToken(cfg.Server.CronSecret)
	}
	if body != nil {
		r.SetBody(body)
	}

	resp, err := r.Post(strings.TrimRight(base, "/") + path)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	if resp.IsErrorState() {
		if failed.Error != "" {
			return nil, fmt.Errorf("server: %s", failed.Error)
		}
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return &ok, nil
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
