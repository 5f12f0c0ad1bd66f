// Package server exposes the sync triggers over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/chmdznr/oss-project-sync/pkg/models"
)

// Scheduler starts background runs.
type Scheduler interface {
	TriggerAll(ctx context.Context, trigger models.Trigger)
	TriggerOne(ctx context.Context, projectID string, trigger models.Trigger) error
}

// Stopper records cooperative stop requests.
type Stopper interface {
	RequestStop(projectID string)
}

// Store is the read side the API serves from.
type Store interface {
	ListProjects(ctx context.Context) ([]models.Project, error)
	FindProject(ctx context.Context, idOrName string) (*models.Project, error)
	RecentSessions(ctx context.Context, projectID string, limit int) ([]models.SyncSession, error)
	FileLogs(ctx context.Context, sessionID string) ([]models.FileLog, error)
	ResetProject(ctx context.Context, id string) (*models.Project, error)
}

// Settings reads and writes the runtime settings.
type Settings interface {
	Get(ctx context.Context) (models.Settings, error)
	Save(ctx context.Context, settings models.Settings) error
}

// WebhookTester sends a test message to a webhook.
type WebhookTester interface {
	Test(ctx context.Context, webhookURL string) error
}

// Config holds the dependencies of a Server.
type Config struct {
	Addr       string
	CronSecret string
	Scheduler  Scheduler
	Stopper    Stopper
	Store      Store
	Settings   Settings
	Webhook    WebhookTester
	Logger     *slog.Logger
}

type Server struct {
	config Config
	server *http.Server
	logger *slog.Logger
}

func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Server{
		config: config,
		logger: config.Logger,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           SetupRoutes(config),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("server start", "addr", s.config.Addr)
	defer s.logger.Info("server stop")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return s.Stop(context.WithoutCancel(ctx))
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
