package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"
)

func SetupRoutes(cfg Config) http.Handler {
	r := gin.New()

	httpLogger := cfg.Logger.WithGroup("http")
	r.Use(slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	}))
	r.Use(gin.Recovery())

	h := &handlers{cfg: cfg}

	r.GET("/healthz", h.health)

	api := r.Group("/api")
	api.Use(CronAuth(cfg.CronSecret))
	{
		api.POST("/sync/all", h.syncAll)
		api.POST("/sync/stop/:projectId", h.stop)
		api.POST("/sync/:projectId", h.syncOne)

		api.GET("/projects", h.listProjects)
		api.GET("/projects/:projectId/sessions", h.listSessions)
		api.POST("/projects/:projectId/reset", h.resetProject)
		api.GET("/sessions/:sessionId/logs", h.fileLogs)

		api.GET("/settings", h.getSettings)
		api.PUT("/settings", h.saveSettings)
		api.POST("/settings/webhook/test", h.testWebhook)
	}
	return r
}
