package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chmdznr/oss-project-sync/internal/db"
	"github.com/chmdznr/oss-project-sync/internal/sync"
	"github.com/chmdznr/oss-project-sync/pkg/models"
	"github.com/chmdznr/oss-project-sync/pkg/version"
)

const (
	msgSyncAllStarted = "Đã bắt đầu đồng bộ toàn bộ dự án trong nền."
	msgSyncStarted    = "Quá trình đồng bộ đã bắt đầu và đang chạy trong nền."
	msgStopRequested  = "Đã gửi yêu cầu dừng sync. Tiến trình sẽ dừng an toàn sau khi hoàn tất file hiện tại."
	msgWebhookOK      = "Đã gửi tin nhắn test thành công!"

	statusProcessing = "processing"
	defaultSessions  = 20
	maxSessions      = 200
)

// Error codes returned in API error bodies.
const (
	CodeUnauthorized   = "E_UNAUTHORIZED"
	CodeInvalidRequest = "E_INVALID_REQUEST"
	CodeNotFound       = "E_NOT_FOUND"
	CodeBusy           = "E_PROJECT_BUSY"
	CodeInternal       = "E_INTERNAL"
)

// APIError is the body of every failed request.
type APIError struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

// TriggerResponse acknowledges a background run.
type TriggerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type triggerRequest struct {
	TriggeredBy models.Trigger `json:"triggeredBy"`
}

func abortWithError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, APIError{Code: code, Error: msg})
}

type handlers struct {
	cfg Config
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
}

func (h *handlers) syncAll(c *gin.Context) {
	var body triggerRequest
	// An empty body is a scheduled call.
	_ = c.ShouldBindJSON(&body)
	trigger := body.TriggeredBy
	if trigger != models.TriggerManual {
		trigger = models.TriggerScheduled
	}

	h.cfg.Scheduler.TriggerAll(c.Request.Context(), trigger)
	c.JSON(http.StatusOK, TriggerResponse{Success: true, Message: msgSyncAllStarted, Status: statusProcessing})
}

func (h *handlers) syncOne(c *gin.Context) {
	project, ok := h.project(c)
	if !ok {
		return
	}

	err := h.cfg.Scheduler.TriggerOne(c.Request.Context(), project.ID, models.TriggerManual)
	switch {
	case errors.Is(err, sync.ErrProjectBusy):
		abortWithError(c, http.StatusConflict, CodeBusy, err.Error())
	case errors.Is(err, db.ErrProjectNotFound):
		abortWithError(c, http.StatusNotFound, CodeNotFound, err.Error())
	case err != nil:
		abortWithError(c, http.StatusInternalServerError, CodeInternal, err.Error())
	default:
		c.JSON(http.StatusOK, TriggerResponse{Success: true, Message: msgSyncStarted, Status: statusProcessing})
	}
}

func (h *handlers) stop(c *gin.Context) {
	project, ok := h.project(c)
	if !ok {
		return
	}
	h.cfg.Stopper.RequestStop(project.ID)
	c.JSON(http.StatusOK, TriggerResponse{Success: true, Message: msgStopRequested})
}

func (h *handlers) listProjects(c *gin.Context) {
	projects, err := h.cfg.Store.ListProjects(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	c.JSON(http.StatusOK, projects)
}

func (h *handlers) listSessions(c *gin.Context) {
	project, ok := h.project(c)
	if !ok {
		return
	}
	limit := defaultSessions
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSessions)
	}

	sessions, err := h.cfg.Store.RecentSessions(c.Request.Context(), project.ID, limit)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if sessions == nil {
		sessions = []models.SyncSession{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *handlers) resetProject(c *gin.Context) {
	project, ok := h.project(c)
	if !ok {
		return
	}
	reset, err := h.cfg.Store.ResetProject(c.Request.Context(), project.ID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, reset)
}

func (h *handlers) fileLogs(c *gin.Context) {
	logs, err := h.cfg.Store.FileLogs(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if logs == nil {
		logs = []models.FileLog{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *handlers) getSettings(c *gin.Context) {
	settings, err := h.cfg.Settings.Get(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *handlers) saveSettings(c *gin.Context) {
	current, err := h.cfg.Settings.Get(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	// Fields missing from the body keep their current value.
	if err := c.ShouldBindJSON(&current); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	if err := h.cfg.Settings.Save(c.Request.Context(), current.Normalize()); err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, current.Normalize())
}

func (h *handlers) testWebhook(c *gin.Context) {
	var body struct {
		WebhookURL string `json:"webhookUrl"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.WebhookURL == "" {
		settings, err := h.cfg.Settings.Get(c.Request.Context())
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, CodeInternal, err.Error())
			return
		}
		body.WebhookURL = settings.WebhookURL
	}
	if body.WebhookURL == "" {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "webhook url is not configured")
		return
	}
	if err := h.cfg.Webhook.Test(c.Request.Context(), body.WebhookURL); err != nil {
		abortWithError(c, http.StatusBadGateway, CodeInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, TriggerResponse{Success: true, Message: msgWebhookOK})
}

// project resolves :projectId by id or name, writing the error response itself.
func (h *handlers) project(c *gin.Context) (*models.Project, bool) {
	project, err := h.cfg.Store.FindProject(c.Request.Context(), c.Param("projectId"))
	if errors.Is(err, db.ErrProjectNotFound) {
		abortWithError(c, http.StatusNotFound, CodeNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternal, err.Error())
		return nil, false
	}
	return project, true
}
