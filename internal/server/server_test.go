package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmdznr/oss-project-sync/internal/cancel"
	"github.com/chmdznr/oss-project-sync/internal/config"
	"github.com/chmdznr/oss-project-sync/internal/db"
	"github.com/chmdznr/oss-project-sync/internal/sync"
	"github.com/chmdznr/oss-project-sync/pkg/models"
)

const testSecret = "s3cret"

type fakeScheduler struct {
	mu       gosync.Mutex
	all      []models.Trigger
	one      []string
	oneError error
}

func (f *fakeScheduler) TriggerAll(_ context.Context, trigger models.Trigger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.all = append(f.all, trigger)
}

func (f *fakeScheduler) TriggerOne(_ context.Context, projectID string, _ models.Trigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.oneError != nil {
		return f.oneError
	}
	f.one = append(f.one, projectID)
	return nil
}

type fakeWebhook struct {
	urls []string
	err  error
}

func (f *fakeWebhook) Test(_ context.Context, url string) error {
	f.urls = append(f.urls, url)
	return f.err
}

type testEnv struct {
	handler   http.Handler
	store     *db.DB
	scheduler *fakeScheduler
	registry  *cancel.Registry
	webhook   *fakeWebhook
	project   *models.Project
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	project := &models.Project{Name: "alpha", SourceFolderID: "src/alpha/", DestFolderID: "dst/alpha/"}
	require.NoError(t, store.CreateProject(context.Background(), project))

	env := &testEnv{
		store:     store,
		scheduler: &fakeScheduler{},
		registry:  cancel.NewRegistry(),
		webhook:   &fakeWebhook{},
		project:   project,
	}
	env.handler = New(Config{
		CronSecret: testSecret,
		Scheduler:  env.scheduler,
		Stopper:    env.registry,
		Store:      store,
		Settings:   config.NewSettingsProvider(store, models.DefaultSettings(), time.Minute),
		Webhook:    env.webhook,
	}).Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testSecret)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCronAuth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + testSecret, http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + testSecret, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/sync/all", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, unauthorizedMessage, decode[APIError](t, w).Error)
			}
		})
	}
}

func TestCronAuthDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CronAuth(""))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSyncAll(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/sync/all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[TriggerResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, msgSyncAllStarted, resp.Message)
	assert.Equal(t, statusProcessing, resp.Status)

	env.do(t, http.MethodPost, "/api/sync/all", map[string]string{"triggeredBy": "manual"})
	env.do(t, http.MethodPost, "/api/sync/all", map[string]string{"triggeredBy": "bogus"})
	assert.Equal(t, []models.Trigger{models.TriggerScheduled, models.TriggerManual, models.TriggerScheduled}, env.scheduler.all)
}

func TestSyncOne(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/sync/alpha", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, msgSyncStarted, decode[TriggerResponse](t, w).Message)
	assert.Equal(t, []string{env.project.ID}, env.scheduler.one)

	w = env.do(t, http.MethodPost, "/api/sync/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decode[APIError](t, w).Code)

	env.scheduler.oneError = sync.ErrProjectBusy
	w = env.do(t, http.MethodPost, "/api/sync/"+env.project.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	env.scheduler.oneError = errors.New("boom")
	w = env.do(t, http.MethodPost, "/api/sync/"+env.project.ID, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStop(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/sync/stop/"+env.project.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, msgStopRequested, decode[TriggerResponse](t, w).Message)
	assert.True(t, env.registry.ShouldStop(env.project.ID))

	w = env.do(t, http.MethodPost, "/api/sync/stop/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := &models.SyncSession{
		ID:          "s1",
		ProjectID:   env.project.ID,
		ProjectName: env.project.Name,
		RunID:       "run-1",
		Timestamp:   time.Now(),
		Status:      models.StatusSuccess,
		TriggeredBy: models.TriggerManual,
	}
	require.NoError(t, env.store.SaveSession(ctx, session))
	require.NoError(t, env.store.AppendFileLogs(ctx, session.ID, []models.FileLog{{FileName: "a.txt", Status: models.FileSuccess}}))

	w := env.do(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	projects := decode[[]models.Project](t, w)
	require.Len(t, projects, 1)
	assert.Equal(t, "alpha", projects[0].Name)

	w = env.do(t, http.MethodGet, "/api/projects/alpha/sessions?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sessions := decode[[]models.SyncSession](t, w)
	require.Len(t, sessions, 1)
	assert.Equal(t, "run-1", sessions[0].RunID)

	w = env.do(t, http.MethodGet, "/api/projects/alpha/sessions?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/sessions/s1/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[[]models.FileLog](t, w)
	require.Len(t, logs, 1)
	assert.Equal(t, "a.txt", logs[0].FileName)
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.DefaultSyncCutoffSeconds, decode[models.Settings](t, w).SyncCutoffSeconds)

	w = env.do(t, http.MethodPut, "/api/settings", map[string]any{"syncCutoffSeconds": 60, "webhookUrl": "https://chat.example/hook"})
	require.Equal(t, http.StatusOK, w.Code)
	saved := decode[models.Settings](t, w)
	assert.Equal(t, 60, saved.SyncCutoffSeconds)
	assert.Equal(t, models.DefaultSyncConcurrency, saved.SyncConcurrency)

	w = env.do(t, http.MethodGet, "/api/settings", nil)
	assert.Equal(t, "https://chat.example/hook", decode[models.Settings](t, w).WebhookURL)

	w = env.do(t, http.MethodPost, "/api/settings/webhook/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"https://chat.example/hook"}, env.webhook.urls)

	env.webhook.err = errors.New("Gửi thất bại: 404")
	w = env.do(t, http.MethodPost, "/api/settings/webhook/test", map[string]string{"webhookUrl": "https://other.example"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestResetProject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	checkpoint := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)
	require.NoError(t, env.store.UpdateProject(ctx, models.ProjectUpdate{
		ID:                       env.project.ID,
		NextSyncTimestamp:        &checkpoint,
		LastSuccessSyncTimestamp: &checkpoint,
	}))

	w := env.do(t, http.MethodPost, "/api/projects/alpha/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.Project](t, w)
	assert.Equal(t, env.project.ID, got.ID)
	assert.Nil(t, got.NextSyncTimestamp)

	stored, err := env.store.GetProject(ctx, env.project.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.NextSyncTimestamp)
	assert.Nil(t, stored.LastSuccessSyncTimestamp)
	assert.NotEqual(t, models.StatusPending, stored.LastSyncStatus)

	w = env.do(t, http.MethodPost, "/api/projects/missing/reset", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
