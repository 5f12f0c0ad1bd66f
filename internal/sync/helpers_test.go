package sync

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chmdznr/oss-project-sync/internal/cancel"
	"github.com/chmdznr/oss-project-sync/internal/db"
	"github.com/chmdznr/oss-project-sync/internal/remote"
	"github.com/chmdznr/oss-project-sync/pkg/models"
)

var baseTime = time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)

// fakeClock advances by step on every reading.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func (c *fakeClock) SetStep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = d
}

type fixture struct {
	store    *db.DB
	mem      *remote.MemoryStorage
	registry *cancel.Registry
	clock    *fakeClock
	engine   *Engine

	projectID string
}

func fastPolicy() remote.RetryPolicy {
	return remote.RetryPolicy{MaxRetries: 3, BaseDelay: time.Nanosecond, MaxDelay: time.Nanosecond}
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, nil, nil)
}

// newFixtureWith lets tests wrap the storage or the store.
func newFixtureWith(t *testing.T, wrapStorage func(remote.Storage) remote.Storage, wrapStore func(Store) Store) *fixture {
	t.Helper()
	store, err := db.New(filepath.Join(t.TempDir(), "msync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store:    store,
		mem:      remote.NewMemoryStorage(),
		registry: cancel.NewRegistry(),
		clock:    &fakeClock{t: baseTime, step: time.Millisecond},
	}

	var storage remote.Storage = f.mem
	if wrapStorage != nil {
		storage = wrapStorage(storage)
	}
	var engineStore Store = store
	if wrapStore != nil {
		engineStore = wrapStore(store)
	}

	f.engine = NewEngine(EngineConfig{
		Store:    engineStore,
		Gateway:  remote.NewGateway(storage, remote.WithRetryPolicy(fastPolicy())),
		Registry: f.registry,
		Now:      f.clock.Now,
	})
	return f
}

func (f *fixture) createProject(t *testing.T, name, source, dest string) *models.Project {
	t.Helper()
	p := &models.Project{Name: name, SourceFolderID: source, DestFolderID: dest}
	require.NoError(t, f.store.CreateProject(context.Background(), p))
	return f.reload(t, p.ID)
}

func (f *fixture) reload(t *testing.T, id string) *models.Project {
	t.Helper()
	p, err := f.store.GetProject(context.Background(), id)
	require.NoError(t, err)
	return p
}

// withCheckpoint stores checkpoint as the project's next sync timestamp.
func (f *fixture) withCheckpoint(t *testing.T, p *models.Project, checkpoint time.Time) *models.Project {
	t.Helper()
	require.NoError(t, f.store.UpdateProject(context.Background(), models.ProjectUpdate{ID: p.ID, NextSyncTimestamp: &checkpoint}))
	return f.reload(t, p.ID)
}

// assertCheckpoint checks the project's next sync timestamp is still checkpoint.
func (f *fixture) assertCheckpoint(t *testing.T, projectID string, checkpoint time.Time) {
	t.Helper()
	updated := f.reload(t, projectID)
	require.NotNil(t, updated.NextSyncTimestamp)
	require.True(t, checkpoint.Equal(*updated.NextSyncTimestamp), "checkpoint moved to %s", updated.NextSyncTimestamp)
}

func testSettings() models.Settings {
	s := models.DefaultSettings()
	s.EnableNotifications = false
	return s
}

func (f *fixture) sync(t *testing.T, p *models.Project, settings models.Settings) *models.SyncSession {
	t.Helper()
	session, err := f.engine.SyncProject(context.Background(), p, "260214-150000", settings, models.TriggerOptions{TriggeredBy: models.TriggerManual})
	require.NoError(t, err)
	require.NotNil(t, session)
	return session
}

// hookStorage runs a callback after each successful copy.
type hookStorage struct {
	remote.Storage
	afterCopy func(fileID string)
}

func (h *hookStorage) Copy(ctx context.Context, fileID, destFolderID, name string) (remote.File, error) {
	f, err := h.Storage.Copy(ctx, fileID, destFolderID, name)
	if err == nil && h.afterCopy != nil {
		h.afterCopy(fileID)
	}
	return f, err
}

// cancelStorage cancels the run from inside the named call and fails that
// call with the context error, like a driver aborted mid request.
type cancelStorage struct {
	remote.Storage
	op     string
	cancel context.CancelFunc
}

func (c *cancelStorage) ListChanged(ctx context.Context, folderID string, since time.Time) ([]remote.File, error) {
	if c.op == "ListChanged" {
		c.cancel()
		return nil, ctx.Err()
	}
	return c.Storage.ListChanged(ctx, folderID, since)
}

func (c *cancelStorage) Copy(ctx context.Context, fileID, destFolderID, name string) (remote.File, error) {
	if c.op == "Copy" {
		c.cancel()
		return remote.File{}, ctx.Err()
	}
	return c.Storage.Copy(ctx, fileID, destFolderID, name)
}

// faultyStore fails selected writes.
type faultyStore struct {
	Store
	mu            sync.Mutex
	failAppend    bool
	failCreateFor map[string]int
}

var errStoreDown = errors.New("store unavailable")

func (s *faultyStore) AppendFileLogs(ctx context.Context, sessionID string, logs []models.FileLog) error {
	s.mu.Lock()
	fail := s.failAppend
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.Store.AppendFileLogs(ctx, sessionID, logs)
}

func (s *faultyStore) SaveSession(ctx context.Context, session *models.SyncSession) error {
	s.mu.Lock()
	if s.failCreateFor[session.ProjectID] > 0 {
		s.failCreateFor[session.ProjectID]--
		s.mu.Unlock()
		return errStoreDown
	}
	s.mu.Unlock()
	return s.Store.SaveSession(ctx, session)
}
