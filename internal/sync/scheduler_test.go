package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmdznr/oss-project-sync/internal/remote"
	"github.com/chmdznr/oss-project-sync/pkg/models"
)

type staticSettings struct {
	settings models.Settings
}

func (s staticSettings) Get(context.Context) (models.Settings, error) {
	return s.settings, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls int
	runs  []string
	count int
	err   error
}

func (n *recordingNotifier) SendSyncSummary(_ context.Context, _, runID string, sessions []models.SyncSession) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.runs = append(n.runs, runID)
	n.count += len(sessions)
	return n.err
}

type recordingProgress struct {
	mu    sync.Mutex
	total int
	order []string
	done  bool
}

func (p *recordingProgress) Start(total int) { p.total = total }

func (p *recordingProgress) Done(project models.Project, _ *models.SyncSession, _ error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = append(p.order, project.Name)
}

func (p *recordingProgress) Finish() { p.done = true }

func newScheduler(f *fixture, settings models.Settings, notifier Notifier) *Scheduler {
	return NewScheduler(SchedulerConfig{
		Engine:   f.engine,
		Projects: f.store,
		Sessions: f.store,
		Settings: staticSettings{settings},
		Notifier: notifier,
		Now:      f.clock.Now,
	})
}

func ts(t time.Time) *time.Time { return &t }

func TestPrioritize(t *testing.T) {
	t1 := baseTime.Add(-3 * time.Hour)
	t2 := baseTime.Add(-2 * time.Hour)
	t3 := baseTime.Add(-1 * time.Hour)

	projects := []models.Project{
		{Name: "A", LastSyncStatus: models.StatusError, LastSyncTimestamp: ts(t1)},
		{Name: "B", LastSyncStatus: models.StatusSuccess, LastSyncTimestamp: ts(t2)},
		{Name: "C", LastSyncStatus: models.StatusInterrupted, LastSyncTimestamp: ts(t3)},
		{Name: "D", LastSyncStatus: models.StatusWarning, LastSyncTimestamp: ts(t1)},
		{Name: "E"},
	}

	var names []string
	for _, p := range Prioritize(projects) {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"C", "A", "E", "D", "B"}, names)
	assert.Equal(t, "A", projects[0].Name, "input is not reordered")
}

func TestEligible(t *testing.T) {
	projects := []models.Project{
		{Name: "active", Status: models.ProjectActive},
		{Name: "paused", Status: models.ProjectPaused},
		{Name: "errored", Status: models.ProjectError},
		{Name: "deleted", Status: models.ProjectActive, IsDeleted: true},
	}
	eligible := Eligible(projects)
	require.Len(t, eligible, 1)
	assert.Equal(t, "active", eligible[0].Name)
}

func TestSyncAllAutoScheduleGate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.PutFile("src/a.txt", 1, baseTime.Add(-time.Hour))
	p := f.createProject(t, "alpha", "src/", "dst/")

	settings := testSettings()
	settings.EnableAutoSchedule = false
	s := newScheduler(f, settings, nil)

	res, err := s.SyncAll(ctx, models.TriggerScheduled, nil)
	require.NoError(t, err)
	assert.True(t, res.Disabled)
	assert.Equal(t, 0, res.SessionsCount)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, models.StatusNone, f.reload(t, p.ID).LastSyncStatus, "project untouched")
	assert.False(t, f.mem.Exists("dst/a.txt"))

	res, err = s.SyncAll(ctx, models.TriggerManual, nil)
	require.NoError(t, err)
	assert.False(t, res.Disabled)
	assert.Equal(t, 1, res.SessionsCount)
	assert.True(t, f.mem.Exists("dst/a.txt"))
}

func TestSyncAllDispatchOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := f.createProject(t, "A", "a/", "out-a/")
	b := f.createProject(t, "B", "b/", "out-b/")
	c := f.createProject(t, "C", "c/", "out-c/")
	paused := f.createProject(t, "P", "p/", "out-p/")

	set := func(id string, status models.SyncStatus, at time.Time) {
		require.NoError(t, f.store.UpdateProject(ctx, models.ProjectUpdate{ID: id, LastSyncStatus: &status, LastSyncTimestamp: &at}))
	}
	set(a.ID, models.StatusError, baseTime.Add(-3*time.Hour))
	set(b.ID, models.StatusSuccess, baseTime.Add(-2*time.Hour))
	set(c.ID, models.StatusInterrupted, baseTime.Add(-1*time.Hour))
	pausedStatus := models.ProjectPaused
	require.NoError(t, f.store.UpdateProject(ctx, models.ProjectUpdate{ID: paused.ID, Status: &pausedStatus}))

	settings := testSettings()
	settings.SyncConcurrency = 1
	progress := &recordingProgress{}
	res, err := newScheduler(f, settings, nil).SyncAll(ctx, models.TriggerScheduled, progress)
	require.NoError(t, err)

	assert.Equal(t, 3, res.SessionsCount)
	assert.Equal(t, 3, progress.total)
	assert.Equal(t, []string{"C", "A", "B"}, progress.order)
	assert.True(t, progress.done)
}

func TestSyncAllCountsFailedProjects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.PutFile("good/a.txt", 1, baseTime.Add(-time.Hour))
	f.mem.Fail("ListChanged", "bad/", &remote.Error{Op: "ListChanged", StatusCode: 403, Err: errors.New("access denied")}, -1)
	good := f.createProject(t, "good", "good/", "out-good/")
	bad := f.createProject(t, "bad", "bad/", "out-bad/")

	notifier := &recordingNotifier{}
	settings := testSettings()
	settings.EnableNotifications = true
	settings.WebhookURL = "https://chat.example.com/hook"
	res, err := newScheduler(f, settings, notifier).SyncAll(ctx, models.TriggerScheduled, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.SessionsCount)
	statuses := map[string]models.SyncStatus{}
	for _, s := range res.Sessions {
		statuses[s.ProjectName] = s.Status
	}
	assert.Equal(t, models.StatusSuccess, statuses["good"])
	assert.Equal(t, models.StatusError, statuses["bad"])

	assert.Equal(t, models.ProjectActive, f.reload(t, good.ID).Status)
	assert.Equal(t, models.ProjectError, f.reload(t, bad.ID).Status)

	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, 2, notifier.count)
	assert.Equal(t, []string{res.RunID}, notifier.runs)
}

func TestSyncAllSyntheticErrorSession(t *testing.T) {
	ctx := context.Background()
	var faulty *faultyStore
	f := newFixtureWith(t, nil, func(s Store) Store {
		faulty = &faultyStore{Store: s, failCreateFor: map[string]int{}}
		return faulty
	})
	broken := f.createProject(t, "broken", "src/", "dst/")
	f.createProject(t, "fine", "src2/", "dst2/")
	faulty.failCreateFor[broken.ID] = 1

	res, err := newScheduler(f, testSettings(), nil).SyncAll(ctx, models.TriggerScheduled, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SessionsCount)

	var synthetic *models.SyncSession
	for i := range res.Sessions {
		if res.Sessions[i].ProjectID == broken.ID {
			synthetic = &res.Sessions[i]
		}
	}
	require.NotNil(t, synthetic)
	assert.Equal(t, models.StatusError, synthetic.Status)
	assert.Contains(t, synthetic.ErrorMessage, "create session")
	assert.Equal(t, res.RunID, synthetic.RunID)

	stored, err := f.store.RecentSessions(ctx, broken.ID, 5)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, models.StatusError, stored[0].Status)

	updated := f.reload(t, broken.ID)
	assert.Equal(t, models.ProjectError, updated.Status)
	assert.Equal(t, models.StatusError, updated.LastSyncStatus)
}

func TestSyncAllNotificationFailureIgnored(t *testing.T) {
	f := newFixture(t)
	f.createProject(t, "alpha", "src/", "dst/")

	notifier := &recordingNotifier{err: errors.New("webhook down")}
	settings := testSettings()
	settings.EnableNotifications = true
	settings.WebhookURL = "https://chat.example.com/hook"

	res, err := newScheduler(f, settings, notifier).SyncAll(context.Background(), models.TriggerManual, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SessionsCount)
	assert.Equal(t, 1, notifier.calls)
}

func TestSyncAllNotificationsDisabled(t *testing.T) {
	f := newFixture(t)
	f.createProject(t, "alpha", "src/", "dst/")

	notifier := &recordingNotifier{}
	settings := testSettings()
	settings.WebhookURL = "https://chat.example.com/hook"

	_, err := newScheduler(f, settings, notifier).SyncAll(context.Background(), models.TriggerManual, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, notifier.calls)
}

// concurrencyProbe records how many listings run at once.
type concurrencyProbe struct {
	remote.Storage
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (c *concurrencyProbe) ListChanged(ctx context.Context, folderID string, since time.Time) ([]remote.File, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return c.Storage.ListChanged(ctx, folderID, since)
}

func TestSyncAllBoundedConcurrency(t *testing.T) {
	probe := &concurrencyProbe{}
	f := newFixtureWith(t, func(s remote.Storage) remote.Storage {
		probe.Storage = s
		return probe
	}, nil)
	for _, name := range []string{"p1", "p2", "p3", "p4", "p5", "p6"} {
		f.createProject(t, name, name+"/", "out-"+name+"/")
	}

	settings := testSettings()
	settings.SyncConcurrency = 2
	res, err := newScheduler(f, settings, nil).SyncAll(context.Background(), models.TriggerManual, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, res.SessionsCount)
	assert.LessOrEqual(t, probe.peak.Load(), int32(2))
	assert.GreaterOrEqual(t, probe.peak.Load(), int32(1))
}

func TestSyncAllSkipsBusyProjects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.createProject(t, "alpha", "src/", "dst/")
	f.createProject(t, "beta", "src2/", "dst2/")

	// The pending marker is fresh relative to the fixture clock.
	f.clock.t = p.UpdatedAt
	pending := models.StatusPending
	require.NoError(t, f.store.UpdateProject(ctx, models.ProjectUpdate{ID: p.ID, LastSyncStatus: &pending}))

	res, err := newScheduler(f, testSettings(), nil).SyncAll(ctx, models.TriggerManual, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SessionsCount)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "beta", res.Sessions[0].ProjectName)
}

func TestSyncOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.PutFile("src/a.txt", 3, baseTime.Add(-time.Hour))
	p := f.createProject(t, "alpha", "src/", "dst/")

	notifier := &recordingNotifier{}
	settings := testSettings()
	settings.EnableNotifications = true
	settings.WebhookURL = "https://chat.example.com/hook"
	s := newScheduler(f, settings, notifier)

	session, err := s.SyncOne(ctx, p.ID, models.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, session.Status)
	assert.Equal(t, models.TriggerManual, session.TriggeredBy)
	assert.Equal(t, int64(3), session.TotalSizeSynced)
	assert.Equal(t, 1, notifier.calls)

	_, err = s.SyncOne(ctx, "missing", models.TriggerManual)
	assert.Error(t, err)
}

func TestTriggerOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.PutFile("src/a.txt", 1, baseTime.Add(-time.Hour))
	p := f.createProject(t, "alpha", "src/", "dst/")
	f.clock.t = time.Now()
	s := newScheduler(f, testSettings(), nil)

	require.NoError(t, s.MarkPending(ctx, p.ID))
	assert.ErrorIs(t, s.TriggerOne(ctx, p.ID, models.TriggerManual), ErrProjectBusy, "a fresh pending marker blocks a second trigger")

	success := models.StatusSuccess
	require.NoError(t, f.store.UpdateProject(ctx, models.ProjectUpdate{ID: p.ID, LastSyncStatus: &success}))

	require.NoError(t, s.TriggerOne(ctx, p.ID, models.TriggerManual))
	require.Eventually(t, func() bool {
		return f.mem.Exists("dst/a.txt")
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return f.reload(t, p.ID).LastSyncStatus == models.StatusSuccess
	}, 5*time.Second, 10*time.Millisecond)
}
