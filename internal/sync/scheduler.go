package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chmdznr/oss-project-sync/pkg/models"
	"github.com/chmdznr/oss-project-sync/pkg/utils"
)

// SettingsSource supplies the current runtime settings.
type SettingsSource interface {
	Get(ctx context.Context) (models.Settings, error)
}

// Notifier delivers a run summary. Failures are logged, never propagated.
type Notifier interface {
	SendSyncSummary(ctx context.Context, webhookURL, runID string, sessions []models.SyncSession) error
}

// Progress observes a run. Calls to Done may come from several goroutines.
type Progress interface {
	Start(total int)
	Done(project models.Project, session *models.SyncSession, err error)
	Finish()
}

// SchedulerConfig holds the collaborators of a Scheduler.
type SchedulerConfig struct {
	Engine   *Engine
	Projects ProjectStore
	Sessions SessionStore
	Settings SettingsSource
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// RunResult summarizes one SyncAll run.
type RunResult struct {
	RunID         string               `json:"runId"`
	SessionsCount int                  `json:"sessionsCount"`
	Sessions      []models.SyncSession `json:"sessions,omitempty"`
	// Skipped counts projects another run was already syncing.
	Skipped  int    `json:"skipped"`
	Disabled bool   `json:"disabled,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Scheduler runs the engine over many projects with bounded concurrency.
type Scheduler struct {
	engine   *Engine
	projects ProjectStore
	sessions SessionStore
	settings SettingsSource
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	// running holds the projects this process is currently syncing.
	running mapset.Set[string]
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		engine:   cfg.Engine,
		projects: cfg.Projects,
		sessions: cfg.Sessions,
		settings: cfg.Settings,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		now:      cfg.Now,
		running:  mapset.NewSet[string](),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Scheduler) loadSettings(ctx context.Context) models.Settings {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Warn("failed to load settings, using defaults", "error", err)
	}
	return settings.Normalize()
}

// Prioritize orders projects for dispatch: failed projects first, most
// recently attempted first, then healthy projects, least recently synced first.
func Prioritize(projects []models.Project) []models.Project {
	ordered := slices.Clone(projects)
	lastSync := func(p models.Project) time.Time {
		if p.LastSyncTimestamp == nil {
			return time.Time{}
		}
		return *p.LastSyncTimestamp
	}
	slices.SortStableFunc(ordered, func(a, b models.Project) int {
		aFailed, bFailed := a.LastSyncStatus.Failed(), b.LastSyncStatus.Failed()
		switch {
		case aFailed && !bFailed:
			return -1
		case !aFailed && bFailed:
			return 1
		case aFailed:
			return lastSync(b).Compare(lastSync(a))
		default:
			return lastSync(a).Compare(lastSync(b))
		}
	})
	return ordered
}

// Eligible keeps the active projects that are not deleted.
func Eligible(projects []models.Project) []models.Project {
	var eligible []models.Project
	for _, p := range projects {
		if p.Status == models.ProjectActive && !p.IsDeleted {
			eligible = append(eligible, p)
		}
	}
	return eligible
}

// SyncAll syncs every eligible project. Scheduled runs are skipped while
// auto scheduling is disabled. progress may be nil.
func (s *Scheduler) SyncAll(ctx context.Context, trigger models.Trigger, progress Progress) (*RunResult, error) {
	runID := utils.NewRunID(s.now())
	settings := s.loadSettings(ctx)

	if trigger != models.TriggerManual && !settings.EnableAutoSchedule {
		s.logger.Info("auto schedule is disabled, skipping run", "runId", runID)
		return &RunResult{RunID: runID, Disabled: true, Message: "Auto schedule disabled"}, nil
	}

	all, err := s.projects.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	projects := Prioritize(Eligible(all))
	s.logger.Info("sync run started", "runId", runID, "trigger", trigger, "projects", len(projects), "concurrency", settings.SyncConcurrency)

	if progress != nil {
		progress.Start(len(projects))
		defer progress.Finish()
	}

	type outcome struct {
		session *models.SyncSession
		busy    bool
	}
	outcomes := make([]outcome, len(projects))

	var g errgroup.Group
	g.SetLimit(settings.SyncConcurrency)
	for i := range projects {
		project := projects[i]
		g.Go(func() error {
			session, err := s.runProject(ctx, &project, runID, settings, trigger, false)
			if errors.Is(err, ErrProjectBusy) {
				outcomes[i].busy = true
			} else {
				outcomes[i].session = session
			}
			if progress != nil {
				progress.Done(project, session, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := &RunResult{RunID: runID}
	for _, o := range outcomes {
		switch {
		case o.busy:
			res.Skipped++
		case o.session != nil:
			res.Sessions = append(res.Sessions, *o.session)
		}
	}
	res.SessionsCount = len(res.Sessions)
	res.Message = fmt.Sprintf("Synced %d projects", res.SessionsCount)

	s.notify(ctx, settings, runID, res.Sessions)
	s.logger.Info("sync run finished", "runId", runID, "sessions", res.SessionsCount, "skipped", res.Skipped)
	return res, nil
}

// SyncOne syncs a single project regardless of its status.
func (s *Scheduler) SyncOne(ctx context.Context, projectID string, trigger models.Trigger) (*models.SyncSession, error) {
	return s.syncOne(ctx, projectID, trigger, false)
}

func (s *Scheduler) syncOne(ctx context.Context, projectID string, trigger models.Trigger, claimed bool) (*models.SyncSession, error) {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	runID := utils.NewRunID(s.now())
	settings := s.loadSettings(ctx)

	session, err := s.runProject(ctx, project, runID, settings, trigger, claimed)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, settings, runID, []models.SyncSession{*session})
	return session, nil
}

// MarkPending claims a project for an upcoming run so that concurrent
// triggers see it as busy.
func (s *Scheduler) MarkPending(ctx context.Context, projectID string) error {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	settings := s.loadSettings(ctx)
	if s.running.Contains(projectID) || project.Busy(s.now(), settings.StaleLockAfter) {
		return ErrProjectBusy
	}
	pending := models.StatusPending
	return s.projects.UpdateProject(ctx, models.ProjectUpdate{ID: projectID, LastSyncStatus: &pending})
}

// TriggerOne claims a project and syncs it in the background. It returns
// once the claim is made.
func (s *Scheduler) TriggerOne(ctx context.Context, projectID string, trigger models.Trigger) error {
	if err := s.MarkPending(ctx, projectID); err != nil {
		return err
	}
	s.Start(ctx, "sync "+projectID, func(ctx context.Context) error {
		_, err := s.syncOne(ctx, projectID, trigger, true)
		return err
	})
	return nil
}

// TriggerAll runs SyncAll in the background.
func (s *Scheduler) TriggerAll(ctx context.Context, trigger models.Trigger) {
	s.Start(ctx, "sync all", func(ctx context.Context) error {
		_, err := s.SyncAll(ctx, trigger, nil)
		return err
	})
}

// Start runs fn in a detached goroutine. Its error is logged, not returned.
func (s *Scheduler) Start(ctx context.Context, name string, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background task panicked", "task", name, "panic", r)
			}
		}()
		if err := fn(ctx); err != nil && !errors.Is(err, ErrProjectBusy) {
			s.logger.Error("background task failed", "task", name, "error", err)
		}
	}()
}

// runProject claims and syncs one project, converting anything that escapes
// the engine into an error session.
func (s *Scheduler) runProject(ctx context.Context, project *models.Project, runID string, settings models.Settings, trigger models.Trigger, claimed bool) (session *models.SyncSession, err error) {
	if !s.running.Add(project.ID) {
		return nil, ErrProjectBusy
	}
	defer s.running.Remove(project.ID)

	if !claimed && project.Busy(s.now(), settings.StaleLockAfter) {
		s.logger.Info("project is busy, skipping", "project", project.Name)
		return nil, ErrProjectBusy
	}
	pending := models.StatusPending
	if err := s.projects.UpdateProject(ctx, models.ProjectUpdate{ID: project.ID, LastSyncStatus: &pending}); err != nil {
		s.logger.Warn("failed to mark project pending", "project", project.Name, "error", err)
	}

	defer func() {
		if r := recover(); r != nil {
			session = s.errorSession(ctx, project, runID, trigger, fmt.Sprintf("panic: %v", r))
			err = nil
		}
	}()

	session, err = s.engine.SyncProject(ctx, project, runID, settings, models.TriggerOptions{
		TriggeredBy:       trigger,
		OwnsPendingMarker: true,
	})
	if err != nil && !errors.Is(err, ErrProjectBusy) {
		s.logger.Error("project sync failed", "project", project.Name, "error", err)
		return s.errorSession(ctx, project, runID, trigger, err.Error()), nil
	}
	return session, err
}

// errorSession records a failed run that never produced a session of its own
// and flags the project.
func (s *Scheduler) errorSession(ctx context.Context, project *models.Project, runID string, trigger models.Trigger, msg string) *models.SyncSession {
	ctx = context.WithoutCancel(ctx)
	session := &models.SyncSession{
		ID:           uuid.NewString(),
		ProjectID:    project.ID,
		ProjectName:  project.Name,
		RunID:        runID,
		Timestamp:    s.now(),
		Status:       models.StatusError,
		Current:      models.StatusError,
		ErrorMessage: msg,
		TriggeredBy:  trigger,
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		s.logger.Error("failed to save error session", "project", project.Name, "error", err)
	}

	projectStatus := models.ProjectError
	syncStatus := models.StatusError
	if err := s.projects.UpdateProject(ctx, models.ProjectUpdate{
		ID:             project.ID,
		Status:         &projectStatus,
		LastSyncStatus: &syncStatus,
	}); err != nil {
		s.logger.Error("failed to flag project", "project", project.Name, "error", err)
	}
	return session
}

func (s *Scheduler) notify(ctx context.Context, settings models.Settings, runID string, sessions []models.SyncSession) {
	if s.notifier == nil || !settings.EnableNotifications || settings.WebhookURL == "" || len(sessions) == 0 {
		return
	}
	if err := s.notifier.SendSyncSummary(context.WithoutCancel(ctx), settings.WebhookURL, runID, sessions); err != nil {
		s.logger.Warn("failed to send sync summary", "runId", runID, "error", err)
	}
}
