package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chmdznr/oss-project-sync/internal/cancel"
	"github.com/chmdznr/oss-project-sync/internal/remote"
	"github.com/chmdznr/oss-project-sync/pkg/models"
	"github.com/chmdznr/oss-project-sync/pkg/utils"
)

// ErrProjectBusy is returned when another run holds the project's pending marker.
var ErrProjectBusy = errors.New("project sync already in progress")

const sourceGoneMessage = "Source file not found (deleted)"

// ProjectStore reads and updates projects.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
	UpdateProject(ctx context.Context, u models.ProjectUpdate) error
}

// SessionStore persists sync sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, session *models.SyncSession) error
	UpdateSession(ctx context.Context, id string, u models.SessionUpdate) error
	PendingSessions(ctx context.Context, projectID string) ([]models.SyncSession, error)
	FileLogs(ctx context.Context, sessionID string) ([]models.FileLog, error)
}

// FileLogStore appends file logs to a session.
type FileLogStore interface {
	AppendFileLogs(ctx context.Context, sessionID string, logs []models.FileLog) error
}

// HeartbeatSink records the last outcome of a project.
type HeartbeatSink interface {
	RecordHeartbeat(ctx context.Context, hb models.Heartbeat) error
}

// Store is everything the engine persists to. *db.DB implements it.
type Store interface {
	ProjectStore
	SessionStore
	FileLogStore
	HeartbeatSink
}

// EngineConfig holds the collaborators of an Engine.
type EngineConfig struct {
	Store    Store
	Gateway  *remote.Gateway
	Registry *cancel.Registry
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine copies the changed files of one project from its source folder
// into its destination folder.
type Engine struct {
	store    Store
	gateway  *remote.Gateway
	registry *cancel.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		store:    cfg.Store,
		gateway:  cfg.Gateway,
		registry: cfg.Registry,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if e.registry == nil {
		e.registry = cancel.NewRegistry()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Registry returns the stop registry polled by the engine.
func (e *Engine) Registry() *cancel.Registry {
	return e.registry
}

// walkState is the mutable state of one folder walk.
type walkState struct {
	project  *models.Project
	session  *models.SyncSession
	settings models.Settings
	gateway  *remote.Gateway
	logger   *slog.Logger

	since   time.Time
	started time.Time
	cutoff  time.Duration

	continueMode bool
	skipByID     map[string]time.Time
	skipByPath   map[string]time.Time

	batch       []models.FileLog
	interrupted bool
}

// SyncProject runs one session for project. Operational failures end up in
// the returned session, never in err. err is non-nil only when no session
// could be started: ErrProjectBusy, or a store failure before the session
// was created.
func (e *Engine) SyncProject(ctx context.Context, project *models.Project, runID string, settings models.Settings, opts models.TriggerOptions) (session *models.SyncSession, err error) {
	settings = settings.Normalize()
	started := e.now()

	if !opts.OwnsPendingMarker && project.Busy(started, settings.StaleLockAfter) {
		return nil, ErrProjectBusy
	}
	if opts.TriggeredBy == "" {
		opts.TriggeredBy = models.TriggerManual
	}

	logger := e.logger.With("project", project.Name, "runId", runID)
	logger.Info("sync started", "triggeredBy", opts.TriggeredBy, "lastStatus", project.LastSyncStatus)

	w := &walkState{
		project:  project,
		settings: settings,
		gateway:  e.gateway.WithMaxRetries(settings.MaxRetries),
		since:    project.Checkpoint(),
		started:  started,
		cutoff:   settings.Cutoff(),
	}

	// A pending marker hides the previous outcome, so unresolved sessions are looked up too.
	var pending []models.SyncSession
	if project.LastSyncStatus.Failed() || project.LastSyncStatus == models.StatusPending {
		pending, err = e.loadSkipSet(ctx, w)
		if err != nil {
			return nil, err
		}
		logger.Info("continue mode", "pendingSessions", len(pending), "skipFiles", len(w.skipByID)+len(w.skipByPath))
	}

	session = &models.SyncSession{
		ID:          uuid.NewString(),
		ProjectID:   project.ID,
		ProjectName: project.Name,
		RunID:       runID,
		Timestamp:   started,
		Status:      models.StatusRunning,
		Current:     models.StatusRunning,
		TriggeredBy: opts.TriggeredBy,
	}
	// Session writes must outlive a cancelled ctx so no session is left running.
	persistCtx := context.WithoutCancel(ctx)
	if err := e.store.SaveSession(persistCtx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	w.session = session
	w.logger = logger.With("session", session.ID)

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("sync panicked", "panic", r)
			session.Status = models.StatusError
			session.Current = models.StatusError
			session.ErrorMessage = fmt.Sprintf("panic: %v", r)
			e.finish(persistCtx, w, pending)
			err = nil
		}
	}()

	if walkErr := e.walk(ctx, w, project.SourceFolderID, project.DestFolderID, "/"); walkErr != nil {
		if ctx.Err() != nil {
			// A call aborted by cancellation is an interrupt, not a failure.
			e.shouldStop(ctx, w)
		} else {
			w.logger.Error("sync failed", "error", walkErr)
			session.Status = models.StatusError
			session.Current = models.StatusError
			session.ErrorMessage = walkErr.Error()
		}
	}

	e.finish(persistCtx, w, pending)
	return session, nil
}

// loadSkipSet indexes the successful file logs of unresolved sessions.
func (e *Engine) loadSkipSet(ctx context.Context, w *walkState) ([]models.SyncSession, error) {
	pending, err := e.store.PendingSessions(ctx, w.project.ID)
	if err != nil {
		return nil, fmt.Errorf("load pending sessions: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	w.continueMode = true
	w.skipByID = make(map[string]time.Time)
	w.skipByPath = make(map[string]time.Time)
	for _, ps := range pending {
		logs, err := e.store.FileLogs(ctx, ps.ID)
		if err != nil {
			return nil, fmt.Errorf("load file logs of session %s: %w", ps.ID, err)
		}
		for _, l := range logs {
			if l.Status != models.FileSuccess {
				continue
			}
			index := w.skipByPath
			key := l.SourcePath
			if l.SourceFileID != "" {
				index, key = w.skipByID, l.SourceFileID
			}
			if prev, ok := index[key]; !ok || l.ModifiedDate.After(prev) {
				index[key] = l.ModifiedDate
			}
		}
	}
	return pending, nil
}

// alreadySynced reports whether a pending session copied f at its current version.
func (w *walkState) alreadySynced(f remote.File, sourcePath string) bool {
	if !w.continueMode {
		return false
	}
	recorded, ok := w.skipByID[f.ID]
	if !ok {
		recorded, ok = w.skipByPath[sourcePath]
	}
	return ok && !f.ModifiedTime.After(recorded)
}

// shouldStop checks the cutoff and the stop registry, marking the session
// interrupted when either trips.
func (e *Engine) shouldStop(ctx context.Context, w *walkState) bool {
	if w.interrupted {
		return true
	}

	var msg string
	switch {
	case e.now().Sub(w.started) > w.cutoff:
		msg = fmt.Sprintf("Cutoff timeout: đã vượt quá %d giây. Safe exit.", int(w.cutoff/time.Second))
	case e.registry.ShouldStop(w.project.ID):
		msg = "Người dùng yêu cầu dừng đồng bộ. Safe exit."
		e.registry.ClearStop(w.project.ID)
	case ctx.Err() != nil:
		msg = fmt.Sprintf("Sync cancelled: %v. Safe exit.", ctx.Err())
	default:
		return false
	}

	w.interrupted = true
	w.session.Status = models.StatusInterrupted
	w.session.Current = models.StatusInterrupted
	w.session.ErrorMessage = msg
	w.logger.Warn("sync interrupted", "reason", msg)
	return true
}

// walk syncs one folder level then recurses into its sub-folders.
func (e *Engine) walk(ctx context.Context, w *walkState, sourceID, destID, prefix string) error {
	if e.shouldStop(ctx, w) {
		return nil
	}

	changed, err := w.gateway.ListChanged(ctx, sourceID, w.since)
	if err != nil {
		return fmt.Errorf("list changed files in %s: %w", prefix, err)
	}
	for _, f := range changed {
		if e.shouldStop(ctx, w) {
			return nil
		}
		if f.IsFolder {
			continue
		}
		e.syncFile(ctx, w, f, destID, prefix)
	}

	folders, err := w.gateway.ListFolders(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("list folders in %s: %w", prefix, err)
	}
	for _, folder := range folders {
		if w.interrupted {
			return nil
		}
		dest, err := w.gateway.FindOrCreateFolder(ctx, folder.Name, destID)
		if err != nil {
			return fmt.Errorf("prepare destination folder %s%s: %w", prefix, folder.Name, err)
		}
		if err := e.walk(ctx, w, folder.ID, dest.ID, prefix+folder.Name+"/"); err != nil {
			return err
		}
	}
	return nil
}

// syncFile copies one file and records its log entry.
func (e *Engine) syncFile(ctx context.Context, w *walkState, f remote.File, destID, prefix string) {
	sourcePath := prefix + f.Name
	if w.alreadySynced(f, sourcePath) {
		w.logger.Debug("skipping already synced file", "path", sourcePath)
		return
	}

	entry := models.FileLog{
		FileName:     f.Name,
		SourceLink:   w.gateway.Link(f.ID),
		SourcePath:   sourcePath,
		SourceFileID: f.ID,
		CreatedDate:  f.CreatedTime,
		ModifiedDate: f.ModifiedTime,
		Status:       models.FileSuccess,
	}
	if entry.CreatedDate.IsZero() {
		entry.CreatedDate = e.now()
	}
	if entry.ModifiedDate.IsZero() {
		entry.ModifiedDate = e.now()
	}

	copied, err := e.copyFile(ctx, w, f, destID)
	if err != nil && ctx.Err() != nil {
		// Not logged: the file stays behind the checkpoint and is copied next run.
		e.shouldStop(ctx, w)
		return
	}
	if err != nil {
		w.session.FailedFilesCount++
		if remote.IsNotFound(err) {
			entry.Status = models.FileSkipped
			entry.ErrorMessage = sourceGoneMessage
		} else {
			w.logger.Error("file sync failed", "path", sourcePath, "error", err)
			entry.Status = models.FileError
			entry.ErrorMessage = err.Error()
			demote(w.session)
		}
	} else {
		entry.DestLink = copied.Link
		if entry.DestLink == "" {
			entry.DestLink = w.gateway.Link(copied.ID)
		}
		entry.FileSize = f.Size
		w.session.FilesCount++
		w.session.TotalSizeSynced += f.Size
	}

	w.batch = append(w.batch, entry)
	if len(w.batch) >= w.settings.LogFlushSize {
		e.flush(ctx, w)
	}
}

// copyFile copies f into destID, renaming it when the name is taken.
func (e *Engine) copyFile(ctx context.Context, w *walkState, f remote.File, destID string) (remote.File, error) {
	existing, err := w.gateway.FindByName(ctx, f.Name, destID)
	if err != nil {
		return remote.File{}, err
	}
	name := f.Name
	if len(existing) > 0 {
		name = versionedName(f.Name, e.now())
	}
	return w.gateway.Copy(ctx, f.ID, destID, name)
}

// versionedName turns report.pdf into report_v260214_1358.pdf.
func versionedName(name string, t time.Time) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		// dotfiles such as ".env" have no extension to preserve
		base, ext = name, ""
	}
	return base + "_v" + utils.VersionStamp(t) + ext
}

// demote turns a clean session into a warning one. Later statuses win.
func demote(s *models.SyncSession) {
	if s.Status == models.StatusRunning || s.Status == models.StatusSuccess {
		s.Status = models.StatusWarning
		s.Current = models.StatusWarning
	}
}

// flush persists the batched file logs and the session's progress counters.
func (e *Engine) flush(ctx context.Context, w *walkState) {
	if len(w.batch) == 0 {
		return
	}
	batch := w.batch
	w.batch = nil
	ctx = context.WithoutCancel(ctx)

	if err := e.store.AppendFileLogs(ctx, w.session.ID, batch); err != nil {
		w.logger.Error("failed to save file logs", "count", len(batch), "error", err)
		demote(w.session)
		note := fmt.Sprintf("failed to save %d file logs: %v", len(batch), err)
		if w.session.ErrorMessage != "" {
			note = w.session.ErrorMessage + "; " + note
		}
		w.session.ErrorMessage = note
		return
	}

	if err := e.store.UpdateSession(ctx, w.session.ID, models.SessionUpdate{
		Status:           &w.session.Status,
		FilesCount:       &w.session.FilesCount,
		FailedFilesCount: &w.session.FailedFilesCount,
		TotalSizeSynced:  &w.session.TotalSizeSynced,
	}); err != nil {
		w.logger.Warn("failed to update session progress", "error", err)
	}
}

// finish finalizes the session, reconciles resumed sessions and updates the project.
func (e *Engine) finish(ctx context.Context, w *walkState, pending []models.SyncSession) {
	session := w.session
	if session.Status == models.StatusRunning {
		session.Status = models.StatusSuccess
	}
	e.flush(ctx, w)
	session.Current = session.Status
	session.ExecutionDurationSeconds = int64(e.now().Sub(w.started).Round(time.Second) / time.Second)

	if err := e.store.SaveSession(ctx, session); err != nil {
		w.logger.Error("failed to save session", "error", err)
	}

	if err := e.store.RecordHeartbeat(ctx, models.Heartbeat{
		ProjectID:          w.project.ID,
		LastCheckTimestamp: e.now(),
		LastStatus:         session.Status,
	}); err != nil {
		w.logger.Warn("failed to record heartbeat", "error", err)
	}

	for i, ps := range pending {
		u := models.SessionUpdate{Current: &session.Status}
		if i == 0 {
			u.ContinueID = &session.RunID
			w.logger.Info("linking resumed session", "resumedRunId", ps.RunID)
		}
		if err := e.store.UpdateSession(ctx, ps.ID, u); err != nil {
			w.logger.Error("failed to update resumed session", "resumedSession", ps.ID, "error", err)
		}
	}

	e.updateProject(ctx, w)

	w.logger.Info("sync finished",
		"status", session.Status,
		"files", session.FilesCount,
		"failed", session.FailedFilesCount,
		"size", utils.FormatSize(session.TotalSizeSynced),
		"duration", utils.FormatDuration(time.Duration(session.ExecutionDurationSeconds)*time.Second),
	)
}

// updateProject writes the session outcome back to the project. The
// checkpoint only moves on success.
func (e *Engine) updateProject(ctx context.Context, w *walkState) {
	project, session := w.project, w.session

	files := project.FilesCount + session.FilesCount
	size := project.TotalSize + session.TotalSizeSynced
	u := models.ProjectUpdate{
		ID:                project.ID,
		LastSyncTimestamp: &session.Timestamp,
		LastSyncStatus:    &session.Status,
		FilesCount:        &files,
		TotalSize:         &size,
	}

	switch {
	case session.Status == models.StatusSuccess:
		u.LastSuccessSyncTimestamp = &session.Timestamp
		u.NextSyncTimestamp = &session.Timestamp
	case session.Status == models.StatusError:
		status := models.ProjectError
		u.Status = &status
	}
	if project.Status == models.ProjectError && session.Status != models.StatusError {
		status := models.ProjectActive
		u.Status = &status
	}

	if err := e.store.UpdateProject(ctx, u); err != nil {
		w.logger.Error("failed to update project", "error", err)
	}
}
