package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/chmdznr/oss-project-sync/pkg/models"
)

// pendingLookback bounds how many recent sessions are inspected for resumption.
const pendingLookback = 20

const sessionColumns = `id, project_id, project_name, run_id, timestamp, execution_duration_seconds,
	status, current, files_count, failed_files_count, total_size_synced, error_message,
	triggered_by, continue_id`

// SaveSession inserts the session, replacing any stored row with the same id.
func (db *DB) SaveSession(ctx context.Context, session *models.SyncSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	stored := *session
	stored.Timestamp = stored.Timestamp.UTC()

	_, err := db.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO sync_sessions (`+sessionColumns+`)
		VALUES (:id, :project_id, :project_name, :run_id, :timestamp, :execution_duration_seconds,
			:status, :current, :files_count, :failed_files_count, :total_size_synced, :error_message,
			:triggered_by, :continue_id)
	`, &stored)
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

// UpdateSession applies the non-nil fields of u to the stored session.
func (db *DB) UpdateSession(ctx context.Context, id string, u models.SessionUpdate) error {
	var sets []string
	var args []any
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.Current != nil {
		add("current", *u.Current)
	}
	if u.FilesCount != nil {
		add("files_count", *u.FilesCount)
	}
	if u.FailedFilesCount != nil {
		add("failed_files_count", *u.FailedFilesCount)
	}
	if u.TotalSizeSynced != nil {
		add("total_size_synced", *u.TotalSizeSynced)
	}
	if u.ExecutionDurationSeconds != nil {
		add("execution_duration_seconds", *u.ExecutionDurationSeconds)
	}
	if u.ErrorMessage != nil {
		add("error_message", *u.ErrorMessage)
	}
	if u.ContinueID != nil {
		add("continue_id", *u.ContinueID)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := db.ExecContext(ctx, `UPDATE sync_sessions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// PendingSessions returns the recent failed or interrupted sessions of a
// project that no later run has resolved, newest first.
func (db *DB) PendingSessions(ctx context.Context, projectID string) ([]models.SyncSession, error) {
	recent, err := db.RecentSessions(ctx, projectID, pendingLookback)
	if err != nil {
		return nil, err
	}

	var pending []models.SyncSession
	for _, s := range recent {
		if s.Status.Failed() && !s.Resolved() {
			pending = append(pending, s)
		}
	}
	return pending, nil
}

// RecentSessions returns up to limit sessions of a project, newest first.
func (db *DB) RecentSessions(ctx context.Context, projectID string, limit int) ([]models.SyncSession, error) {
	var sessions []models.SyncSession
	err := db.SelectContext(ctx, &sessions, `
		SELECT `+sessionColumns+` FROM sync_sessions
		WHERE project_id = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions of %s: %w", projectID, err)
	}
	return sessions, nil
}

// RunSessions returns every session of one scheduler run.
func (db *DB) RunSessions(ctx context.Context, runID string) ([]models.SyncSession, error) {
	var sessions []models.SyncSession
	if err := db.SelectContext(ctx, &sessions, `SELECT `+sessionColumns+` FROM sync_sessions WHERE run_id = ? ORDER BY timestamp`, runID); err != nil {
		return nil, fmt.Errorf("list sessions of run %s: %w", runID, err)
	}
	return sessions, nil
}
