package db

import (
	"context"
	"fmt"

	"github.com/chmdznr/oss-project-sync/pkg/models"
)

// Stats aggregates the sessions and file logs of a project.
func (db *DB) Stats(ctx context.Context, projectID string) (*models.Stats, error) {
	var stats models.Stats
	err := db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total_sessions,
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) AS success_sessions,
			COALESCE(SUM(CASE WHEN status = 'warning' THEN 1 ELSE 0 END), 0) AS warning_sessions,
			COALESCE(SUM(CASE WHEN status = 'interrupted' THEN 1 ELSE 0 END), 0) AS interrupted_sessions,
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0) AS error_sessions,
			COALESCE(SUM(files_count), 0) AS synced_files,
			COALESCE(SUM(total_size_synced), 0) AS synced_size,
			COALESCE(SUM(failed_files_count), 0) AS failed_files
		FROM sync_sessions WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("get session stats: %w", err)
	}

	err = db.GetContext(ctx, &stats.SkippedFiles, `
		SELECT COUNT(*) FROM file_logs l
		JOIN sync_sessions s ON s.id = l.session_id
		WHERE s.project_id = ? AND l.status = 'skipped'
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("get skipped count: %w", err)
	}
	return &stats, nil
}
