package db

import (
	"context"
	"fmt"

	"github.com/chmdznr/oss-project-sync/pkg/models"
)

// RecordHeartbeat upserts the last observed outcome of a project.
func (db *DB) RecordHeartbeat(ctx context.Context, hb models.Heartbeat) error {
	hb.LastCheckTimestamp = hb.LastCheckTimestamp.UTC()
	_, err := db.NamedExecContext(ctx, `
		INSERT INTO heartbeats (project_id, last_check_timestamp, last_status)
		VALUES (:project_id, :last_check_timestamp, :last_status)
		ON CONFLICT(project_id) DO UPDATE SET
			last_check_timestamp = excluded.last_check_timestamp,
			last_status = excluded.last_status
	`, &hb)
	if err != nil {
		return fmt.Errorf("record heartbeat %s: %w", hb.ProjectID, err)
	}
	return nil
}

// Heartbeats returns the heartbeat of every project that has one.
func (db *DB) Heartbeats(ctx context.Context) ([]models.Heartbeat, error) {
	var hbs []models.Heartbeat
	if err := db.SelectContext(ctx, &hbs, `SELECT project_id, last_check_timestamp, last_status FROM heartbeats ORDER BY project_id`); err != nil {
		return nil, fmt.Errorf("list heartbeats: %w", err)
	}
	return hbs, nil
}
