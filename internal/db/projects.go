package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chmdznr/oss-project-sync/pkg/models"
)

const projectColumns = `id, name, description, source_folder_id, dest_folder_id, status,
	last_sync_status, last_sync_timestamp, last_success_sync_timestamp, next_sync_timestamp,
	sync_start_date, files_count, total_size, is_deleted, created_at, updated_at`

// GetProject retrieves a project by id. Soft deleted projects are reported as not found.
func (db *DB) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	err := db.GetContext(ctx, &project, `SELECT `+projectColumns+` FROM projects WHERE id = ? AND is_deleted = 0`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return &project, nil
}

// FindProject looks a project up by id or, failing that, by name.
func (db *DB) FindProject(ctx context.Context, idOrName string) (*models.Project, error) {
	project, err := db.GetProject(ctx, idOrName)
	if err == nil || !errors.Is(err, ErrProjectNotFound) {
		return project, err
	}

	var byName models.Project
	err = db.GetContext(ctx, &byName, `SELECT `+projectColumns+` FROM projects WHERE name = ? AND is_deleted = 0 ORDER BY created_at LIMIT 1`, idOrName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, idOrName)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", idOrName, err)
	}
	return &byName, nil
}

// ListProjects returns every project that is not soft deleted.
func (db *DB) ListProjects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if err := db.SelectContext(ctx, &projects, `SELECT `+projectColumns+` FROM projects WHERE is_deleted = 0 ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// CreateProject validates and inserts a new project.
func (db *DB) CreateProject(ctx context.Context, project *models.Project) error {
	if strings.TrimSpace(project.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProject)
	}
	if project.SourceFolderID == "" {
		return fmt.Errorf("%w: source folder is required", ErrInvalidProject)
	}
	if project.DestFolderID == "" {
		return fmt.Errorf("%w: destination folder is required", ErrInvalidProject)
	}
	if project.SourceFolderID == project.DestFolderID {
		return fmt.Errorf("%w: source and destination must differ", ErrInvalidProject)
	}

	var dup int
	err := db.GetContext(ctx, &dup, `SELECT COUNT(*) FROM projects WHERE source_folder_id = ? AND dest_folder_id = ? AND is_deleted = 0`,
		project.SourceFolderID, project.DestFolderID)
	if err != nil {
		return fmt.Errorf("check duplicate project: %w", err)
	}
	if dup > 0 {
		return ErrDuplicateProject
	}

	now := time.Now().UTC()
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	if project.Status == "" {
		project.Status = models.ProjectActive
	}
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err = db.NamedExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (:id, :name, :description, :source_folder_id, :dest_folder_id, :status,
			:last_sync_status, :last_sync_timestamp, :last_success_sync_timestamp, :next_sync_timestamp,
			:sync_start_date, :files_count, :total_size, :is_deleted, :created_at, :updated_at)
	`, project)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// UpdateProject merges the non-nil fields of u into the stored project and
// bumps updated_at.
func (db *DB) UpdateProject(ctx context.Context, u models.ProjectUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.LastSyncStatus != nil {
		add("last_sync_status", *u.LastSyncStatus)
	}
	if u.LastSyncTimestamp != nil {
		add("last_sync_timestamp", u.LastSyncTimestamp.UTC())
	}
	if u.LastSuccessSyncTimestamp != nil && !u.ClearCheckpoint {
		add("last_success_sync_timestamp", u.LastSuccessSyncTimestamp.UTC())
	}
	if u.NextSyncTimestamp != nil && !u.ClearCheckpoint {
		add("next_sync_timestamp", u.NextSyncTimestamp.UTC())
	}
	if u.SyncStartDate != nil {
		add("sync_start_date", u.SyncStartDate.UTC())
	}
	if u.FilesCount != nil {
		add("files_count", *u.FilesCount)
	}
	if u.TotalSize != nil {
		add("total_size", *u.TotalSize)
	}
	if u.IsDeleted != nil {
		add("is_deleted", *u.IsDeleted)
	}
	if u.ClearCheckpoint {
		add("next_sync_timestamp", nil)
		add("last_success_sync_timestamp", nil)
	}

	args = append(args, u.ID)
	res, err := db.ExecContext(ctx, `UPDATE projects SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update project %s: %w", u.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, u.ID)
	}
	return nil
}

// DeleteProject soft deletes a project and pauses it.
func (db *DB) DeleteProject(ctx context.Context, id string) error {
	deleted := true
	paused := models.ProjectPaused
	return db.UpdateProject(ctx, models.ProjectUpdate{ID: id, IsDeleted: &deleted, Status: &paused})
}

// ResetProject clears the checkpoint of a project so its next sync is a full
// rescan, and returns the updated project.
func (db *DB) ResetProject(ctx context.Context, id string) (*models.Project, error) {
	if err := db.UpdateProject(ctx, models.ProjectUpdate{ID: id, ClearCheckpoint: true}); err != nil {
		return nil, err
	}
	return db.GetProject(ctx, id)
}
