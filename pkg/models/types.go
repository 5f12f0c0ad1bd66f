package models

import "time"

// ProjectStatus is the administrative state of a sync pair.
type ProjectStatus string

const (
	ProjectActive ProjectStatus = "active"
	ProjectPaused ProjectStatus = "paused"
	ProjectError  ProjectStatus = "error"
)

// SyncStatus is the outcome of a session, also mirrored on the project as LastSyncStatus.
type SyncStatus string

const (
	StatusNone        SyncStatus = ""
	StatusRunning     SyncStatus = "running"
	StatusPending     SyncStatus = "pending"
	StatusSuccess     SyncStatus = "success"
	StatusWarning     SyncStatus = "warning"
	StatusInterrupted SyncStatus = "interrupted"
	StatusError       SyncStatus = "error"
)

// Failed reports whether the status marks a run that should be resumed.
func (s SyncStatus) Failed() bool {
	return s == StatusError || s == StatusInterrupted
}

// Trigger identifies who started a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// TriggerOptions describe how a run was started.
type TriggerOptions struct {
	TriggeredBy Trigger
	// OwnsPendingMarker is set by callers that marked the project pending
	// themselves, so the engine does not mistake that marker for another run.
	OwnsPendingMarker bool
}

// Project is one source/destination sync pair.
type Project struct {
	ID             string        `db:"id" json:"id"`
	Name           string        `db:"name" json:"name"`
	Description    string        `db:"description" json:"description"`
	SourceFolderID string        `db:"source_folder_id" json:"sourceFolderId"`
	DestFolderID   string        `db:"dest_folder_id" json:"destFolderId"`
	Status         ProjectStatus `db:"status" json:"status"`

	LastSyncStatus           SyncStatus `db:"last_sync_status" json:"lastSyncStatus"`
	LastSyncTimestamp        *time.Time `db:"last_sync_timestamp" json:"lastSyncTimestamp"`
	LastSuccessSyncTimestamp *time.Time `db:"last_success_sync_timestamp" json:"lastSuccessSyncTimestamp"`
	// NextSyncTimestamp is the checkpoint for the next incremental scan.
	// It only moves forward after a fully successful session.
	NextSyncTimestamp *time.Time `db:"next_sync_timestamp" json:"nextSyncTimestamp"`
	SyncStartDate     *time.Time `db:"sync_start_date" json:"syncStartDate"`

	FilesCount int64 `db:"files_count" json:"filesCount"`
	TotalSize  int64 `db:"total_size" json:"totalSize"`
	IsDeleted  bool  `db:"is_deleted" json:"isDeleted"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Checkpoint returns the lower bound for the incremental scan:
// max(SyncStartDate, NextSyncTimestamp or LastSuccessSyncTimestamp), or the zero time.
func (p *Project) Checkpoint() time.Time {
	var checkpoint time.Time
	if p.NextSyncTimestamp != nil {
		checkpoint = *p.NextSyncTimestamp
	} else if p.LastSuccessSyncTimestamp != nil {
		checkpoint = *p.LastSuccessSyncTimestamp
	}
	if p.SyncStartDate != nil && p.SyncStartDate.After(checkpoint) {
		checkpoint = *p.SyncStartDate
	}
	return checkpoint
}

// Busy reports whether another run holds the pending marker at now.
// Markers older than staleAfter are ignored.
func (p *Project) Busy(now time.Time, staleAfter time.Duration) bool {
	return p.LastSyncStatus == StatusPending && now.Sub(p.UpdatedAt) < staleAfter
}

// ProjectUpdate is a partial project update. Nil fields are left untouched.
type ProjectUpdate struct {
	ID                       string
	Name                     *string
	Description              *string
	Status                   *ProjectStatus
	LastSyncStatus           *SyncStatus
	LastSyncTimestamp        *time.Time
	LastSuccessSyncTimestamp *time.Time
	NextSyncTimestamp        *time.Time
	SyncStartDate            *time.Time
	FilesCount               *int64
	TotalSize                *int64
	IsDeleted                *bool
	// ClearCheckpoint drops NextSyncTimestamp and LastSuccessSyncTimestamp so
	// the next run rescans everything after SyncStartDate.
	ClearCheckpoint bool
}
