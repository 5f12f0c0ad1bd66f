package models

import "time"

// Stats represents project statistics aggregated over its sessions
type Stats struct {
	TotalSessions       int64 `db:"total_sessions" json:"totalSessions"`
	SuccessSessions     int64 `db:"success_sessions" json:"successSessions"`
	WarningSessions     int64 `db:"warning_sessions" json:"warningSessions"`
	InterruptedSessions int64 `db:"interrupted_sessions" json:"interruptedSessions"`
	ErrorSessions       int64 `db:"error_sessions" json:"errorSessions"`
	SyncedFiles         int64 `db:"synced_files" json:"syncedFiles"`
	SyncedSize          int64 `db:"synced_size" json:"syncedSize"`
	FailedFiles         int64 `db:"failed_files" json:"failedFiles"`
	SkippedFiles        int64 `db:"skipped_files" json:"skippedFiles"` // source files gone before they could be copied
}

// Heartbeat is the last observed outcome per project, used for liveness checks.
type Heartbeat struct {
	ProjectID          string     `db:"project_id" json:"projectId"`
	LastCheckTimestamp time.Time  `db:"last_check_timestamp" json:"lastCheckTimestamp"`
	LastStatus         SyncStatus `db:"last_status" json:"lastStatus"`
}
