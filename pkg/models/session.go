package models

import "time"

// SyncSession is one engine execution for one project.
type SyncSession struct {
	ID                       string     `db:"id" json:"id"`
	ProjectID                string     `db:"project_id" json:"projectId"`
	ProjectName              string     `db:"project_name" json:"projectName"`
	RunID                    string     `db:"run_id" json:"runId"`
	Timestamp                time.Time  `db:"timestamp" json:"timestamp"`
	ExecutionDurationSeconds int64      `db:"execution_duration_seconds" json:"executionDurationSeconds"`
	Status                   SyncStatus `db:"status" json:"status"`
	// Current tracks the latest outcome for this session's files, updated when a later run resumes it.
	Current          SyncStatus `db:"current" json:"current"`
	FilesCount       int64      `db:"files_count" json:"filesCount"`
	FailedFilesCount int64      `db:"failed_files_count" json:"failedFilesCount"`
	TotalSizeSynced  int64      `db:"total_size_synced" json:"totalSizeSynced"`
	ErrorMessage     string     `db:"error_message" json:"errorMessage,omitempty"`
	TriggeredBy      Trigger    `db:"triggered_by" json:"triggeredBy"`
	ContinueID       string     `db:"continue_id" json:"continueId,omitempty"`
}

// Resolved reports whether a failed session has been superseded by a successful run.
func (s *SyncSession) Resolved() bool {
	current := s.Current
	if current == StatusNone {
		current = s.Status
	}
	return current == StatusSuccess
}

// SessionUpdate is a partial session update. Nil fields are left untouched.
type SessionUpdate struct {
	Status                   *SyncStatus
	Current                  *SyncStatus
	FilesCount               *int64
	FailedFilesCount         *int64
	TotalSizeSynced          *int64
	ExecutionDurationSeconds *int64
	ErrorMessage             *string
	ContinueID               *string
}
