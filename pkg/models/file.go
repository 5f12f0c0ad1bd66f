package models

import "time"

// FileLogStatus is the terminal state of one visited file.
type FileLogStatus string

const (
	FileSuccess FileLogStatus = "success"
	FileError   FileLogStatus = "error"
	FileSkipped FileLogStatus = "skipped"
)

// FileLog records what happened to a single file during a session
type FileLog struct {
	ID           string        `db:"id" json:"id"`
	SessionID    string        `db:"session_id" json:"sessionId"`
	FileName     string        `db:"file_name" json:"fileName"`
	SourceLink   string        `db:"source_link" json:"sourceLink"`
	DestLink     string        `db:"dest_link" json:"destLink"`
	SourcePath   string        `db:"source_path" json:"sourcePath"`
	SourceFileID string        `db:"source_file_id" json:"sourceFileId"`
	CreatedDate  time.Time     `db:"created_date" json:"createdDate"`
	ModifiedDate time.Time     `db:"modified_date" json:"modifiedDate"`
	FileSize     int64         `db:"file_size" json:"fileSize"`
	Status       FileLogStatus `db:"status" json:"status"`
	ErrorMessage string        `db:"error_message" json:"errorMessage,omitempty"`
}
