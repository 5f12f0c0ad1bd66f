package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/chmdznr/oss-project-sync/pkg/models"
)

const fileLogColumns = `id, session_id, file_name, source_link, dest_link, source_path, source_file_id,
	created_date, modified_date, file_size, status, error_message`

// AppendFileLogs saves file logs of a session in chunks of the configured
// batch size, one transaction per chunk.
func (db *DB) AppendFileLogs(ctx context.Context, sessionID string, logs []models.FileLog) error {
	for start := 0; start < len(logs); start += db.batchSize {
		end := min(start+db.batchSize, len(logs))
		if err := db.appendChunk(ctx, sessionID, logs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) appendChunk(ctx context.Context, sessionID string, logs []models.FileLog) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO file_logs (`+fileLogColumns+`)
		VALUES (:id, :session_id, :file_name, :source_link, :dest_link, :source_path, :source_file_id,
			:created_date, :modified_date, :file_size, :status, :error_message)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, log := range logs {
		log.SessionID = sessionID
		if log.ID == "" {
			log.ID = uuid.NewString()
		}
		log.CreatedDate = log.CreatedDate.UTC()
		log.ModifiedDate = log.ModifiedDate.UTC()
		if _, err := stmt.ExecContext(ctx, &log); err != nil {
			return fmt.Errorf("insert file log %s: %w", log.SourcePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	slog.Debug("file logs saved", "session", sessionID, "count", len(logs))
	return nil
}

// FileLogs returns all file logs of a session in insertion order.
func (db *DB) FileLogs(ctx context.Context, sessionID string) ([]models.FileLog, error) {
	var logs []models.FileLog
	if err := db.SelectContext(ctx, &logs, `SELECT `+fileLogColumns+` FROM file_logs WHERE session_id = ? ORDER BY rowid`, sessionID); err != nil {
		return nil, fmt.Errorf("list file logs of %s: %w", sessionID, err)
	}
	return logs, nil
}
