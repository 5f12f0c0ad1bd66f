package db

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrDuplicateProject = errors.New("project with the same source and destination already exists")
	ErrInvalidProject   = errors.New("invalid project")
)

const defaultBatchSize = 450

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	source_folder_id TEXT NOT NULL,
	dest_folder_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	last_sync_status TEXT NOT NULL DEFAULT '',
	last_sync_timestamp DATETIME,
	last_success_sync_timestamp DATETIME,
	next_sync_timestamp DATETIME,
	sync_start_date DATETIME,
	files_count INTEGER NOT NULL DEFAULT 0,
	total_size INTEGER NOT NULL DEFAULT 0,
	is_deleted BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS sync_sessions (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	project_name TEXT NOT NULL DEFAULT '',
	run_id TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	execution_duration_seconds INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	current TEXT NOT NULL DEFAULT '',
	files_count INTEGER NOT NULL DEFAULT 0,
	failed_files_count INTEGER NOT NULL DEFAULT 0,
	total_size_synced INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	triggered_by TEXT NOT NULL DEFAULT '',
	continue_id TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS file_logs (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	source_link TEXT NOT NULL DEFAULT '',
	dest_link TEXT NOT NULL DEFAULT '',
	source_path TEXT NOT NULL,
	source_file_id TEXT NOT NULL DEFAULT '',
	created_date DATETIME NOT NULL,
	modified_date DATETIME NOT NULL,
	file_size INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS heartbeats (
	project_id TEXT PRIMARY KEY,
	last_check_timestamp DATETIME NOT NULL,
	last_status TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sync_sessions(project_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_sessions_run ON sync_sessions(run_id);
CREATE INDEX IF NOT EXISTS idx_file_logs_session ON file_logs(session_id);
`

const pragmas = `
PRAGMA journal_mode=WAL;
PRAGMA synchronous=NORMAL;
PRAGMA busy_timeout=5000;
PRAGMA temp_store=MEMORY;
PRAGMA cache_size=-200000;
`

// DB is the persistence layer for projects, sessions, file logs, heartbeats
// and settings.
type DB struct {
	*sqlx.DB
	batchSize int
}

// Option configures a DB.
type Option func(*DB)

// WithBatchSize caps how many file logs are written per transaction.
func WithBatchSize(n int) Option {
	return func(db *DB) {
		if n > 0 {
			db.batchSize = n
		}
	}
}

// New opens (creating if needed) the database at path. Use ":memory:" for a
// throwaway database.
func New(path string, opts ...Option) (*DB, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", path)
	}

	slog.Debug("db open", "path", path)
	sqlDB, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	// sqlite allows a single writer; one connection also keeps :memory: databases shared.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	if _, err := db.Exec(pragmas); err != nil {
		return fmt.Errorf("set pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}
