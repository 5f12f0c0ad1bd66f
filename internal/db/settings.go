package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/chmdznr/oss-project-sync/pkg/models"
)

const globalSettings = "global"

// LoadSettings returns the stored global settings. ok is false when none
// have been saved yet.
func (db *DB) LoadSettings(ctx context.Context) (settings models.Settings, ok bool, err error) {
	var raw string
	err = db.GetContext(ctx, &raw, `SELECT value FROM settings WHERE name = ?`, globalSettings)
	if errors.Is(err, sql.ErrNoRows) {
		return settings, false, nil
	}
	if err != nil {
		return settings, false, fmt.Errorf("load settings: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return settings, false, fmt.Errorf("decode settings: %w", err)
	}
	return settings, true, nil
}

// SaveSettings replaces the stored global settings.
func (db *DB) SaveSettings(ctx context.Context, settings models.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO settings (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, globalSettings, string(raw))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
