package config

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/chmdznr/oss-project-sync/pkg/models"
)

const settingsKey = "global"

// SettingsStore persists runtime settings.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (models.Settings, bool, error)
	SaveSettings(ctx context.Context, settings models.Settings) error
}

// SettingsProvider serves runtime settings: stored settings when present,
// the static defaults otherwise. Reads are cached for ttl.
type SettingsProvider struct {
	store    SettingsStore
	defaults models.Settings
	cache    *expirable.LRU[string, models.Settings]
}

// NewSettingsProvider creates a provider. A non-positive ttl disables expiry.
func NewSettingsProvider(store SettingsStore, defaults models.Settings, ttl time.Duration) *SettingsProvider {
	if ttl < 0 {
		ttl = 0
	}
	return &SettingsProvider{
		store:    store,
		defaults: defaults.Normalize(),
		cache:    expirable.NewLRU[string, models.Settings](1, nil, ttl),
	}
}

// Get returns the current settings.
func (p *SettingsProvider) Get(ctx context.Context) (models.Settings, error) {
	if s, ok := p.cache.Get(settingsKey); ok {
		return s, nil
	}

	stored, ok, err := p.store.LoadSettings(ctx)
	if err != nil {
		return p.defaults, err
	}
	settings := p.defaults
	if ok {
		settings = stored.Normalize()
	}
	p.cache.Add(settingsKey, settings)
	return settings, nil
}

// Save stores settings and drops the cached copy.
func (p *SettingsProvider) Save(ctx context.Context, settings models.Settings) error {
	if err := p.store.SaveSettings(ctx, settings); err != nil {
		return err
	}
	p.Invalidate()
	return nil
}

// Invalidate forces the next Get to read the store.
func (p *SettingsProvider) Invalidate() {
	p.cache.Purge()
}
