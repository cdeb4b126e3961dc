package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/atelier/internal/domain/settings"
)

const (
	getSettingsSQL = `SELECT key, value FROM site_settings WHERE key = ANY($1)`

	putSettingSQL = `INSERT INTO site_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
)

var _ settings.Store = (*SettingsRepository)(nil)

// SettingsRepository reads and writes the site_settings table.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository returns a SettingsRepository that uses the given pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get returns the values of the requested keys. Absent keys are omitted.
func (r *SettingsRepository) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, getSettingsSQL, keys)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	values := make(map[string]string, len(keys))
	var key, value string
	if _, err := pgx.ForEachRow(rows, []any{&key, &value}, func() error {
		values[key] = value
		return nil
	}); err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	return values, nil
}

// Put stores a setting value.
func (r *SettingsRepository) Put(ctx context.Context, key, value string) error {
	if _, err := r.pool.Exec(ctx, putSettingSQL, key, value); err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	return nil
}
