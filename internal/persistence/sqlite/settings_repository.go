package sqlite

import (
	"context"
	"database/sql"
	"time"
)

// SettingsRepository implements persistence.SettingsRepository using SQLite
type SettingsRepository struct {
	repository
}

// NewSettingsRepository creates a new SQLite settings repository
func NewSettingsRepository(pool *ConnectionPool) *SettingsRepository {
	return &SettingsRepository{repository: newRepository(pool)}
}

// GetSettings returns every stored setting.
func (r *SettingsRepository) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.helper.Query(ctx, `SELECT setting_key, value FROM settings`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, r.mapper.MapError(err)
		}
		values[key] = value
	}
	return values, r.mapper.MapError(rows.Err())
}

// PutSettings merges values into the stored settings.
func (r *SettingsRepository) PutSettings(ctx context.Context, values map[string]string, at time.Time) error {
	if len(values) == 0 {
		return nil
	}
	query := `
		INSERT INTO settings (setting_key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(setting_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for key, value := range values {
			if _, err := r.helper.ExecTx(ctx, tx, query, key, value, formatTime(at)); err != nil {
				return err
			}
		}
		return nil
	})
	return r.mapper.MapError(err)
}
