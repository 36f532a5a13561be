package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SettingsStore implements ports.SettingsStore on the setting table
type SettingsStore struct {
	db *DB
}

// NewSettingsStore creates a new settings store
func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the value of key, "" when unset
func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()

	var value string
	err := s.db.conn(ctx).QueryRow(ctx, `SELECT value FROM setting WHERE key = $1`, key).Scan(&value)
	if isNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// GetAll returns every setting in one read
func (s *SettingsStore) GetAll(ctx context.Context) (map[string]string, error) {
	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()

	rows, err := s.db.conn(ctx).Query(ctx, `SELECT key, value FROM setting`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// Set upserts all values in one transaction
func (s *SettingsStore) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()

	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for key, value := range values {
			batch.Queue(`
				INSERT INTO setting (key, value, updated_at) VALUES ($1, $2, NOW())
				ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
				key, value)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		return nil
	})
}

// Delete removes keys; missing keys are ignored
func (s *SettingsStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := s.db.queryContext(ctx)
	defer cancel()

	if _, err := s.db.conn(ctx).Exec(ctx, `DELETE FROM setting WHERE key = ANY($1)`, keys); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	return nil
}
