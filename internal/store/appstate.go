package store

import (
	"context"
	"database/sql"
)

// SetAppState upserts a single opaque key/value pair.
func (s *Store) SetAppState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// GetAppState returns the value for key, or def if unset.
func (s *Store) GetAppState(ctx context.Context, key, def string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM app_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
