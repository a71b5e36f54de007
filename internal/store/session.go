package store

import (
	"context"
	"fmt"
	"time"

	. "github.com/pith-agent/pith/internal/logging"
)

// newSessionID mints a sortable, timestamp-based session identifier.
func newSessionID(now time.Time) string {
	return fmt.Sprintf("%s.%d", now.Format("20060102T150405"), now.Unix())
}

// EnsureActiveSession returns the currently active session, creating one
// if none exists.
func (s *Store) EnsureActiveSession(ctx context.Context) (string, error) {
	id, err := s.GetAppState(ctx, activeSessionKey, "")
	if err != nil {
		return "", err
	}
	if id != "" {
		var exists int
		if err := s.db.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = ?", id).Scan(&exists); err == nil {
			return id, nil
		}
	}
	return s.NewSession(ctx)
}

// ListSessionIDs returns every known session id, most recently updated
// first. Used by the maintenance sweep to find sessions worth compacting.
func (s *Store) ListSessionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NewSession always creates a fresh session and installs it as active.
func (s *Store) NewSession(ctx context.Context) (string, error) {
	now := time.Now()
	id := newSessionID(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE sessions SET is_active = 0 WHERE is_active = 1"); err != nil {
		return "", fmt.Errorf("clear previous active session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, updated_at, is_active) VALUES (?, ?, ?, 1)
	`, id, now.Unix(), now.Unix()); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO app_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, activeSessionKey, id); err != nil {
		return "", fmt.Errorf("install active session pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	L_info("store: session created", "session_id", id)
	return id, nil
}
