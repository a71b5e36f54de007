package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	. "github.com/pith-agent/pith/internal/logging"
)

// summaryTruncateLen caps each surplus message's serialized form before
// it is folded into a compaction's summary_text.
const summaryTruncateLen = 200

// AppendMessages inserts messages in order and bumps the session's
// updated_at. The store never inspects message contents; it round-trips
// whatever canonical JSON the caller hands it.
func (s *Store) AppendMessages(ctx context.Context, sessionID string, messages []json.RawMessage) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, msg := range messages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (session_id, message_json, created_at) VALUES (?, ?, ?)
		`, sessionID, string(msg), now); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE sessions SET updated_at = ? WHERE id = ?", now, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return tx.Commit()
}

// GetMessageHistory returns the last limit messages, reordered
// chronologically ascending.
func (s *Store) GetMessageHistory(ctx context.Context, sessionID string, limit int) ([]json.RawMessage, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_json FROM (
			SELECT id, message_json FROM messages
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(raw))
	}
	return out, rows.Err()
}

// CompactSession writes one SessionSummary covering the oldest surplus
// messages (if total exceeds keepRecent) and deletes those rows, all in
// one transaction. No-op when the session has keepRecent or fewer
// messages.
func (s *Store) CompactSession(ctx context.Context, sessionID string, keepRecent int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&total); err != nil {
		return err
	}
	surplus := total - keepRecent
	if surplus <= 0 {
		return nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, message_json FROM messages
		WHERE session_id = ?
		ORDER BY id ASC
		LIMIT ?
	`, sessionID, surplus)
	if err != nil {
		return err
	}

	var ids []int64
	var lines []string
	for rows.Next() {
		var id int64
		var msg string
		if err := rows.Scan(&id, &msg); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
		lines = append(lines, truncate(msg, summaryTruncateLen))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	summary := strings.Join(lines, "\n")
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_summaries (session_id, summary_text, created_at) VALUES (?, ?, ?)
	`, sessionID, summary, time.Now().Unix()); err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM messages WHERE id IN (%s)", placeholders), args...); err != nil {
		return fmt.Errorf("delete compacted messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	L_info("store: session compacted", "session_id", sessionID, "removed", len(ids))
	return nil
}

// ListSessionSummaries returns every compaction summary for a session,
// oldest first.
func (s *Store) ListSessionSummaries(ctx context.Context, sessionID string) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, summary_text, created_at FROM session_summaries
		WHERE session_id = ? ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var createdAt int64
		if err := rows.Scan(&sum.ID, &sum.SessionID, &sum.Summary, &createdAt); err != nil {
			return nil, err
		}
		sum.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// GetMessageCount returns the total number of stored messages for a
// session, irrespective of any history window.
func (s *Store) GetMessageCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
