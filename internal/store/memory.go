package store

import (
	"context"
	"database/sql"
	"time"

	. "github.com/pith-agent/pith/internal/logging"
)

// MemorySave inserts a new memory entry; the FTS5 shadow table is kept
// in sync by schema triggers.
func (s *Store) MemorySave(ctx context.Context, content, kind, tags, source string) (int64, error) {
	if kind == "" {
		kind = "durable"
	}
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_entries (content, kind, tags, source, created_at, updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, content, kind, nullable(tags), nullable(source), now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// MemorySearch prefers a full-text match ranked by relevance; if FTS
// itself errors (e.g. on a malformed query), it falls back to a
// case-sensitive substring scan ordered by recency. Both paths exclude
// soft-deleted rows.
func (s *Store) MemorySearch(ctx context.Context, query string, limit int) ([]MemoryEntry, error) {
	if limit <= 0 {
		limit = 8
	}

	entries, err := s.memorySearchFTS(ctx, query, limit)
	if err == nil {
		return entries, nil
	}
	L_warn("store: memory FTS query failed, falling back to substring scan", "error", err)
	return s.memorySearchSubstring(ctx, query, limit)
}

func (s *Store) memorySearchFTS(ctx context.Context, query string, limit int) ([]MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.content, m.kind, m.tags, m.source, m.created_at, m.updated_at, m.deleted
		FROM memory_entries m
		JOIN memory_fts ON memory_fts.rowid = m.id
		WHERE memory_fts MATCH ? AND m.deleted = 0
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemoryEntries(rows)
}

func (s *Store) memorySearchSubstring(ctx context.Context, query string, limit int) ([]MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, kind, tags, source, created_at, updated_at, deleted
		FROM memory_entries
		WHERE deleted = 0 AND instr(content, ?) > 0
		ORDER BY created_at DESC
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemoryEntries(rows)
}

func scanMemoryEntries(rows *sql.Rows) ([]MemoryEntry, error) {
	var out []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		var tags, source sql.NullString
		var createdAt, updatedAt int64
		var deleted int
		if err := rows.Scan(&e.ID, &e.Content, &e.Kind, &tags, &source, &createdAt, &updatedAt, &deleted); err != nil {
			return nil, err
		}
		e.Tags = tags.String
		e.Source = source.String
		e.CreatedAt = time.Unix(createdAt, 0)
		e.UpdatedAt = time.Unix(updatedAt, 0)
		e.Deleted = deleted != 0
		out = append(out, e)
	}
	return out, rows.Err()
}
