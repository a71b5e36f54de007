package store

import (
	"database/sql"
	"fmt"
	"time"
)

// currentSchemaVersion is bumped whenever a migration is appended.
const currentSchemaVersion = 1

// ensureSchema runs every migration the database hasn't seen yet, in a
// single transaction per step, mirroring the teacher's numbered
// migrateVN approach.
func ensureSchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		return nil
	}

	migrations := []func(*sql.Tx) error{
		migrateV1,
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if err := migrations[i](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d failed: %w", i+1, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", i+1, time.Now().Unix()); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", i+1, err)
		}
	}

	return nil
}

// migrateV1 creates the full initial schema: app state, profile fields,
// sessions, messages, session summaries, memory entries with its FTS5
// shadow table and sync triggers.
func migrateV1(tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS app_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS profile_fields (
			profile_type TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (profile_type, key)
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(is_active)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			message_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(session_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS session_summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			summary_text TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_session ON session_summaries(session_id)`,

		`CREATE TABLE IF NOT EXISTS memory_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'durable',
			tags TEXT,
			source TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_deleted ON memory_entries(deleted)`,

		// External-content FTS5 table: memory_entries stays the source of
		// truth, memory_fts only indexes content.
		`CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
			content,
			content='memory_entries',
			content_rowid='id'
		)`,

		`CREATE TRIGGER IF NOT EXISTS memory_entries_ai AFTER INSERT ON memory_entries BEGIN
			INSERT INTO memory_fts(rowid, content) VALUES (new.id, new.content);
		END`,

		`CREATE TRIGGER IF NOT EXISTS memory_entries_ad AFTER DELETE ON memory_entries BEGIN
			INSERT INTO memory_fts(memory_fts, rowid, content) VALUES ('delete', old.id, old.content);
		END`,

		`CREATE TRIGGER IF NOT EXISTS memory_entries_au AFTER UPDATE ON memory_entries BEGIN
			INSERT INTO memory_fts(memory_fts, rowid, content) VALUES ('delete', old.id, old.content);
			INSERT INTO memory_fts(rowid, content) VALUES (new.id, new.content);
		END`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}
