// Package store is the agent's single durable writer: app state,
// profile fields, sessions, the message log, compaction summaries, and
// a full-text-searchable memory table, all backed by one SQLite
// database opened in WAL mode.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	. "github.com/pith-agent/pith/internal/logging"
	"github.com/pith-agent/pith/internal/paths"
)

const activeSessionKey = "active_session_id"
const bootstrapCompleteKey = "bootstrap_complete"

// Store owns the single writer connection to the workspace's database.
type Store struct {
	db            *sql.DB
	workspaceRoot string
}

// Open opens (creating if absent) the workspace's SQLite database and
// brings its schema up to date. Must succeed before any other Store
// method is called.
func Open(workspaceRoot string) (*Store, error) {
	dbPath := paths.DatabasePath(workspaceRoot)
	if err := paths.EnsureParentDir(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer, per spec.md §3 Ownership

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		L_warn("store: failed to enable foreign keys", "error", err)
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}

	if err := paths.EnsureDir(paths.LogsDir(workspaceRoot)); err != nil {
		db.Close()
		return nil, err
	}

	L_info("store: opened", "path", dbPath)
	return &Store{db: db, workspaceRoot: workspaceRoot}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// nullable turns an empty string into a SQL NULL, avoiding an empty
// string from masking an absent value in nullable TEXT columns.
func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
