package store

import "time"

// Session is a conversation thread. At most one session is active at a
// time; the active pointer lives in AppState under activeSessionKey.
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	IsActive  bool
}

// StoredMessage is one opaque, provider-serialized model message. The
// store never interprets message_json; it only orders and round-trips it.
type StoredMessage struct {
	ID        int64
	SessionID string
	Message   []byte // canonical JSON form, verbatim
	CreatedAt time.Time
}

// SessionSummary is a compaction artifact: the serialized, truncated
// forms of the messages a compaction removed, joined by newline.
type SessionSummary struct {
	ID        int64
	SessionID string
	Summary   string
	CreatedAt time.Time
}

// MemoryEntry is one durable or episodic fact. Soft-deleted rows are
// filtered out of search but remain in the table.
type MemoryEntry struct {
	ID        int64
	Content   string
	Kind      string
	Tags      string
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
	Deleted   bool
}

// ProfileField is one (profile_type, key) -> value fact about the agent
// or the user.
type ProfileField struct {
	ProfileType string
	Key         string
	Value       string
	UpdatedAt   time.Time
}
