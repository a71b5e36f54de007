package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pith-agent/pith/internal/paths"
)

var eventLogMu sync.Mutex

type eventLine struct {
	Timestamp time.Time `json:"ts"`
	Event     string    `json:"event"`
	Level     string    `json:"level"`
	Payload   any       `json:"payload,omitempty"`
}

// LogEvent appends one JSON line to <workspace>/.pith/logs/events.jsonl,
// creating the file on first use.
func (s *Store) LogEvent(event, level string, payload any) error {
	eventLogMu.Lock()
	defer eventLogMu.Unlock()

	line := eventLine{Timestamp: time.Now(), Event: event, Level: level, Payload: payload}
	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("store: marshal event: %w", err)
	}

	path := paths.EventsLogPath(s.workspaceRoot)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("store: open events log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("store: write event: %w", err)
	}
	return nil
}
