package runtime

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/pith-agent/pith/internal/agentloop"
	"github.com/pith-agent/pith/internal/config"
	"github.com/pith-agent/pith/internal/paths"
	"github.com/pith-agent/pith/internal/store"
)

func newMaintenanceTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	workspace := t.TempDir()
	st, err := store.Open(workspace)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return &Runtime{
		workspaceRoot: workspace,
		store:         st,
		cfg: &config.Config{
			Session: config.SessionConfig{
				ContextWindowTokens: 1000,
				CompactAtPercent:    10,
				KeepRecentMessages:  1,
			},
		},
	}
}

func TestCompactOverBudgetSessionsCompactsLargeSessions(t *testing.T) {
	r := newMaintenanceTestRuntime(t)
	ctx := context.Background()

	sessionID, err := r.store.NewSession(ctx)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	var raw []json.RawMessage
	for i := 0; i < 10; i++ {
		m := agentloop.Message{Role: "user", Content: strings.Repeat("word ", 200)}
		encoded, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		raw = append(raw, encoded)
	}
	if err := r.store.AppendMessages(ctx, sessionID, raw); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	r.compactOverBudgetSessions(ctx)

	remaining, err := r.store.GetMessageHistory(ctx, sessionID, historyWindow)
	if err != nil {
		t.Fatalf("GetMessageHistory: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("expected compaction to leave 1 message, got %d", len(remaining))
	}

	summaries, err := r.store.ListSessionSummaries(ctx, sessionID)
	if err != nil {
		t.Fatalf("ListSessionSummaries: %v", err)
	}
	if len(summaries) != 1 {
		t.Errorf("expected one summary to be recorded, got %d", len(summaries))
	}
}

func TestCompactOverBudgetSessionsLeavesSmallSessionsAlone(t *testing.T) {
	r := newMaintenanceTestRuntime(t)
	ctx := context.Background()

	sessionID, err := r.store.NewSession(ctx)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	m := agentloop.Message{Role: "user", Content: "hi"}
	encoded, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := r.store.AppendMessages(ctx, sessionID, []json.RawMessage{encoded}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	r.compactOverBudgetSessions(ctx)

	remaining, err := r.store.GetMessageHistory(ctx, sessionID, historyWindow)
	if err != nil {
		t.Fatalf("GetMessageHistory: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("expected untouched session to keep its one message, got %d", len(remaining))
	}
}

func TestRotateEventsLogRotatesOversizeFile(t *testing.T) {
	r := newMaintenanceTestRuntime(t)

	logsDir := paths.LogsDir(r.workspaceRoot)
	if err := paths.EnsureDir(logsDir); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	path := paths.EventsLogPath(r.workspaceRoot)
	oversize := make([]byte, eventsLogRotateBytes+1)
	if err := os.WriteFile(path, oversize, 0o644); err != nil {
		t.Fatalf("write events log: %v", err)
	}

	r.rotateEventsLog()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected events.jsonl to be rotated away, stat err: %v", err)
	}
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected events.jsonl.1 to exist: %v", err)
	}
}

func TestRotateEventsLogLeavesSmallFileAlone(t *testing.T) {
	r := newMaintenanceTestRuntime(t)

	logsDir := paths.LogsDir(r.workspaceRoot)
	if err := paths.EnsureDir(logsDir); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	path := paths.EventsLogPath(r.workspaceRoot)
	if err := os.WriteFile(path, []byte("small"), 0o644); err != nil {
		t.Fatalf("write events log: %v", err)
	}

	r.rotateEventsLog()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected small events.jsonl to remain in place: %v", err)
	}
}
