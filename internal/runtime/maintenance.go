package runtime

import (
	"context"
	"os"

	"github.com/robfig/cron/v3"

	"github.com/pith-agent/pith/internal/paths"

	. "github.com/pith-agent/pith/internal/logging"
)

// eventsLogRotateBytes is the size at which the event log is rotated
// to events.jsonl.1 by the maintenance sweep.
const eventsLogRotateBytes = 10 * 1024 * 1024

// StartMaintenance installs the hourly compaction-and-rotation sweep
// described in spec.md's runtime elaboration. It runs for the lifetime
// of ctx and returns the cron scheduler so the caller can Stop it on
// shutdown. A disabled schedule is a no-op that returns a nil scheduler.
func (r *Runtime) StartMaintenance(ctx context.Context) *cron.Cron {
	if !r.cfg.Cron.Enabled {
		return nil
	}

	schedule := r.cfg.Cron.Schedule
	if schedule == "" {
		schedule = "@hourly"
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		r.runMaintenanceSweep(ctx)
	})
	if err != nil {
		L_warn("runtime: invalid cron schedule, maintenance disabled", "schedule", schedule, "error", err)
		return nil
	}

	c.Start()
	L_info("runtime: maintenance scheduler started", "schedule", schedule)
	return c
}

func (r *Runtime) runMaintenanceSweep(ctx context.Context) {
	r.compactOverBudgetSessions(ctx)
	r.rotateEventsLog()
}

func (r *Runtime) compactOverBudgetSessions(ctx context.Context) {
	_, triggerAt := r.contextWindowBudget()

	ids, err := r.store.ListSessionIDs(ctx)
	if err != nil {
		L_warn("runtime: maintenance sweep: list sessions failed", "error", err)
		return
	}

	keep := r.cfg.Session.KeepRecentMessages
	if keep <= 0 {
		keep = 20
	}

	for _, id := range ids {
		raw, err := r.store.GetMessageHistory(ctx, id, historyWindow)
		if err != nil {
			L_warn("runtime: maintenance sweep: load history failed", "session", id, "error", err)
			continue
		}
		history, err := decodeHistory(raw)
		if err != nil {
			L_warn("runtime: maintenance sweep: decode history failed", "session", id, "error", err)
			continue
		}
		if estimateHistoryTokens(history) < triggerAt {
			continue
		}

		if err := r.store.CompactSession(ctx, id, keep); err != nil {
			L_warn("runtime: maintenance sweep: compact failed", "session", id, "error", err)
			continue
		}
		_ = r.store.LogEvent("auto_compact", "info", map[string]any{"session_id": id})
		L_info("runtime: maintenance sweep compacted session", "session", id)
	}
}

func (r *Runtime) rotateEventsLog() {
	path := paths.EventsLogPath(r.workspaceRoot)
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Size() < eventsLogRotateBytes {
		return
	}

	rotated := path + ".1"
	if err := os.Rename(path, rotated); err != nil {
		L_warn("runtime: events log rotation failed", "error", err)
		return
	}
	L_info("runtime: rotated events log", "path", rotated, "size_bytes", info.Size())
}
