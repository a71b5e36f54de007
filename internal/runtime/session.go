package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/pith-agent/pith/internal/store"
)

// defaultCompactKeep is the keepRecent value used when /session/compact
// is called without an explicit count, per spec.md §4.4.6.
const defaultCompactKeep = 50

// NewSession starts a fresh session and installs it as active,
// satisfying http.ChatRunner.NewSession.
func (r *Runtime) NewSession(ctx context.Context) (string, error) {
	return r.store.NewSession(ctx)
}

// CompactSession summarizes and trims sessionID down to its most recent
// keep messages (defaultCompactKeep when keep <= 0), satisfying
// http.ChatRunner.CompactSession. It returns sessionID unchanged for
// convenience in the HTTP response.
func (r *Runtime) CompactSession(ctx context.Context, sessionID string, keep int) (string, error) {
	if keep <= 0 {
		keep = defaultCompactKeep
	}
	if err := r.store.CompactSession(ctx, sessionID, keep); err != nil {
		return "", fmt.Errorf("runtime: compact session: %w", err)
	}
	return sessionID, nil
}

// SessionInfo reports the session/bootstrap/profile snapshot described
// in spec.md §4.4.6, satisfying http.ChatRunner.SessionInfo.
func (r *Runtime) SessionInfo(ctx context.Context, sessionID string) (map[string]any, error) {
	if sessionID == "" {
		resolved, err := r.store.EnsureActiveSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("runtime: resolve session: %w", err)
		}
		sessionID = resolved
	}

	complete, err := r.store.GetBootstrapState(ctx)
	if err != nil {
		return nil, err
	}
	agentFields, err := r.store.GetProfileFields(ctx, "agent")
	if err != nil {
		return nil, err
	}
	userFields, err := r.store.GetProfileFields(ctx, "user")
	if err != nil {
		return nil, err
	}

	history, err := r.store.GetMessageHistory(ctx, sessionID, historyWindow)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"session_id":         sessionID,
		"bootstrap_complete": complete,
		"agent_profile":      profileValues(agentFields),
		"user_profile":       profileValues(userFields),
		"profile_updated":    profileUpdatedTimes(agentFields, userFields),
		"message_count":      len(history),
	}, nil
}

// profileValues flattens fields to the bare key/value map get_info's
// core shape names.
func profileValues(fields []store.ProfileField) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

// profileUpdatedTimes supplements get_info with each field's freshness,
// per SPEC_FULL.md §7: spec.md's data model tracks updated_at per field
// but §4.4.6 only names four top-level response fields.
func profileUpdatedTimes(agent, user []store.ProfileField) map[string]string {
	out := make(map[string]string, len(agent)+len(user))
	for _, f := range agent {
		out["agent."+f.Key] = f.UpdatedAt.UTC().Format(time.RFC3339)
	}
	for _, f := range user {
		out["user."+f.Key] = f.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}
