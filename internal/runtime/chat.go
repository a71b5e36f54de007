package runtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pith-agent/pith/internal/agentloop"
	"github.com/pith-agent/pith/internal/channel"
	httpapi "github.com/pith-agent/pith/internal/http"

	. "github.com/pith-agent/pith/internal/logging"
)

// ChatBridge receives the streaming callbacks produced while a turn
// runs. Implementations that don't care about intermediate events
// (channel adapters) can pass a bridge whose methods are no-ops. It is
// the same shape httpapi.ChatBridge expects, so the HTTP layer's SSE
// bridge satisfies it directly.
type ChatBridge = httpapi.ChatBridge

// Chat runs one full turn of the chat loop described in spec.md §4.4.4:
// resolve the session, load history and relevant memories, build the
// system prompt and a fresh dispatcher, drive agentloop.Run, bridge its
// events out, and persist everything the turn produced in one atomic
// append. It returns the agent's full response text.
func (r *Runtime) Chat(ctx context.Context, sessionID, channelName, message string, bridge ChatBridge) (string, error) {
	// A nil bridge means the caller (a channel adapter) has no way to
	// surface an out-of-band secret prompt; store_secret must fail fast
	// rather than block for 60s with nobody able to answer.
	interactive := bridge != nil
	if !interactive {
		bridge = noopBridge{}
	}

	if sessionID == "" {
		resolved, err := r.store.EnsureActiveSession(ctx)
		if err != nil {
			return "", fmt.Errorf("runtime: resolve session: %w", err)
		}
		sessionID = resolved
	}

	rawHistory, err := r.store.GetMessageHistory(ctx, sessionID, historyWindow)
	if err != nil {
		return "", fmt.Errorf("runtime: load history: %w", err)
	}
	history, err := decodeHistory(rawHistory)
	if err != nil {
		return "", fmt.Errorf("runtime: decode history: %w", err)
	}

	in, err := r.gatherPromptInputs(ctx)
	if err != nil {
		return "", err
	}

	systemPrompt := buildSystemPrompt(in, channelName)
	userMessage := message
	if recall := r.recallMemories(ctx, message); recall != "" {
		userMessage = recall + message
	}

	turnCtx := withSessionID(ctx, sessionID)
	dispatch := r.newDispatcher(turnCtx, sessionID)
	if interactive {
		r.bindSecretBridge(sessionID, bridge)
		defer r.unbindSecretBridge(sessionID)
	}

	cfg := agentloop.RunConfig{
		Model:          r.cfg.LLM.Model,
		MaxTokens:      r.cfg.LLM.MaxTokens,
		SystemPrompt:   systemPrompt,
		Messages:       history,
		NewUserMessage: userMessage,
		Tools:          builtinToolDefs(r.cfg.Tools.WebFetchEnabled),
		Dispatch:       dispatch,
	}

	events, err := agentloop.Run(ctx, r.client, cfg)
	if err != nil {
		return "", fmt.Errorf("runtime: start turn: %w", err)
	}

	var final string
	var newMessages []agentloop.Message
	for ev := range events {
		switch ev.Kind {
		case agentloop.EventTextStart, agentloop.EventTextDelta:
			bridge.OnText(ev.Delta)
		case agentloop.EventToolCall:
			bridge.OnToolCall(ev.ToolName, ev.ToolArgs)
		case agentloop.EventToolResult:
			bridge.OnToolResult(ev.ToolName, ev.ToolOK)
		case agentloop.EventFinal:
			final = ev.Final
			newMessages = ev.NewMessages
		}
	}

	if err := r.persistTurn(ctx, sessionID, newMessages); err != nil {
		return final, err
	}

	return final, nil
}

// Handle satisfies channels.Dispatcher: every channel adapter's inbound
// message is routed to the active session with no streaming bridge.
func (r *Runtime) Handle(ctx context.Context, msg channel.InboundMessage) (string, error) {
	return r.Chat(ctx, "", "", msg.Text, nil)
}

func (r *Runtime) persistTurn(ctx context.Context, sessionID string, messages []agentloop.Message) error {
	if len(messages) == 0 {
		return nil
	}

	raw := make([]json.RawMessage, 0, len(messages))
	for _, m := range messages {
		encoded, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("runtime: encode message: %w", err)
		}
		raw = append(raw, encoded)
	}

	if err := r.store.AppendMessages(ctx, sessionID, raw); err != nil {
		return fmt.Errorf("runtime: append messages: %w", err)
	}

	if err := r.maybeAutoCompact(ctx, sessionID); err != nil {
		L_warn("runtime: auto-compact failed", "session", sessionID, "error", err)
	}

	return nil
}

// maybeAutoCompact compacts the session once its estimated token usage
// crosses the configured trigger threshold.
func (r *Runtime) maybeAutoCompact(ctx context.Context, sessionID string) error {
	_, triggerAt := r.contextWindowBudget()

	raw, err := r.store.GetMessageHistory(ctx, sessionID, historyWindow)
	if err != nil {
		return err
	}
	history, err := decodeHistory(raw)
	if err != nil {
		return err
	}
	if estimateHistoryTokens(history) < triggerAt {
		return nil
	}

	keep := r.cfg.Session.KeepRecentMessages
	if keep <= 0 {
		keep = 20
	}
	if err := r.store.CompactSession(ctx, sessionID, keep); err != nil {
		return err
	}
	_ = r.store.LogEvent("auto_compact", "info", map[string]any{"session_id": sessionID, "trigger": "chat_turn"})
	return nil
}

func (r *Runtime) recallMemories(ctx context.Context, query string) string {
	if query == "" {
		return ""
	}
	entries, err := r.store.MemorySearch(ctx, query, memoryRecallLimit)
	if err != nil || len(entries) == 0 {
		return ""
	}

	out := "[Relevant memories]\n"
	for _, e := range entries {
		out += fmt.Sprintf("- %s\n", e.Content)
	}
	return out + "\n"
}

func decodeHistory(raw []json.RawMessage) ([]agentloop.Message, error) {
	messages := make([]agentloop.Message, 0, len(raw))
	for _, r := range raw {
		var m agentloop.Message
		if err := json.Unmarshal(r, &m); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}

type noopBridge struct{}

func (noopBridge) OnText(string)                      {}
func (noopBridge) OnToolCall(string, json.RawMessage) {}
func (noopBridge) OnToolResult(string, bool)          {}
func (noopBridge) OnSecretRequest(string, string)     {}
