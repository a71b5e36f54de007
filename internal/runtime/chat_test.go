package runtime

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pith-agent/pith/internal/config"
	"github.com/pith-agent/pith/internal/extensions"
	"github.com/pith-agent/pith/internal/mcpregistry"
	"github.com/pith-agent/pith/internal/store"
)

// fakeAnthropicServer replies to every streaming Messages call with a
// single fixed text turn, in the same event-stream shape the real API
// sends (message_start/content_block_start/content_block_delta/
// content_block_stop/message_delta/message_stop), so agentloop.Run's
// stream.Next()/Accumulate loop exercises a real parse.
func fakeAnthropicServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)

		frames := []struct{ event, data string }{
			{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-5-20250929","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":0}}}`},
			{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", fmt.Sprintf(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%q}}`, reply)},
			{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":1}}`},
			{"message_stop", `{"type":"message_stop"}`},
		}
		for _, f := range frames {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.event, f.data)
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}))
}

func newChatTestRuntime(t *testing.T, reply string) *Runtime {
	t.Helper()
	workspace := t.TempDir()

	st, err := store.Open(workspace)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	server := fakeAnthropicServer(t, reply)
	t.Cleanup(server.Close)

	client := anthropic.NewClient(option.WithAPIKey("test-key"), option.WithBaseURL(server.URL))

	return &Runtime{
		workspaceRoot: workspace,
		store:         st,
		extensions:    extensions.NewRegistry(workspace, 0),
		remote:        mcpregistry.NewManager(workspace),
		client:        &client,
		pending:       make(map[string]chan secretDelivery),
		bridges:       make(map[string]ChatBridge),
		cfg: &config.Config{
			Agent: config.AgentConfig{Name: "pith"},
			LLM:   config.LLMConfig{Model: "claude-sonnet-4-5-20250929", MaxTokens: 512},
			Session: config.SessionConfig{
				ContextWindowTokens: 180000,
				CompactAtPercent:    80,
				KeepRecentMessages:  20,
			},
		},
	}
}

// TestChatBootstrapPromptUntilIdentityKnown covers testable scenario S1:
// before agent.name, agent.nature, and user.name are all set, the turn
// runs under the bootstrap system prompt and bootstrap_complete stays
// false; once all three are recorded, SessionInfo reports it complete
// with no re-derivation inside the chat loop itself.
func TestChatBootstrapPromptUntilIdentityKnown(t *testing.T) {
	ctx := context.Background()
	r := newChatTestRuntime(t, "Hi, I'm still getting to know you.")

	sessionID, err := r.NewSession(ctx)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if _, err := r.Chat(ctx, sessionID, "", "hello", nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	info, err := r.SessionInfo(ctx, sessionID)
	if err != nil {
		t.Fatalf("SessionInfo: %v", err)
	}
	if info["bootstrap_complete"] != false {
		t.Errorf("bootstrap_complete = %v, want false before identity is known", info["bootstrap_complete"])
	}

	if err := r.store.SetProfile(ctx, "agent", "name", "Pip"); err != nil {
		t.Fatalf("SetProfile agent.name: %v", err)
	}
	if err := r.store.SetProfile(ctx, "agent", "nature", "a curious helper"); err != nil {
		t.Fatalf("SetProfile agent.nature: %v", err)
	}
	if err := r.store.SetProfile(ctx, "user", "name", "Dana"); err != nil {
		t.Fatalf("SetProfile user.name: %v", err)
	}

	info, err = r.SessionInfo(ctx, sessionID)
	if err != nil {
		t.Fatalf("SessionInfo: %v", err)
	}
	if info["bootstrap_complete"] != true {
		t.Errorf("bootstrap_complete = %v, want true once name/nature/name are all set", info["bootstrap_complete"])
	}
}

// TestChatPrependsMemoryRecallToUserMessage covers testable scenario
// S2: a matching memory is prepended to the user's message text (not
// the system prompt), so it both reaches the model as user text and is
// persisted in session history.
func TestChatPrependsMemoryRecallToUserMessage(t *testing.T) {
	ctx := context.Background()
	r := newChatTestRuntime(t, "Got it.")

	sessionID, err := r.NewSession(ctx)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if _, err := r.store.MemorySave(ctx, "the user's cat is named Whiskers", "durable", "", ""); err != nil {
		t.Fatalf("MemorySave: %v", err)
	}

	if _, err := r.Chat(ctx, sessionID, "", "what's my cat's name?", nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	raw, err := r.store.GetMessageHistory(ctx, sessionID, historyWindow)
	if err != nil {
		t.Fatalf("GetMessageHistory: %v", err)
	}
	history, err := decodeHistory(raw)
	if err != nil {
		t.Fatalf("decodeHistory: %v", err)
	}

	var userMsg *string
	for i := range history {
		if history[i].Role == "user" {
			userMsg = &history[i].Content
			break
		}
	}
	if userMsg == nil {
		t.Fatal("no persisted user message found")
	}
	if !contains(*userMsg, "[Relevant memories]") {
		t.Errorf("persisted user message missing recall preface: %q", *userMsg)
	}
	if !contains(*userMsg, "Whiskers") {
		t.Errorf("persisted user message missing recalled fact: %q", *userMsg)
	}
	if !contains(*userMsg, "what's my cat's name?") {
		t.Errorf("persisted user message missing original text: %q", *userMsg)
	}
}

func TestChatPersistsAssistantReply(t *testing.T) {
	ctx := context.Background()
	r := newChatTestRuntime(t, "the answer is 4")

	sessionID, err := r.NewSession(ctx)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	final, err := r.Chat(ctx, sessionID, "", "what is 2+2?", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if final != "the answer is 4" {
		t.Errorf("Chat final = %q, want %q", final, "the answer is 4")
	}

	info, err := r.SessionInfo(ctx, sessionID)
	if err != nil {
		t.Fatalf("SessionInfo: %v", err)
	}
	if info["message_count"] != 2 {
		t.Errorf("message_count = %v, want 2 (user + assistant)", info["message_count"])
	}
}
