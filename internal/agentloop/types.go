// Package agentloop drives one chat turn against Anthropic's Messages
// API: it streams text, dispatches model-requested tool calls through a
// Dispatcher, feeds results back, and repeats until the model stops
// requesting tools. A fresh Dispatcher and tool set are supplied per
// call, matching the runtime's "rebuild the agent every turn" contract.
package agentloop

import "encoding/json"

// EventKind discriminates the sum type streamed out of Run.
type EventKind int

const (
	EventTextStart EventKind = iota
	EventTextDelta
	EventToolCall
	EventToolResult
	EventFinal
)

// Event is one step of a running turn. NewMessages is populated only on
// EventFinal, carrying every message produced this turn (the user
// message plus whatever assistant/tool_use/tool_result records resulted)
// in insertion order, ready for the caller to append to durable storage.
type Event struct {
	Kind        EventKind
	Delta       string
	ToolName    string
	ToolArgs    json.RawMessage
	ToolOK      bool
	Final       string
	NewMessages []Message
}

// Message is the sum-typed, provider-agnostic record this package both
// consumes (prior turns) and produces (this turn). Role is one of
// "user", "assistant", "tool_use", "tool_result".
type Message struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolUseID  string          `json:"tool_use_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	ToolResult string          `json:"tool_result,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
}

// ToolDefinition is the provider-agnostic tool schema handed to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Dispatcher executes a model-requested tool call. ok is false when the
// result text represents an error the model should see and potentially
// react to (not a crash — errors are always returned as text per the
// tool-scoped local-recovery policy).
type Dispatcher interface {
	Dispatch(name string, args json.RawMessage) (result string, ok bool)
}

// RunConfig parametrizes one turn.
type RunConfig struct {
	Model        string
	MaxTokens    int
	SystemPrompt string
	// Messages is the prior history already persisted in the store, in
	// provider-agnostic form. It does not include the new user message.
	Messages []Message
	// NewUserMessage is the user's text for this turn. It is appended to
	// Messages before the first provider call and is itself included in
	// Event.NewMessages on EventFinal, since the caller still needs to
	// persist it alongside whatever the turn produced.
	NewUserMessage string
	Tools          []ToolDefinition
	Dispatch Dispatcher
	// MaxToolIterations bounds the tool round-trip loop so a
	// misbehaving model/tool pair can't spin forever. Zero uses a
	// sane default.
	MaxToolIterations int
}

const defaultMaxToolIterations = 25
