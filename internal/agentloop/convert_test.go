package agentloop

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvertMessagesRoles(t *testing.T) {
	messages := []Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
		{Role: "tool_use", ToolUseID: "tu_1", ToolName: "read", ToolInput: json.RawMessage(`{"path":"a.txt"}`)},
		{Role: "tool_result", ToolUseID: "tu_1", ToolResult: "contents", IsError: false},
	}

	params := convertMessages(messages)
	require.Len(t, params, 4)
}

func TestConvertMessagesSkipsEmptyText(t *testing.T) {
	messages := []Message{
		{Role: "user", Content: ""},
		{Role: "assistant", Content: ""},
	}
	params := convertMessages(messages)
	require.Empty(t, params)
}

func TestConvertMessagesHandlesUnparsableToolInput(t *testing.T) {
	messages := []Message{
		{Role: "tool_use", ToolUseID: "tu_1", ToolName: "broken", ToolInput: json.RawMessage(`not-json`)},
	}
	require.NotPanics(t, func() {
		convertMessages(messages)
	})
}

func TestConvertToolsIncludesSchema(t *testing.T) {
	defs := []ToolDefinition{
		{
			Name:        "read",
			Description: "reads a file",
			InputSchema: map[string]any{
				"properties": map[string]any{
					"path": map[string]any{"type": "string"},
				},
			},
		},
	}

	tools := convertTools(defs)
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	require.Equal(t, "read", tools[0].OfTool.Name)
}

func TestConvertToolsWithoutProperties(t *testing.T) {
	defs := []ToolDefinition{
		{Name: "ping", Description: "no-op", InputSchema: map[string]any{}},
	}
	tools := convertTools(defs)
	require.Len(t, tools, 1)
}
