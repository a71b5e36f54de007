package agentloop

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
)

// convertMessages renders our provider-agnostic Message slice into
// Anthropic's MessageParam form. Unlike a history merged from multiple
// sources, every Message here was produced by this package itself, so
// tool_use/tool_result pairing is already self-consistent and needs no
// repair pass.
func convertMessages(messages []Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case "user":
			if msg.Content == "" {
				continue
			}
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case "assistant":
			if msg.Content == "" {
				continue
			}
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))

		case "tool_use":
			var input any
			if len(msg.ToolInput) > 0 {
				_ = json.Unmarshal(msg.ToolInput, &input)
			}
			result = append(result, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					{
						OfToolUse: &anthropic.ToolUseBlockParam{
							ID:    msg.ToolUseID,
							Name:  msg.ToolName,
							Input: input,
						},
					},
				},
			})

		case "tool_result":
			result = append(result, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewToolResultBlock(msg.ToolUseID, msg.ToolResult, msg.IsError),
				},
			})
		}
	}

	return result
}

// convertTools renders our provider-agnostic ToolDefinition slice into
// Anthropic's tool-union param form.
func convertTools(defs []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(defs))

	for _, def := range defs {
		var properties any
		if props, ok := def.InputSchema["properties"]; ok {
			properties = props
		}

		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: properties},
			},
		})
	}

	return result
}
