package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	. "github.com/pith-agent/pith/internal/logging"
)

// Run drives one full chat turn: it streams the model's response,
// dispatches any tool calls the model requests through cfg.Dispatch,
// feeds the results back, and repeats until the model stops asking for
// tools or the iteration bound is hit. Events are emitted onto the
// returned channel as they happen; the channel is closed when the turn
// finishes (successfully or not — a mid-turn error surfaces as a final
// EventFinal built from whatever text had accumulated so far).
//
// Grounded on the teacher's internal/llm/anthropic.go StreamMessage:
// same stream.Next()/message.Accumulate(event) loop and the same
// switch over ContentBlockDeltaEvent/TextDelta, generalized into a
// multi-iteration loop that keeps going across tool round-trips
// instead of returning after one provider call.
func Run(ctx context.Context, client *anthropic.Client, cfg RunConfig) (<-chan Event, error) {
	if cfg.Dispatch == nil {
		return nil, fmt.Errorf("agentloop: RunConfig.Dispatch is required")
	}

	maxIterations := cfg.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxToolIterations
	}

	events := make(chan Event, 16)

	go func() {
		defer close(events)

		history := append([]Message(nil), cfg.Messages...)
		var newMessages []Message
		var finalText string

		if cfg.NewUserMessage != "" {
			userMsg := Message{Role: "user", Content: cfg.NewUserMessage}
			history = append(history, userMsg)
			newMessages = append(newMessages, userMsg)
		}

		for iteration := 0; iteration < maxIterations; iteration++ {
			params := anthropic.MessageNewParams{
				Model:     anthropic.Model(cfg.Model),
				MaxTokens: int64(cfg.MaxTokens),
				Messages:  convertMessages(history),
			}
			if cfg.SystemPrompt != "" {
				params.System = []anthropic.TextBlockParam{{Text: cfg.SystemPrompt}}
			}
			if len(cfg.Tools) > 0 {
				params.Tools = convertTools(cfg.Tools)
			}

			stream := client.Messages.NewStreaming(ctx, params)

			var message anthropic.Message
			var textStarted bool
			for stream.Next() {
				event := stream.Current()
				if err := message.Accumulate(event); err != nil {
					L_warn("agentloop: accumulate failed", "error", err)
					continue
				}

				switch eventVariant := event.AsAny().(type) {
				case anthropic.ContentBlockDeltaEvent:
					switch deltaVariant := eventVariant.Delta.AsAny().(type) {
					case anthropic.TextDelta:
						if deltaVariant.Text == "" {
							continue
						}
						if !textStarted {
							textStarted = true
							events <- Event{Kind: EventTextStart, Delta: deltaVariant.Text}
						} else {
							events <- Event{Kind: EventTextDelta, Delta: deltaVariant.Text}
						}
					}
				}
			}
			if err := stream.Err(); err != nil {
				L_warn("agentloop: stream error", "error", err)
				events <- Event{Kind: EventFinal, Final: finalText, NewMessages: newMessages}
				return
			}

			var turnText string
			var toolUses []anthropic.ToolUseBlock
			for _, block := range message.Content {
				switch variant := block.AsAny().(type) {
				case anthropic.TextBlock:
					turnText += variant.Text
				case anthropic.ToolUseBlock:
					toolUses = append(toolUses, variant)
				}
			}
			if turnText != "" {
				finalText = turnText
				assistantMsg := Message{Role: "assistant", Content: turnText}
				history = append(history, assistantMsg)
				newMessages = append(newMessages, assistantMsg)
			}

			if len(toolUses) == 0 || string(message.StopReason) != "tool_use" {
				break
			}

			for _, toolUse := range toolUses {
				inputJSON, err := json.Marshal(toolUse.Input)
				if err != nil {
					inputJSON = json.RawMessage("{}")
				}

				toolUseMsg := Message{
					Role:      "tool_use",
					ToolUseID: toolUse.ID,
					ToolName:  toolUse.Name,
					ToolInput: inputJSON,
				}
				history = append(history, toolUseMsg)
				newMessages = append(newMessages, toolUseMsg)

				events <- Event{Kind: EventToolCall, ToolName: toolUse.Name, ToolArgs: inputJSON}

				result, ok := cfg.Dispatch.Dispatch(toolUse.Name, inputJSON)

				events <- Event{Kind: EventToolResult, ToolName: toolUse.Name, ToolOK: ok}

				resultMsg := Message{
					Role:       "tool_result",
					ToolUseID:  toolUse.ID,
					ToolResult: result,
					IsError:    !ok,
				}
				history = append(history, resultMsg)
				newMessages = append(newMessages, resultMsg)
			}
		}

		events <- Event{Kind: EventFinal, Final: finalText, NewMessages: newMessages}
	}()

	return events, nil
}
