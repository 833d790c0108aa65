package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider adapts the Anthropic Messages API to llm.Provider,
// grounded alongside OpenAIProvider on the same pack-repo LLM client shape.
// Anthropic splits the system prompt out of the message list, so this
// adapter pulls a leading RoleSystem message out of history before calling.
type AnthropicProvider struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicProvider builds a provider bound to model (e.g.
// anthropic.ModelClaude3_5SonnetLatest), using apiKey for auth.
func NewAnthropicProvider(apiKey string, model anthropic.Model, maxTokens int64) *AnthropicProvider {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func splitSystemPrompt(history []Message) (string, []Message) {
	if len(history) > 0 && history[0].Role == RoleSystem {
		return history[0].Content, history[1:]
	}
	return "", history
}

func toAnthropicMessages(history []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return out
}

func toAnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        s.Name,
				Description: anthropic.String(s.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: s.Parameters},
			},
		})
	}
	return out
}

func fromAnthropicContent(blocks []anthropic.ContentBlockUnion) (string, []ToolCall) {
	var text string
	var calls []ToolCall
	for _, b := range blocks {
		switch variant := b.AsAny().(type) {
		case anthropic.TextBlock:
			text += variant.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			_ = json.Unmarshal(variant.Input, &args)
			calls = append(calls, ToolCall{ID: variant.ID, Name: variant.Name, Arguments: args})
		}
	}
	return text, calls
}

// Complete performs one non-streamed Messages API request.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	system, rest := splitSystemPrompt(req.History)
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages:  toAnthropicMessages(rest),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.ToolMode != ToolCallOff && len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, errors.New("llm: anthropic returned no message")
	}
	text, calls := fromAnthropicContent(msg.Content)
	return &Response{Text: text, ToolCalls: calls, FinishReason: string(msg.StopReason)}, nil
}

// CompleteStream streams Messages API deltas.
func (p *AnthropicProvider) CompleteStream(ctx context.Context, req Request) (<-chan StreamDelta, error) {
	system, rest := splitSystemPrompt(req.History)
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages:  toAnthropicMessages(rest),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.ToolMode != ToolCallOff && len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	out := make(chan StreamDelta, 8)

	go func() {
		defer close(out)
		var acc anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				out <- StreamDelta{Done: true, Err: err}
				return
			}
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if textDelta, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && textDelta.Text != "" {
					out <- StreamDelta{TextDelta: textDelta.Text}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- StreamDelta{Done: true, Err: err}
			return
		}
		_, calls := fromAnthropicContent(acc.Content)
		out <- StreamDelta{ToolCalls: calls, Done: true}
	}()

	return out, nil
}
