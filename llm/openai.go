package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider adapts the OpenAI chat-completions API to llm.Provider.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider builds a provider bound to model (e.g. "gpt-4o"), using
// apiKey for auth.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func toOpenAIMessages(history []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func toOpenAITools(specs []ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, s := range specs {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        s.Name,
				Description: openai.String(s.Description),
				Parameters:  openai.FunctionParameters(s.Parameters),
			},
		})
	}
	return out
}

func fromOpenAIToolCalls(calls []openai.ChatCompletionMessageToolCall) []ToolCall {
	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		var args map[string]any
		_ = json.Unmarshal([]byte(c.Function.Arguments), &args)
		out = append(out, ToolCall{ID: c.ID, Name: c.Function.Name, Arguments: args})
	}
	return out
}

// Complete performs one non-streamed chat-completions request.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(req.History),
	}
	if req.ToolMode != ToolCallOff && len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm: openai returned no choices")
	}
	choice := resp.Choices[0]
	return &Response{
		Text:         choice.Message.Content,
		ToolCalls:    fromOpenAIToolCalls(choice.Message.ToolCalls),
		FinishReason: string(choice.FinishReason),
	}, nil
}

// CompleteStream streams chat-completion deltas; tool calls are surfaced
// only once fully accumulated, on the terminal delta.
func (p *OpenAIProvider) CompleteStream(ctx context.Context, req Request) (<-chan StreamDelta, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(req.History),
	}
	if req.ToolMode != ToolCallOff && len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	out := make(chan StreamDelta, 8)

	go func() {
		defer close(out)
		var acc openai.ChatCompletionAccumulator
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) > 0 {
				delta := chunk.Choices[0].Delta.Content
				if delta != "" {
					out <- StreamDelta{TextDelta: delta}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- StreamDelta{Done: true, Err: err}
			return
		}
		var toolCalls []ToolCall
		if len(acc.Choices) > 0 {
			toolCalls = fromOpenAIToolCalls(acc.Choices[0].Message.ToolCalls)
		}
		out <- StreamDelta{ToolCalls: toolCalls, Done: true}
	}()

	return out, nil
}
