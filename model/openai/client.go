// Package openai provides a model.Client implementation backed by the OpenAI
// Chat Completions API. It translates agentrt requests into ChatCompletion
// calls using github.com/sashabaranov/go-openai and maps responses back into
// the generic model types.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/flowmesh/agentrt/model"
)

// ChatClient captures the subset of the go-openai client used by the
// adapter, so callers can substitute a fake in tests.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Options configures the OpenAI adapter.
type Options struct {
	Client       ChatClient
	DefaultModel string
}

// Client implements model.Client via the OpenAI Chat Completions API.
//
// Streaming is not implemented: Chat Completions streaming uses a
// fundamentally different delta-accumulation shape than the Anthropic SSE
// events this runtime was built against, and no SPEC_FULL component requires
// OpenAI streaming specifically — Stream returns model.ErrStreamingUnsupported.
// agent.Agent only calls Stream, so an Agent using this client fails its
// first model call with KindModelError. Only Complete talks to the API.
type Client struct {
	chat  ChatClient
	model string
}

// New builds an OpenAI-backed model client from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("default model is required")
	}
	return &Client{chat: opts.Client, model: modelID}, nil
}

// NewFromAPIKey constructs a client using the default go-openai HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key is required")
	}
	return New(Options{Client: openai.NewClient(apiKey), DefaultModel: defaultModel})
}

// Complete renders a chat completion using the configured OpenAI client.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = c.model
	}

	messages, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	tools, err := encodeTools(req.Tools)
	if err != nil {
		return nil, err
	}

	request := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       tools,
	}
	if req.ToolChoice != nil {
		choice, err := encodeToolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		request.ToolChoice = choice
	}

	resp, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(resp), nil
}

// Stream reports that OpenAI Chat Completions streaming is not supported by
// this adapter; it always returns model.ErrStreamingUnsupported.
func (c *Client) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func encodeMessages(msgs []*model.Message) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		msg := openai.ChatCompletionMessage{Role: string(m.Role)}
		var toolResults []openai.ChatCompletionMessage
		for _, part := range m.Parts {
			switch v := part.(type) {
			case model.TextPart:
				msg.Content += v.Text
			case model.ToolUsePart:
				payload, err := json.Marshal(v.Input)
				if err != nil {
					return nil, fmt.Errorf("openai: encode tool_use %q input: %w", v.Name, err)
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   v.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      v.Name,
						Arguments: string(payload),
					},
				})
			case model.ToolResultPart:
				// OpenAI expects each tool result as its own role="tool" message,
				// so results are buffered and appended after the parent message.
				toolResults = append(toolResults, openai.ChatCompletionMessage{
					Role:       "tool",
					Content:    toolResultContent(v),
					ToolCallID: v.ToolUseID,
				})
			default:
				// Images, documents, citations, thinking, and cache checkpoints
				// have no Chat Completions representation; the model never sees
				// them via this adapter.
			}
		}
		out = appendIfNonEmpty(out, msg)
		out = append(out, toolResults...)
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message with content is required")
	}
	return out, nil
}

func appendIfNonEmpty(out []openai.ChatCompletionMessage, msg openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		return out
	}
	return append(out, msg)
}

func toolResultContent(v model.ToolResultPart) string {
	switch c := v.Content.(type) {
	case nil:
		return ""
	case string:
		return c
	case []byte:
		return string(c)
	default:
		data, err := json.Marshal(c)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func encodeTools(defs []*model.ToolDefinition) ([]openai.Tool, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		if def == nil {
			continue
		}
		params, err := json.Marshal(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("openai: marshal tool %s schema: %w", def.Name, err)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return tools, nil
}

func encodeToolChoice(choice *model.ToolChoice) (any, error) {
	switch choice.Mode {
	case "", model.ToolChoiceModeAuto:
		return "auto", nil
	case model.ToolChoiceModeNone:
		return "none", nil
	case model.ToolChoiceModeAny:
		return "required", nil
	case model.ToolChoiceModeTool:
		if choice.Name == "" {
			return nil, fmt.Errorf("openai: tool choice mode %q requires a tool name", choice.Mode)
		}
		return openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: choice.Name},
		}, nil
	default:
		return nil, fmt.Errorf("openai: unsupported tool choice mode %q", choice.Mode)
	}
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	return false
}

func translateResponse(resp openai.ChatCompletionResponse) *model.Response {
	out := &model.Response{}
	for _, choice := range resp.Choices {
		msg := choice.Message
		if strings.TrimSpace(msg.Content) != "" {
			out.Content = append(out.Content, model.Message{
				Role:  model.ConversationRoleAssistant,
				Parts: []model.Part{model.TextPart{Text: msg.Content}},
			})
		}
		for _, call := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				Name:    call.Function.Name,
				Payload: parseToolArguments(call.Function.Arguments),
				ID:      call.ID,
			})
		}
	}
	out.Usage = model.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	if len(resp.Choices) > 0 {
		out.StopReason = string(resp.Choices[0].FinishReason)
	}
	return out
}

func parseToolArguments(raw string) json.RawMessage {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return json.RawMessage("{}")
	}
	var payload any
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return json.RawMessage("{}")
	}
	return json.RawMessage(trimmed)
}
