package anthropic

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/agentrt/model"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
	stream     *ssestream.Stream[sdk.MessageStreamEventUnion]
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func (s *stubMessagesClient) NewStreaming(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	s.lastParams = body
	if s.stream == nil {
		s.stream = ssestream.NewStream[sdk.MessageStreamEventUnion](&noopDecoder{}, nil)
	}
	return s.stream
}

type noopDecoder struct{}

func (n *noopDecoder) Event() ssestream.Event { return ssestream.Event{} }
func (n *noopDecoder) Next() bool             { return false }
func (n *noopDecoder) Close() error           { return nil }
func (n *noopDecoder) Err() error             { return nil }

func TestCompleteTranslatesTextResponse(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "world"}},
			StopReason: sdk.StopReasonEndTurn,
			Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
		},
	}
	cl, err := New(stub, Options{DefaultModel: "claude-3.5-sonnet", MaxTokens: 128})
	require.NoError(t, err)

	req := &model.Request{
		Messages: []*model.Message{
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "hello"}}},
		},
	}

	resp, err := cl.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "world", resp.Content[0].Parts[0].(model.TextPart).Text)
	assert.Equal(t, string(sdk.StopReasonEndTurn), resp.StopReason)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.OutputTokens)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestCompleteTranslatesToolUse(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "tool_use", ID: "call-1", Name: "tool", Input: []byte(`{"q":"x"}`)},
			},
			StopReason: sdk.StopReasonToolUse,
		},
	}
	cl, err := New(stub, Options{DefaultModel: "claude-3.5-sonnet", MaxTokens: 128})
	require.NoError(t, err)

	req := &model.Request{
		Messages: []*model.Message{
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "call tool"}}},
		},
		Tools: []*model.ToolDefinition{
			{Name: "test.tool", Description: "test tool", InputSchema: map[string]any{"type": "object"}},
		},
	}

	resp, err := cl.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "test.tool", resp.ToolCalls[0].Name)
	assert.Equal(t, "call-1", resp.ToolCalls[0].ID)
}

func TestCompleteRequiresMessages(t *testing.T) {
	cl, err := New(&stubMessagesClient{}, Options{DefaultModel: "claude-3.5-sonnet", MaxTokens: 128})
	require.NoError(t, err)
	_, err = cl.Complete(context.Background(), &model.Request{})
	assert.Error(t, err)
}

func TestNewRejectsMissingDefaultModel(t *testing.T) {
	_, err := New(&stubMessagesClient{}, Options{})
	assert.Error(t, err)
}

func TestSanitizeToolNameStripsToolsetPrefix(t *testing.T) {
	assert.Equal(t, "tool", sanitizeToolName("toolset.tool"))
	assert.Equal(t, "a_b", sanitizeToolName("a b"))
}
