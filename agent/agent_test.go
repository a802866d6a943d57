package agent

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/model"
	"github.com/flowmesh/agentrt/runnable"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/store"
	"github.com/flowmesh/agentrt/tool"
	"github.com/flowmesh/agentrt/wire"
)

// scriptedStreamer replays a fixed Chunk sequence, one per call.
type scriptedStreamer struct {
	chunks []model.Chunk
	pos    int
}

func (s *scriptedStreamer) Recv() (model.Chunk, error) {
	if s.pos >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}
func (s *scriptedStreamer) Close() error             { return nil }
func (s *scriptedStreamer) Metadata() map[string]any { return nil }

// scriptedClient returns one scriptedStreamer per Stream call, in order.
type scriptedClient struct {
	responses [][]model.Chunk
	call      int
}

func (c *scriptedClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return nil, nil
}
func (c *scriptedClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	if c.call >= len(c.responses) {
		return &scriptedStreamer{}, nil
	}
	s := &scriptedStreamer{chunks: c.responses[c.call]}
	c.call++
	return s, nil
}

func textChunk(s string) model.Chunk {
	return model.Chunk{Type: model.ChunkTypeText, Message: &model.Message{
		Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: s}},
	}}
}

func toolCallChunk(id, name string, payload any) model.Chunk {
	raw, _ := json.Marshal(payload)
	return model.Chunk{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCall{ID: id, Name: name, Payload: raw}}
}

type fakeAddTool struct{}

func (fakeAddTool) Name() string        { return "add" }
func (fakeAddTool) Description() string { return "adds two numbers" }
func (fakeAddTool) ParametersSchema() []byte {
	return []byte(`{"type":"object","properties":{"a":{"type":"number"},"b":{"type":"number"}},"required":["a","b"]}`)
}
func (fakeAddTool) Execute(_ context.Context, _ *execctx.Context, args []byte) (tool.Result, error) {
	var in struct{ A, B float64 }
	_ = json.Unmarshal(args, &in)
	return tool.Result{Content: "5", IsSuccess: true}, nil
}

func newHarness(t *testing.T) (*execctx.Context, store.SessionStore) {
	t.Helper()
	s := store.NewInMemory()
	rctx := execctx.New(context.Background(), "run-1", "sess-1", wire.New())
	return rctx, s
}

func TestAgentRunSimpleQA(t *testing.T) {
	rctx, s := newHarness(t)
	client := &scriptedClient{responses: [][]model.Chunk{{textChunk("4")}}}
	a, err := New(Config{ID: "qa", SystemPrompt: "be terse", MaxSteps: 3}, client, tool.NewRegistry(), s)
	require.NoError(t, err)

	out, err := a.Run(context.Background(), rctx, "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, runnable.TerminationNatural, out.TerminationReason)
	assert.Equal(t, "4", out.Content)

	steps, err := s.GetSteps(context.Background(), "sess-1", step.Filter{})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, step.RoleUser, steps[0].Role)
	assert.Equal(t, step.RoleAssistant, steps[1].Role)
}

func TestAgentRunSingleToolRound(t *testing.T) {
	rctx, s := newHarness(t)
	client := &scriptedClient{responses: [][]model.Chunk{
		{toolCallChunk("c1", "add", map[string]any{"a": 2, "b": 3})},
		{textChunk("The answer is 5")},
	}}
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(fakeAddTool{}))

	a, err := New(Config{ID: "calc", MaxSteps: 5, Tools: []string{"add"}}, client, registry, s)
	require.NoError(t, err)

	out, err := a.Run(context.Background(), rctx, "Add 2 and 3")
	require.NoError(t, err)
	assert.Equal(t, runnable.TerminationNatural, out.TerminationReason)
	assert.Contains(t, out.Content, "5")

	steps, err := s.GetSteps(context.Background(), "sess-1", step.Filter{})
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.Equal(t, step.RoleUser, steps[0].Role)
	assert.Equal(t, step.RoleAssistant, steps[1].Role)
	assert.Equal(t, step.RoleTool, steps[2].Role)
	assert.Equal(t, "c1", steps[2].ToolCallID)
	assert.False(t, steps[2].Failed)
	assert.Equal(t, step.RoleAssistant, steps[3].Role)
}

func TestAgentRunMaxStepsOneStopsBeforeToolExecution(t *testing.T) {
	rctx, s := newHarness(t)
	client := &scriptedClient{responses: [][]model.Chunk{
		{toolCallChunk("c1", "add", map[string]any{"a": 1, "b": 1})},
	}}
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(fakeAddTool{}))

	a, err := New(Config{ID: "calc", MaxSteps: 1, Tools: []string{"add"}}, client, registry, s)
	require.NoError(t, err)

	out, err := a.Run(context.Background(), rctx, "Add 1 and 1")
	require.NoError(t, err)
	assert.Equal(t, runnable.TerminationMaxSteps, out.TerminationReason)

	steps, err := s.GetSteps(context.Background(), "sess-1", step.Filter{})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, step.RoleAssistant, steps[1].Role)
}

func TestAgentRunUnknownToolProducesFailedStepAndContinues(t *testing.T) {
	rctx, s := newHarness(t)
	client := &scriptedClient{responses: [][]model.Chunk{
		{toolCallChunk("c1", "missing", map[string]any{})},
		{textChunk("done")},
	}}
	a, err := New(Config{ID: "agent", MaxSteps: 5, Tools: nil}, client, tool.NewRegistry(), s)
	require.NoError(t, err)

	out, err := a.Run(context.Background(), rctx, "go")
	require.NoError(t, err)
	assert.Equal(t, runnable.TerminationNatural, out.TerminationReason)

	steps, err := s.GetSteps(context.Background(), "sess-1", step.Filter{})
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.True(t, steps[2].Failed)
}
