package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/wire"
)

type echoTool struct {
	schema []byte
}

func (e echoTool) Name() string               { return "test.echo" }
func (e echoTool) Description() string        { return "echoes its input" }
func (e echoTool) ParametersSchema() []byte   { return e.schema }
func (e echoTool) Execute(_ context.Context, _ *execctx.Context, args []byte) (Result, error) {
	return Result{Content: string(args), IsSuccess: true}, nil
}

func newEchoTool() echoTool {
	return echoTool{schema: []byte(`{
		"type": "object",
		"properties": {"query": {"type": "string"}},
		"required": ["query"],
		"additionalProperties": false
	}`)}
}

func TestRegisterAndExecuteValidArgs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newEchoTool()))

	rctx := execctx.New(context.Background(), "run-1", "sess-1", wire.New())
	result, err := r.Execute(context.Background(), rctx, "test.echo", []byte(`{"query":"hello"}`))
	require.NoError(t, err)
	assert.True(t, result.IsSuccess)
	assert.JSONEq(t, `{"query":"hello"}`, result.Content)
}

func TestExecuteRejectsInvalidArgs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newEchoTool()))

	rctx := execctx.New(context.Background(), "run-1", "sess-1", wire.New())
	_, err := r.Execute(context.Background(), rctx, "test.echo", []byte(`{"unexpected":true}`))
	assert.Error(t, err)
}

func TestExecuteRejectsUnknownTool(t *testing.T) {
	r := NewRegistry()
	rctx := execctx.New(context.Background(), "run-1", "sess-1", wire.New())
	_, err := r.Execute(context.Background(), rctx, "test.missing", []byte(`{}`))
	assert.Error(t, err)
}

func TestRegisterRejectsNilTool(t *testing.T) {
	r := NewRegistry()
	err := r.Register(nil)
	assert.Error(t, err)
}
