package runnable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/wire"
)

type fakeRunnable struct {
	id string
}

func (f fakeRunnable) ID() string                 { return f.id }
func (f fakeRunnable) Type() step.RunnableType     { return step.RunnableTypeAgent }
func (f fakeRunnable) Run(_ context.Context, _ *execctx.Context, input string) (Output, error) {
	return Output{Content: "echo:" + input, TerminationReason: TerminationNatural}, nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register(fakeRunnable{id: "agent.one"})

	r, ok := reg.Lookup("agent.one")
	require.True(t, ok)
	assert.Equal(t, "agent.one", r.ID())

	_, ok = reg.Lookup("missing")
	assert.False(t, ok)
}

func TestRunnableRunProducesOutput(t *testing.T) {
	r := fakeRunnable{id: "agent.one"}
	rctx := execctx.New(context.Background(), "run-1", "sess-1", wire.New())

	out, err := r.Run(context.Background(), rctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", out.Content)
	assert.Equal(t, TerminationNatural, out.TerminationReason)
}
