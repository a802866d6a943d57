package execctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/wire"
)

func TestChildAdvancesDepthAndCallChain(t *testing.T) {
	root := New(context.Background(), "run-1", "session-1", wire.New())
	root.RunnableID = "agent.root"
	root.RunnableType = step.RunnableTypeAgent

	child := root.Child("run-2", "agent.child", step.RunnableTypeAgent, NestingTypeToolCall)

	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, "run-1", child.ParentRunID)
	assert.Equal(t, []string{"agent.root"}, child.CallChain)
	assert.Equal(t, NestingTypeToolCall, child.NestingType)
	assert.Same(t, root.Wire, child.Wire)
	assert.Same(t, root.Abort, child.Abort)
}

func TestHasVisitedDetectsCycles(t *testing.T) {
	root := New(context.Background(), "run-1", "session-1", wire.New())
	root.RunnableID = "agent.a"

	child := root.Child("run-2", "agent.b", step.RunnableTypeAgent, NestingTypeWorkflowNode)
	grandchild := child.Child("run-3", "agent.a", step.RunnableTypeAgent, NestingTypeWorkflowNode)

	require.True(t, grandchild.HasVisited("agent.a"))
	require.False(t, grandchild.HasVisited("agent.c"))
}

func TestAbortSignalIsIdempotent(t *testing.T) {
	a := NewAbortSignal()
	assert.False(t, a.Aborted())

	a.Abort("timeout")
	a.Abort("second reason ignored")

	assert.True(t, a.Aborted())
	assert.Equal(t, "timeout", a.Reason())

	select {
	case <-a.Done():
	default:
		t.Fatal("expected Done channel to be closed")
	}
}

func TestWithNodeAnnotatesWorkflowCoordinate(t *testing.T) {
	root := New(context.Background(), "run-1", "session-1", wire.New())
	scoped := root.WithNode("stage-2", "branch-a", 3)

	assert.Equal(t, "stage-2", scoped.NodeID)
	assert.Equal(t, "branch-a", scoped.BranchKey)
	assert.Equal(t, 3, scoped.Iteration)
	assert.Equal(t, "", root.NodeID, "original context must be unmodified")
}
