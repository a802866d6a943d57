package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/agentrt/store"
)

func newBodyPipeline(t *testing.T, id string, s store.SessionStore, stages ...Stage) *Pipeline {
	t.Helper()
	p, err := NewPipeline(PipelineConfig{ID: id, Stages: stages}, s)
	require.NoError(t, err)
	return p
}

func TestLoopRunsUntilMaxIterationsWhenConditionStaysTrue(t *testing.T) {
	s := store.NewInMemory()
	count := echoRunnable("count")
	body := newBodyPipeline(t, "body", s, Stage{ID: "count", Runnable: count, InputTemplate: "{input}"})

	l, err := NewLoop(LoopConfig{
		ID:            "retry_loop",
		Body:          body,
		Condition:     "true == true",
		MaxIterations: 3,
	}, s)
	require.NoError(t, err)

	_, err = l.Run(context.Background(), newRootCtx("sess-20"), "ping")
	require.NoError(t, err)
	assert.Equal(t, int32(3), count.calls)
}

func TestLoopStopsEarlyWhenConditionGoesFalse(t *testing.T) {
	s := store.NewInMemory()
	count := echoRunnable("count")
	body := newBodyPipeline(t, "body", s, Stage{ID: "count", Runnable: count, InputTemplate: "{input}"})

	l, err := NewLoop(LoopConfig{
		ID:            "retry_loop",
		Body:          body,
		Condition:     "{loop.iteration} != 0",
		MaxIterations: 5,
	}, s)
	require.NoError(t, err)

	_, err = l.Run(context.Background(), newRootCtx("sess-21"), "ping")
	require.NoError(t, err)
	assert.Equal(t, int32(1), count.calls)
}

func TestLoopThreadsLastIterationOutputIntoNextInputTemplate(t *testing.T) {
	s := store.NewInMemory()
	step := echoRunnable("step")
	body := newBodyPipeline(t, "body", s, Stage{ID: "step", Runnable: step, InputTemplate: "{loop.last.step}-{loop.iteration}"})

	l, err := NewLoop(LoopConfig{
		ID:            "threading_loop",
		Body:          body,
		Condition:     "{loop.iteration} != 1",
		MaxIterations: 5,
	}, s)
	require.NoError(t, err)

	out, err := l.Run(context.Background(), newRootCtx("sess-22"), "ping")
	require.NoError(t, err)
	// Second iteration's rendered input embeds the first iteration's raw
	// (unresolved-placeholder) output verbatim, proving loop.last.step
	// carried across the iteration boundary.
	assert.True(t, strings.Contains(out.Content, "-0-1"), "expected iteration threading in %q", out.Content)
}

func TestLoopBodyFailureFailsLoopWithoutEvaluatingCondition(t *testing.T) {
	s := store.NewInMemory()
	boom := failingRunnable("boom")
	body := newBodyPipeline(t, "body", s, Stage{ID: "boom", Runnable: boom, InputTemplate: "{input}"})

	l, err := NewLoop(LoopConfig{
		ID:            "failing_loop",
		Body:          body,
		Condition:     "true == true",
		MaxIterations: 3,
	}, s)
	require.NoError(t, err)

	_, err = l.Run(context.Background(), newRootCtx("sess-23"), "ping")
	require.Error(t, err)
	assert.Equal(t, int32(1), boom.calls)
}
