package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/agentrt/store"
)

func TestParallelRunsBranchesAndMerges(t *testing.T) {
	s := store.NewInMemory()
	weather := echoRunnable("weather")
	news := uppercaseRunnable("news")

	p, err := NewParallel(ParallelConfig{
		ID: "digest",
		Branches: []Branch{
			{Key: "weather", Runnable: weather, InputTemplate: "{input}"},
			{Key: "news", Runnable: news, InputTemplate: "{input}"},
		},
		MergeTemplate: "weather={weather.output} news={news.output}",
	}, s)
	require.NoError(t, err)

	out, err := p.Run(context.Background(), newRootCtx("sess-10"), "sunny")
	require.NoError(t, err)
	assert.Equal(t, "weather=sunny news=[sunny]", out.Content)
}

func TestParallelBranchFailureFailsWorkflow(t *testing.T) {
	s := store.NewInMemory()
	ok := echoRunnable("ok")
	boom := failingRunnable("boom")

	p, err := NewParallel(ParallelConfig{
		ID: "digest",
		Branches: []Branch{
			{Key: "ok", Runnable: ok, InputTemplate: "{input}"},
			{Key: "boom", Runnable: boom, InputTemplate: "{input}"},
		},
		MergeTemplate: "{ok.output}",
	}, s)
	require.NoError(t, err)

	rctx := newRootCtx("sess-11")
	_, err = p.Run(context.Background(), rctx, "go")
	require.Error(t, err)
	assert.True(t, rctx.Abort.Aborted())
}

func TestParallelResumeSkipsCompletedBranches(t *testing.T) {
	s := store.NewInMemory()
	weather := echoRunnableWithStore("weather", s)

	p, err := NewParallel(ParallelConfig{
		ID: "digest",
		Branches: []Branch{
			{Key: "weather", Runnable: weather, InputTemplate: "{input}"},
		},
		MergeTemplate: "{weather.output}",
	}, s)
	require.NoError(t, err)

	rctx := newRootCtx("sess-12")
	_, err = p.Run(context.Background(), rctx, "sunny")
	require.NoError(t, err)
	assert.Equal(t, int32(1), weather.calls)

	_, err = p.Run(context.Background(), rctx, "sunny")
	require.NoError(t, err)
	assert.Equal(t, int32(1), weather.calls)
}
