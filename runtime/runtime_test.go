package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/runnable"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/wire"
)

// echoRunnable is a minimal Runnable stub; it publishes the RUN_STARTED/
// RUN_COMPLETED bookends a real pipeline.StepPipeline would emit so tests
// exercising the Wire (Subscribe, RunStream) see a realistic event shape
// without pulling in the full agent/pipeline machinery.
type echoRunnable struct{ id string }

func (e *echoRunnable) ID() string              { return e.id }
func (e *echoRunnable) Type() step.RunnableType { return step.RunnableTypeAgent }
func (e *echoRunnable) Run(ctx context.Context, rctx *execctx.Context, input string) (runnable.Output, error) {
	_ = rctx.Wire.Publish(ctx, wire.Event{
		Type:      wire.EventRunStarted,
		RunID:     rctx.RunID,
		SessionID: rctx.SessionID,
		Payload:   wire.RunStartedPayload{RunnableID: rctx.RunnableID, RunnableType: rctx.RunnableType, Input: input},
	})
	out := runnable.Output{RunID: rctx.RunID, Content: "echo: " + input, TerminationReason: runnable.TerminationNatural}
	_ = rctx.Wire.Publish(ctx, wire.Event{
		Type:      wire.EventRunCompleted,
		RunID:     rctx.RunID,
		SessionID: rctx.SessionID,
		Payload:   wire.RunCompletedPayload{RunnableID: rctx.RunnableID},
	})
	return out, nil
}

func TestNewInstallsDefaults(t *testing.T) {
	rt := New()
	assert.NotNil(t, rt.Store())
	assert.NotNil(t, rt.Wire())
	assert.NotNil(t, rt.Tools())
	assert.NotNil(t, rt.Runnables())
}

func TestRunDispatchesToRegisteredRunnable(t *testing.T) {
	rt := New()
	rt.RegisterRunnable(&echoRunnable{id: "greeter"})

	out, err := rt.Run(context.Background(), "greeter", "sess-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", out.Content)
	assert.Equal(t, runnable.TerminationNatural, out.TerminationReason)
}

func TestRunUnknownRunnableReturnsError(t *testing.T) {
	rt := New()
	_, err := rt.Run(context.Background(), "missing", "sess-1", "hello")
	require.Error(t, err)
}

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	rt := New()
	var mu sync.Mutex
	var received []wire.Event
	_, err := rt.Subscribe(wire.SubscriberFunc(func(_ context.Context, ev wire.Event) error {
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	err = rt.Wire().Publish(context.Background(), wire.Event{Type: wire.EventRunStarted, RunID: "r1"})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, wire.EventRunStarted, received[0].Type)
}

func TestRunStreamDeliversEventsScopedToItsOwnRun(t *testing.T) {
	rt := New()
	rt.RegisterRunnable(&echoRunnable{id: "greeter"})

	// An unrelated, concurrent run on the same Wire — its events must never
	// show up on the RunStream channel below.
	rt.RegisterRunnable(&echoRunnable{id: "other"})
	go func() { _, _ = rt.Run(context.Background(), "other", "sess-other", "noise") }()

	events, err := rt.RunStream(context.Background(), "greeter", "sess-1", "hello")
	require.NoError(t, err)

	var seen []wire.EventType
	for ev := range events {
		seen = append(seen, ev.Type)
	}

	require.NotEmpty(t, seen)
	assert.Equal(t, wire.EventRunStarted, seen[0])
	assert.Equal(t, wire.EventRunCompleted, seen[len(seen)-1])
}

func TestRunWrapsRunStreamAndReturnsFinalOutput(t *testing.T) {
	rt := New()
	rt.RegisterRunnable(&echoRunnable{id: "greeter"})

	var mu sync.Mutex
	var recorded []wire.Event
	_, err := rt.Subscribe(wire.SubscriberFunc(func(_ context.Context, ev wire.Event) error {
		mu.Lock()
		recorded = append(recorded, ev)
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	out, err := rt.Run(context.Background(), "greeter", "sess-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", out.Content)
	assert.Equal(t, runnable.TerminationNatural, out.TerminationReason)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(recorded)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, recorded, "Run should still drive events through the shared Wire even though it discards its own event channel")
}

func TestBuildContextRetryAndForkDelegateToSessionPackage(t *testing.T) {
	rt := New()
	ctx := context.Background()
	content := "hi"
	_, err := rt.Store().Append(ctx, step.Step{SessionID: "sess-2", RunID: "run-1", Role: step.RoleUser, Content: &content})
	require.NoError(t, err)

	msgs, err := rt.BuildContext(ctx, "sess-2", "", step.Filter{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	newID, err := rt.Fork(ctx, "sess-2", 1)
	require.NoError(t, err)
	assert.NotEqual(t, "sess-2", newID)

	plan, err := rt.Retry(ctx, "sess-2", 2)
	require.NoError(t, err)
	assert.Equal(t, "run-1", plan.RunID)
}
