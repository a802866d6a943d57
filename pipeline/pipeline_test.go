package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/store"
	"github.com/flowmesh/agentrt/wire"
)

// recordingSubscriber is safe for concurrent HandleEvent calls since Wire
// now delivers to each subscriber from its own goroutine, independent of
// the publisher's.
type recordingSubscriber struct {
	mu     sync.Mutex
	events []wire.Event
}

func (r *recordingSubscriber) HandleEvent(_ context.Context, event wire.Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

func (r *recordingSubscriber) snapshot() []wire.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wire.Event, len(r.events))
	copy(out, r.events)
	return out
}

// waitForEvents polls until sub has recorded at least n events, failing the
// test if that never happens — Wire delivery is asynchronous, so a Publish
// call returning does not mean the subscriber has run yet.
func waitForEvents(t *testing.T, sub *recordingSubscriber, n int) []wire.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := sub.snapshot(); len(events) >= n {
			return events
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected at least %d events, got %d", n, len(sub.snapshot()))
	return nil
}

func newTestPipeline(t *testing.T) (*StepPipeline, *recordingSubscriber, store.SessionStore) {
	t.Helper()
	w := wire.New()
	sub := &recordingSubscriber{}
	_, err := w.Subscribe(sub)
	require.NoError(t, err)

	rctx := execctx.New(context.Background(), "run-1", "sess-1", w)
	rctx.RunnableID = "agent.demo"
	rctx.RunnableType = step.RunnableTypeAgent

	s := store.NewInMemory()
	return New(rctx, s), sub, s
}

func TestEmitRunStartedPublishesEvent(t *testing.T) {
	p, sub, _ := newTestPipeline(t)
	require.NoError(t, p.EmitRunStarted(context.Background(), "hello"))
	events := waitForEvents(t, sub, 1)
	assert.Equal(t, wire.EventRunStarted, events[0].Type)
	payload, ok := events[0].Payload.(wire.RunStartedPayload)
	require.True(t, ok)
	assert.Equal(t, "hello", payload.Input)
}

func TestCommitStepPersistsBeforeEmitting(t *testing.T) {
	p, sub, s := newTestPipeline(t)
	content := "hello"
	stored, err := p.CommitStep(context.Background(), step.Step{Role: step.RoleAssistant, Content: &content})
	require.NoError(t, err)
	assert.NotZero(t, stored.Sequence)
	assert.Equal(t, "sess-1", stored.SessionID)
	assert.Equal(t, "agent.demo", stored.RunnableID)

	steps, err := s.GetSteps(context.Background(), "sess-1", step.Filter{})
	require.NoError(t, err)
	require.Len(t, steps, 1)

	events := waitForEvents(t, sub, 1)
	payload, ok := events[0].Payload.(wire.StepCompletedPayload)
	require.True(t, ok)
	assert.Equal(t, stored.ID, payload.Step.ID)
}

func TestEmitRunCompletedCarriesFinalStep(t *testing.T) {
	p, sub, _ := newTestPipeline(t)
	content := "done"
	final := step.Step{Role: step.RoleAssistant, Content: &content}
	require.NoError(t, p.EmitRunCompleted(context.Background(), &final))
	events := waitForEvents(t, sub, 1)
	payload, ok := events[0].Payload.(wire.RunCompletedPayload)
	require.True(t, ok)
	assert.Equal(t, &final, payload.FinalStep)
}

func TestEmitRunFailedCarriesErrorKind(t *testing.T) {
	p, sub, _ := newTestPipeline(t)
	require.NoError(t, p.EmitRunFailed(context.Background(), "model_error", "boom"))
	events := waitForEvents(t, sub, 1)
	payload, ok := events[0].Payload.(wire.RunFailedPayload)
	require.True(t, ok)
	assert.Equal(t, "model_error", payload.ErrorKind)
}
