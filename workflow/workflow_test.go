package workflow

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/pipeline"
	"github.com/flowmesh/agentrt/runnable"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/store"
	"github.com/flowmesh/agentrt/wire"
)

// stubRunnable is a minimal runnable.Runnable used across this package's
// tests: fn computes the output content from the rendered input it
// receives, and calls is tracked so tests can assert invocation counts
// (e.g. resume skipping an already-completed stage). When store is set, Run
// commits an assistant step through a StepPipeline bound to the rctx it is
// given, exactly as a real Agent would — this is what lets a Pipeline's
// resume-by-state reconstruction find this stage's prior output.
type stubRunnable struct {
	id    string
	store store.SessionStore
	fn    func(input string) (string, runnable.TerminationReason, error)
	calls int32
}

func (s *stubRunnable) ID() string              { return s.id }
func (s *stubRunnable) Type() step.RunnableType { return step.RunnableTypeAgent }

func (s *stubRunnable) Run(ctx context.Context, rctx *execctx.Context, input string) (runnable.Output, error) {
	atomic.AddInt32(&s.calls, 1)
	content, reason, err := s.fn(input)
	if err != nil {
		return runnable.Output{TerminationReason: runnable.TerminationFailed}, err
	}
	if s.store != nil {
		pipe := pipeline.New(rctx, s.store)
		c := content
		if _, cerr := pipe.CommitStep(ctx, step.Step{Role: step.RoleAssistant, Content: &c}); cerr != nil {
			return runnable.Output{TerminationReason: runnable.TerminationFailed}, cerr
		}
	}
	return runnable.Output{Content: content, TerminationReason: reason}, nil
}

func echoRunnable(id string) *stubRunnable {
	return &stubRunnable{id: id, fn: func(input string) (string, runnable.TerminationReason, error) {
		return input, runnable.TerminationNatural, nil
	}}
}

func echoRunnableWithStore(id string, s store.SessionStore) *stubRunnable {
	r := echoRunnable(id)
	r.store = s
	return r
}

func uppercaseRunnable(id string) *stubRunnable {
	return &stubRunnable{id: id, fn: func(input string) (string, runnable.TerminationReason, error) {
		return fmt.Sprintf("[%s]", input), runnable.TerminationNatural, nil
	}}
}

func failingRunnable(id string) *stubRunnable {
	return &stubRunnable{id: id, fn: func(string) (string, runnable.TerminationReason, error) {
		return "", runnable.TerminationFailed, fmt.Errorf("%s: boom", id)
	}}
}

func newRootCtx(sessionID string) *execctx.Context {
	rctx := execctx.New(context.Background(), "run-"+sessionID, sessionID, wire.New())
	rctx.RunnableID = "orchestrator"
	rctx.RunnableType = step.RunnableTypeWorkflow
	return rctx
}
