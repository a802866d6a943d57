// Package pipeline provides StepPipeline, the thin coordinator that bundles a
// Wire, a SessionStore, and an ExecutionContext behind the four operations
// every Runnable needs to make its progress durable and observable:
// emitting the run-started/run-completed/run-failed lifecycle events,
// streaming step deltas, and committing a finished Step (persist-then-emit,
// in that order, so STEP_COMPLETED never outruns durability).
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/store"
	"github.com/flowmesh/agentrt/wire"
)

// StepPipeline coordinates one Runnable invocation's interaction with the
// shared Wire and SessionStore. Callers construct one per run (typically via
// New, using rctx.Wire) and use it for every event the run needs to surface.
type StepPipeline struct {
	rctx  *execctx.Context
	store store.SessionStore
}

// New builds a StepPipeline bound to rctx's Wire and the given SessionStore.
func New(rctx *execctx.Context, s store.SessionStore) *StepPipeline {
	return &StepPipeline{rctx: rctx, store: s}
}

// EmitRunStarted publishes RUN_STARTED for the pipeline's run, carrying the
// plain-text input the Runnable was invoked with and the Context's nesting
// classification (empty at the root, "tool_call"/"workflow_node" for a
// nested invocation).
func (p *StepPipeline) EmitRunStarted(ctx context.Context, input string) error {
	return p.publish(ctx, wire.EventRunStarted, wire.RunStartedPayload{
		RunnableID:   p.rctx.RunnableID,
		RunnableType: p.rctx.RunnableType,
		ParentRunID:  p.rctx.ParentRunID,
		Depth:        p.rctx.Depth,
		NestingType:  string(p.rctx.NestingType),
		Input:        input,
	})
}

// EmitStepDelta publishes STEP_DELTA for an in-progress assistant step. It
// does not touch the SessionStore — deltas are purely a live-observability
// signal; only the finalized Step is durable (see CommitStep).
func (p *StepPipeline) EmitStepDelta(ctx context.Context, payload wire.StepDeltaPayload) error {
	return p.publish(ctx, wire.EventStepDelta, payload)
}

// CommitStep persists s via the SessionStore, then publishes STEP_COMPLETED
// with the stored (sequence-assigned) step. Persistence happens-before
// emission, satisfying the invariant that every STEP_COMPLETED corresponds
// to a durable append.
func (p *StepPipeline) CommitStep(ctx context.Context, s step.Step) (step.Step, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.SessionID == "" {
		s.SessionID = p.rctx.SessionID
	}
	if s.RunID == "" {
		s.RunID = p.rctx.RunID
	}
	if s.RunnableID == "" {
		s.RunnableID = p.rctx.RunnableID
	}
	if s.RunnableType == "" {
		s.RunnableType = p.rctx.RunnableType
	}
	s.ParentRunID = p.rctx.ParentRunID
	s.NodeID = p.rctx.NodeID
	s.BranchKey = p.rctx.BranchKey
	s.Iteration = p.rctx.Iteration
	s.Depth = p.rctx.Depth

	stored, err := p.store.Append(ctx, s)
	if err != nil {
		return step.Step{}, err
	}
	if err := p.publish(ctx, wire.EventStepCompleted, wire.StepCompletedPayload{Step: stored}); err != nil {
		return stored, err
	}
	return stored, nil
}

// EmitToolCallStarted publishes TOOL_CALL_STARTED for a tool invocation that
// is about to run.
func (p *StepPipeline) EmitToolCallStarted(ctx context.Context, payload wire.ToolCallStartedPayload) error {
	return p.publish(ctx, wire.EventToolCallStarted, payload)
}

// EmitToolCallCompleted publishes TOOL_CALL_COMPLETED once a tool invocation
// settles (success or failure).
func (p *StepPipeline) EmitToolCallCompleted(ctx context.Context, payload wire.ToolCallCompletedPayload) error {
	return p.publish(ctx, wire.EventToolCallCompleted, payload)
}

// EmitToolOutputDelta publishes a best-effort partial-output preview for a
// StreamingTool while it is still running.
func (p *StepPipeline) EmitToolOutputDelta(ctx context.Context, payload wire.ToolOutputDeltaPayload) error {
	return p.publish(ctx, wire.EventToolOutputDelta, payload)
}

// EmitRunCompleted publishes RUN_COMPLETED for the pipeline's run.
func (p *StepPipeline) EmitRunCompleted(ctx context.Context, finalStep *step.Step) error {
	return p.publish(ctx, wire.EventRunCompleted, wire.RunCompletedPayload{
		RunnableID: p.rctx.RunnableID,
		FinalStep:  finalStep,
	})
}

// EmitRunFailed publishes RUN_FAILED for the pipeline's run.
func (p *StepPipeline) EmitRunFailed(ctx context.Context, errorKind, message string) error {
	return p.publish(ctx, wire.EventRunFailed, wire.RunFailedPayload{
		RunnableID: p.rctx.RunnableID,
		ErrorKind:  errorKind,
		Message:    message,
	})
}

// EmitError publishes a standalone ERROR event not tied to a run's terminal
// state (e.g. a tool failure surfaced as a step, not a run failure).
func (p *StepPipeline) EmitError(ctx context.Context, errorKind, message string) error {
	return p.publish(ctx, wire.EventError, wire.ErrorPayload{ErrorKind: errorKind, Message: message})
}

func (p *StepPipeline) publish(ctx context.Context, t wire.EventType, payload any) error {
	return p.rctx.Wire.Publish(ctx, wire.Event{
		Type:        t,
		RunID:       p.rctx.RunID,
		SessionID:   p.rctx.SessionID,
		ParentRunID: p.rctx.ParentRunID,
		Payload:     payload,
	})
}
