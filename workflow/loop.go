package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/pipeline"
	"github.com/flowmesh/agentrt/runnable"
	"github.com/flowmesh/agentrt/runtimeerr"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/store"
	"github.com/flowmesh/agentrt/template"
)

// LoopConfig declares a Loop's identity, its body pipeline, the
// continuation condition evaluated after each iteration, and the hard cap
// on how many iterations it will ever run.
type LoopConfig struct {
	ID   string
	Body *Pipeline
	// Condition is evaluated against WorkflowState after each iteration; the
	// loop continues while it evaluates true. An always-false Condition
	// (e.g. "") stops after the first iteration.
	Condition     string
	MaxIterations int
}

// Loop repeatedly runs a body Pipeline, exposing {loop.iteration} and
// {loop.last.<node_id>} (the previous iteration's per-stage outputs) to the
// body's own stage templates and to Condition.
type Loop struct {
	cfg   LoopConfig
	store store.SessionStore
}

// NewLoop constructs a Loop. MaxIterations must be at least 1.
func NewLoop(cfg LoopConfig, s store.SessionStore) (*Loop, error) {
	if cfg.ID == "" {
		return nil, errors.New("workflow: loop id is required")
	}
	if cfg.Body == nil {
		return nil, fmt.Errorf("workflow: loop %s: body pipeline is required", cfg.ID)
	}
	if s == nil {
		return nil, fmt.Errorf("workflow: loop %s: session store is required", cfg.ID)
	}
	if cfg.MaxIterations <= 0 {
		return nil, fmt.Errorf("workflow: loop %s: max_iterations must be >= 1", cfg.ID)
	}
	return &Loop{cfg: cfg, store: s}, nil
}

func (l *Loop) ID() string             { return l.cfg.ID }
func (l *Loop) Type() step.RunnableType { return step.RunnableTypeWorkflow }

// Run implements runnable.Runnable. Per §4.5's failure semantics, a body
// failure fails the loop outright; Condition is never evaluated in that
// case.
func (l *Loop) Run(ctx context.Context, rctx *execctx.Context, input string) (runnable.Output, error) {
	pipe := pipeline.New(rctx, l.store)
	if err := pipe.EmitRunStarted(ctx, input); err != nil {
		return runnable.Output{}, err
	}

	state := template.State{"input": input}
	var lastOutput string

	for iteration := 0; iteration < l.cfg.MaxIterations; iteration++ {
		if rctx.Abort.Aborted() {
			rtErr := runtimeerr.New(runtimeerr.KindAborted, rctx.Abort.Reason())
			return emitFailure(ctx, pipe, rtErr), rtErr
		}

		state["loop.iteration"] = strconv.Itoa(iteration)

		bodyCtx := rctx.Child(uuid.NewString(), l.cfg.Body.ID(), step.RunnableTypeWorkflow, execctx.NestingTypeWorkflowNode)
		bodyCtx.Iteration = iteration

		bodyState, out, err := l.cfg.Body.run(ctx, bodyCtx, input, cloneState(state))
		if bodyErr := terminationError(out, err); bodyErr != nil {
			rtErr := runtimeerr.WrapStage(l.cfg.ID, bodyErr)
			return emitFailure(ctx, pipe, rtErr), rtErr
		}

		lastOutput = out.Content
		for k, v := range bodyState {
			state["loop.last."+k] = v
		}

		if !template.Eval(l.cfg.Condition, state) {
			break
		}
	}

	result := runnable.Output{RunID: rctx.RunID, Content: lastOutput, TerminationReason: runnable.TerminationNatural}
	if err := pipe.EmitRunCompleted(ctx, nil); err != nil {
		return result, err
	}
	return result, nil
}
