package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/pipeline"
	"github.com/flowmesh/agentrt/runnable"
	"github.com/flowmesh/agentrt/runtimeerr"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/store"
	"github.com/flowmesh/agentrt/template"
)

// Stage is one ordered step of a Pipeline: a Runnable invoked with a
// rendered input, optionally gated by a Condition evaluated against the
// accumulated WorkflowState before it runs.
type Stage struct {
	ID            string
	Runnable      runnable.Runnable
	InputTemplate string
	// Condition, if non-empty, is evaluated via template.Eval before this
	// stage runs; a false result skips the stage (a "skipped" marker is
	// emitted on the Wire) without touching WorkflowState.
	Condition string
}

// PipelineConfig declares a Pipeline's identity and ordered stage list.
type PipelineConfig struct {
	ID     string
	Stages []Stage
}

// Pipeline runs an ordered list of stages, threading each stage's output
// into WorkflowState under its own node_id (and "<node_id>.output") for
// every later stage's template to reference.
type Pipeline struct {
	cfg   PipelineConfig
	store store.SessionStore
}

// NewPipeline constructs a Pipeline. Every stage must declare a non-empty ID
// unique within the pipeline and a non-nil Runnable.
func NewPipeline(cfg PipelineConfig, s store.SessionStore) (*Pipeline, error) {
	if cfg.ID == "" {
		return nil, errors.New("workflow: pipeline id is required")
	}
	if s == nil {
		return nil, fmt.Errorf("workflow: pipeline %s: session store is required", cfg.ID)
	}
	seen := make(map[string]bool, len(cfg.Stages))
	for _, st := range cfg.Stages {
		if st.ID == "" {
			return nil, fmt.Errorf("workflow: pipeline %s: stage id is required", cfg.ID)
		}
		if seen[st.ID] {
			return nil, fmt.Errorf("workflow: pipeline %s: duplicate stage id %q", cfg.ID, st.ID)
		}
		seen[st.ID] = true
		if st.Runnable == nil {
			return nil, fmt.Errorf("workflow: pipeline %s: stage %q has no runnable", cfg.ID, st.ID)
		}
	}
	return &Pipeline{cfg: cfg, store: s}, nil
}

func (p *Pipeline) ID() string             { return p.cfg.ID }
func (p *Pipeline) Type() step.RunnableType { return step.RunnableTypeWorkflow }

// Run implements runnable.Runnable.
func (p *Pipeline) Run(ctx context.Context, rctx *execctx.Context, input string) (runnable.Output, error) {
	_, out, err := p.run(ctx, rctx, input, nil)
	return out, err
}

// run is Pipeline's internal execution, also used directly by Loop so each
// iteration's per-stage outputs (not just the pipeline's overall Content)
// are available to seed "{loop.last.<node_id>}" in the next iteration.
// seed, when non-nil, is merged into the reconstructed WorkflowState before
// any stage runs (e.g. the loop's running state from prior iterations).
func (p *Pipeline) run(ctx context.Context, rctx *execctx.Context, input string, seed template.State) (template.State, runnable.Output, error) {
	pipe := pipeline.New(rctx, p.store)
	if err := pipe.EmitRunStarted(ctx, input); err != nil {
		return nil, runnable.Output{}, err
	}

	state, err := loadState(ctx, p.store, rctx, func(s step.Step) string { return s.NodeID })
	if err != nil {
		rtErr := runtimeerr.Wrap(runtimeerr.KindStoreError, "", err)
		return nil, emitFailure(ctx, pipe, rtErr), rtErr
	}
	for k, v := range seed {
		state[k] = v
	}
	state["input"] = input

	var lastOutput string
	for _, stage := range p.cfg.Stages {
		if rctx.Abort.Aborted() {
			rtErr := runtimeerr.New(runtimeerr.KindAborted, rctx.Abort.Reason())
			return nil, emitFailure(ctx, pipe, rtErr), rtErr
		}

		if v, done := state[stage.ID]; done {
			lastOutput = v
			continue
		}

		if stage.Condition != "" && !template.Eval(stage.Condition, state) {
			_ = pipe.EmitError(ctx, "stage_skipped", fmt.Sprintf("stage %q skipped: condition evaluated false", stage.ID))
			continue
		}

		renderedInput := template.Render(stage.InputTemplate, state)
		stageCtx := rctx.Child(uuid.NewString(), stage.Runnable.ID(), stage.Runnable.Type(), execctx.NestingTypeWorkflowNode).WithNode(stage.ID, "", 0)
		out, runErr := stage.Runnable.Run(ctx, stageCtx, renderedInput)
		if stageErr := terminationError(out, runErr); stageErr != nil {
			rtErr := runtimeerr.WrapStage(stage.ID, stageErr)
			return nil, emitFailure(ctx, pipe, rtErr), rtErr
		}

		state[stage.ID] = out.Content
		state[stage.ID+".output"] = out.Content
		lastOutput = out.Content
	}

	result := runnable.Output{RunID: rctx.RunID, Content: lastOutput, TerminationReason: runnable.TerminationNatural}
	if err := pipe.EmitRunCompleted(ctx, nil); err != nil {
		return state, result, err
	}
	return state, result, nil
}
