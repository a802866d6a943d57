package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/pipeline"
	"github.com/flowmesh/agentrt/runnable"
	"github.com/flowmesh/agentrt/runtimeerr"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/store"
	"github.com/flowmesh/agentrt/template"
)

// Branch is one unordered member of a Parallel workflow: a Runnable invoked
// concurrently with the others under its own branch_key.
type Branch struct {
	Key           string
	Runnable      runnable.Runnable
	InputTemplate string
}

// ParallelConfig declares a Parallel workflow's identity, branch set, and
// the template used to combine every branch's output into one final result.
type ParallelConfig struct {
	ID            string
	Branches      []Branch
	MergeTemplate string
}

// Parallel runs every branch concurrently, waits for all of them, and
// renders MergeTemplate against the combined WorkflowState to produce its
// output.
type Parallel struct {
	cfg   ParallelConfig
	store store.SessionStore
}

// NewParallel constructs a Parallel workflow. Every branch must declare a
// non-empty, unique Key and a non-nil Runnable.
func NewParallel(cfg ParallelConfig, s store.SessionStore) (*Parallel, error) {
	if cfg.ID == "" {
		return nil, errors.New("workflow: parallel id is required")
	}
	if s == nil {
		return nil, fmt.Errorf("workflow: parallel %s: session store is required", cfg.ID)
	}
	seen := make(map[string]bool, len(cfg.Branches))
	for _, b := range cfg.Branches {
		if b.Key == "" {
			return nil, fmt.Errorf("workflow: parallel %s: branch key is required", cfg.ID)
		}
		if seen[b.Key] {
			return nil, fmt.Errorf("workflow: parallel %s: duplicate branch key %q", cfg.ID, b.Key)
		}
		seen[b.Key] = true
		if b.Runnable == nil {
			return nil, fmt.Errorf("workflow: parallel %s: branch %q has no runnable", cfg.ID, b.Key)
		}
	}
	return &Parallel{cfg: cfg, store: s}, nil
}

func (p *Parallel) ID() string             { return p.cfg.ID }
func (p *Parallel) Type() step.RunnableType { return step.RunnableTypeWorkflow }

type branchOutcome struct {
	key    string
	output string
	err    error
}

// Run implements runnable.Runnable. Every branch not already recorded in
// WorkflowState (resume skip, per branch_key) is launched concurrently; the
// first branch failure trips rctx.Abort so the others unwind promptly. This
// reaches the whole run tree sharing rctx.Abort, not just this workflow's
// branches — the data model defines one AbortSignal per execution tree, not
// a narrower per-workflow scope, so "other branches are cancelled via
// abort" has no smaller blast radius to target.
func (p *Parallel) Run(ctx context.Context, rctx *execctx.Context, input string) (runnable.Output, error) {
	pipe := pipeline.New(rctx, p.store)
	if err := pipe.EmitRunStarted(ctx, input); err != nil {
		return runnable.Output{}, err
	}

	state, err := loadState(ctx, p.store, rctx, func(s step.Step) string { return s.BranchKey })
	if err != nil {
		rtErr := runtimeerr.Wrap(runtimeerr.KindStoreError, "", err)
		return emitFailure(ctx, pipe, rtErr), rtErr
	}
	state["input"] = input

	var pending []Branch
	for _, b := range p.cfg.Branches {
		if _, done := state[b.Key]; !done {
			pending = append(pending, b)
		}
	}

	renderState := cloneState(state)
	results := make(chan branchOutcome, len(pending))
	var wg sync.WaitGroup
	for _, b := range pending {
		wg.Add(1)
		go func(b Branch) {
			defer wg.Done()
			renderedInput := template.Render(b.InputTemplate, renderState)
			branchCtx := rctx.Child(uuid.NewString(), b.Runnable.ID(), b.Runnable.Type(), execctx.NestingTypeWorkflowNode).WithNode("", b.Key, 0)
			out, runErr := b.Runnable.Run(ctx, branchCtx, renderedInput)
			branchErr := terminationError(out, runErr)
			if branchErr != nil {
				rctx.Abort.Abort(fmt.Sprintf("branch %q failed: %v", b.Key, branchErr))
			}
			results <- branchOutcome{key: b.Key, output: out.Content, err: branchErr}
		}(b)
	}
	wg.Wait()
	close(results)

	var firstErr *runtimeerr.RuntimeError
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = runtimeerr.WrapStage(r.key, r.err)
			}
			continue
		}
		state[r.key] = r.output
		state[r.key+".output"] = r.output
	}
	if firstErr != nil {
		return emitFailure(ctx, pipe, firstErr), firstErr
	}

	finalContent := template.Render(p.cfg.MergeTemplate, state)
	result := runnable.Output{RunID: rctx.RunID, Content: finalContent, TerminationReason: runnable.TerminationNatural}
	if err := pipe.EmitRunCompleted(ctx, nil); err != nil {
		return result, err
	}
	return result, nil
}
