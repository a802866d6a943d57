// Package workflow implements the three workflow orchestration shapes —
// Pipeline, Parallel, and Loop — as runnable.Runnable values that invoke
// other Runnables (agents or nested workflows) as stages, branches, or a
// loop body, per §4.5. Pipeline and Parallel share the resume-by-state
// convention: a workflow run reloads its own previously-committed
// stage/branch outputs from the SessionStore at the start of Run and skips
// anything already present, so re-entering one with the same run ID after a
// crash repeats only the unfinished portion. Loop does not resume: each
// iteration runs its body Pipeline under a fresh run ID, so a re-entered
// Loop starts again at iteration 0.
package workflow

import (
	"context"
	"fmt"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/pipeline"
	"github.com/flowmesh/agentrt/runnable"
	"github.com/flowmesh/agentrt/runtimeerr"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/store"
	"github.com/flowmesh/agentrt/template"
)

// loadState reconstructs a WorkflowState by scanning every assistant step
// already committed under this run: a step counts toward resume only if its
// ParentRunID matches rctx.RunID (it was produced by a direct child
// invocation of this exact workflow run) and keyOf returns a non-empty key
// for it (NodeID for Pipeline stages, BranchKey for Parallel branches).
// Scoping by ParentRunID rather than a dedicated "workflow_id" field is a
// deliberate reuse of fields the Step/Context model already carries — the
// caller resumes a workflow by re-invoking Run with the same rctx.RunID, not
// by any separate workflow-identity mechanism.
func loadState(ctx context.Context, s store.SessionStore, rctx *execctx.Context, keyOf func(step.Step) string) (template.State, error) {
	steps, err := s.GetSteps(ctx, rctx.SessionID, step.Filter{})
	if err != nil {
		return nil, err
	}
	state := template.State{}
	for _, st := range steps {
		if st.ParentRunID != rctx.RunID || st.Role != step.RoleAssistant {
			continue
		}
		key := keyOf(st)
		if key == "" {
			continue
		}
		content := ""
		if st.Content != nil {
			content = *st.Content
		}
		state[key] = content
		state[key+".output"] = content
	}
	return state, nil
}

// cloneState returns a shallow copy of s, used to seed a nested run's own
// state map without letting it mutate the caller's.
func cloneState(s template.State) template.State {
	out := make(template.State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// emitFailure publishes RUN_FAILED for rtErr and reports the Output a failed
// workflow run settles on.
func emitFailure(ctx context.Context, pipe *pipeline.StepPipeline, rtErr *runtimeerr.RuntimeError) runnable.Output {
	_ = pipe.EmitRunFailed(ctx, string(rtErr.Kind), rtErr.Error())
	reason := runnable.TerminationFailed
	if rtErr.Kind == runtimeerr.KindAborted {
		reason = runnable.TerminationAborted
	}
	return runnable.Output{TerminationReason: reason}
}

// terminationError converts a nested Runnable's non-natural termination
// into a plain error, so stage/branch/body failure handling has one thing
// to check regardless of whether the nested run returned a Go error or
// merely settled on a failed/aborted termination reason.
func terminationError(out runnable.Output, err error) error {
	if err != nil {
		return err
	}
	switch out.TerminationReason {
	case runnable.TerminationFailed, runnable.TerminationAborted:
		return fmt.Errorf("nested run ended with termination_reason=%s", out.TerminationReason)
	default:
		return nil
	}
}
