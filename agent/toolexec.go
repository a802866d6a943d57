package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/pipeline"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/tool"
	"github.com/flowmesh/agentrt/wire"
)

// executeToolCalls runs every tool call declared on assistantStep (§4.2 step
// 4), sequentially or concurrently per cfg.ParallelToolCalls, and commits a
// role=tool Step for each. A tool failure never aborts the loop — it is
// recorded as a failed Step so the model can react on its next turn.
func (a *Agent) executeToolCalls(ctx context.Context, rctx *execctx.Context, pipe *pipeline.StepPipeline, assistantStep step.Step) error {
	calls := assistantStep.ToolCalls
	if len(calls) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-rctx.Abort.Done():
			cancel()
		case <-stop:
		case <-runCtx.Done():
		}
	}()

	if !a.cfg.ParallelToolCalls || len(calls) < 2 {
		for _, call := range calls {
			if err := a.runAndCommitTool(runCtx, rctx, pipe, call); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, call := range calls {
		wg.Add(1)
		go func(call step.ToolCall) {
			defer wg.Done()
			if err := a.runAndCommitTool(runCtx, rctx, pipe, call); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(call)
	}
	wg.Wait()
	return firstErr
}

// runAndCommitTool resolves, validates, and executes one tool call, then
// persists its result as a role=tool Step and emits the
// TOOL_CALL_STARTED/TOOL_CALL_COMPLETED pair around it. Only a SessionStore
// or Wire failure is returned as an error here — every business-level tool failure
// (missing tool, bad arguments, a tool returning an error) is absorbed into
// a failed Step instead, per the non-fatal tool-failure policy.
func (a *Agent) runAndCommitTool(ctx context.Context, rctx *execctx.Context, pipe *pipeline.StepPipeline, call step.ToolCall) error {
	if err := pipe.EmitToolCallStarted(ctx, wire.ToolCallStartedPayload{
		CallID:    call.CallID,
		ToolName:  call.ToolName,
		Arguments: call.Arguments,
	}); err != nil {
		return err
	}

	started := time.Now()
	result := a.invokeTool(ctx, rctx, call)
	duration := time.Since(started)

	content := result.Content
	toolStep := step.Step{
		Role:       step.RoleTool,
		ToolCallID: call.CallID,
		Name:       call.ToolName,
		Content:    &content,
		Failed:     !result.IsSuccess,
	}
	if _, err := pipe.CommitStep(ctx, toolStep); err != nil {
		return err
	}

	status := "completed"
	var errMsg string
	if !result.IsSuccess {
		status = "failed"
		errMsg = result.Content
	}
	return pipe.EmitToolCallCompleted(ctx, wire.ToolCallCompletedPayload{
		CallID:     call.CallID,
		ToolName:   call.ToolName,
		Status:     status,
		Result:     result.Content,
		Error:      errMsg,
		RetryHint:  result.RetryHint,
		DurationMS: duration.Milliseconds(),
	})
}

// invokeTool never returns a Go error: every failure mode (unregistered
// tool, schema violation, tool-reported error) is folded into a
// tool.Result{IsSuccess: false} so the caller always has a Step to persist.
func (a *Agent) invokeTool(ctx context.Context, rctx *execctx.Context, call step.ToolCall) tool.Result {
	t, ok := a.tools.Lookup(call.ToolName)
	if !ok {
		return tool.Result{
			Content:   fmt.Sprintf("tool %q is not registered", call.ToolName),
			IsSuccess: false,
		}
	}

	args := []byte(call.Arguments)
	if len(args) == 0 {
		args = []byte("{}")
	}
	if err := a.tools.Validate(call.ToolName, args); err != nil {
		return tool.Result{Content: err.Error(), IsSuccess: false}
	}

	result, err := t.Execute(ctx, rctx, args)
	if err != nil {
		return tool.Result{Content: err.Error(), IsSuccess: false}
	}
	return result
}
