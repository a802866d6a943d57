// Package agenttool implements AgentAsTool: the adapter that lets one
// Runnable (an agent or a workflow) be invoked as a Tool by another, subject
// to the mandatory depth and cycle guards every nested invocation must pass
// before a child ExecutionContext is even constructed.
package agenttool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/runnable"
	"github.com/flowmesh/agentrt/runtimeerr"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/tool"
)

// DefaultMaxNestingDepth is the depth bound applied when Config.MaxDepth is
// left zero.
const DefaultMaxNestingDepth = 5

// Config declares how a wrapped Runnable presents itself as a Tool and the
// nesting bound it enforces on entry.
type Config struct {
	Name        string
	Description string
	// ParametersSchema is the JSON Schema advertised to the model for this
	// tool's input. AgentAsTool does not interpret it: Execute passes only
	// the "input" string field of the arguments to the wrapped Runnable's
	// Run, and any other keys are ignored.
	ParametersSchema []byte
	// MaxDepth bounds how deep this adapter will let the call chain grow.
	// Defaults to DefaultMaxNestingDepth when left zero.
	MaxDepth int
}

// AgentAsTool adapts a runnable.Runnable into the tool.Tool contract so it
// can be listed among an agent's callable tools or a workflow stage's
// runnable set.
type AgentAsTool struct {
	cfg    Config
	target runnable.Runnable
}

// New wraps target as a Tool under cfg's declared name/schema.
func New(cfg Config, target runnable.Runnable) (*AgentAsTool, error) {
	if cfg.Name == "" {
		return nil, errors.New("agenttool: name is required")
	}
	if target == nil {
		return nil, errors.New("agenttool: target runnable is required")
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxNestingDepth
	}
	if cfg.ParametersSchema == nil {
		cfg.ParametersSchema = []byte(`{"type":"object","properties":{"input":{"type":"string"}},"required":["input"]}`)
	}
	return &AgentAsTool{cfg: cfg, target: target}, nil
}

func (a *AgentAsTool) Name() string            { return a.cfg.Name }
func (a *AgentAsTool) Description() string     { return a.cfg.Description }
func (a *AgentAsTool) ParametersSchema() []byte { return a.cfg.ParametersSchema }

// toolArgs is the shape Execute decodes from args. Only the conventional
// "input" field is read and passed as Run's plain-text input; the wrapped
// Runnable never sees the raw JSON, so other keys are dropped.
type toolArgs struct {
	Input string `json:"input"`
}

// Execute enforces the depth and cycle guards (steps 1-2), builds the child
// ExecutionContext (step 3), runs the wrapped Runnable (step 4), and folds
// its final output into a ToolResult (step 5). Per the module-wide non-fatal
// tool-failure policy, a depth/cycle rejection and a failed nested run are
// both returned as tool.Result{IsSuccess:false}, never a Go error — only a
// failure constructing the call (malformed args) takes the same path, since
// none of these represent a SessionStore/Wire infrastructure failure.
func (a *AgentAsTool) Execute(ctx context.Context, rctx *execctx.Context, args []byte) (tool.Result, error) {
	var decoded toolArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return tool.Result{
				Content:   fmt.Sprintf("agenttool: %s: invalid arguments: %v", a.cfg.Name, err),
				IsSuccess: false,
			}, nil
		}
	}

	if rctx.Depth+1 > a.cfg.MaxDepth {
		rtErr := runtimeerr.Errorf(runtimeerr.KindDepthExceeded,
			"agenttool: %s: entering would exceed max_nesting_depth=%d at depth=%d", a.cfg.Name, a.cfg.MaxDepth, rctx.Depth)
		return tool.Result{Content: rtErr.Error(), IsSuccess: false}, nil
	}

	if rctx.HasVisited(a.target.ID()) {
		rtErr := runtimeerr.Errorf(runtimeerr.KindCycleDetected,
			"agenttool: %s: runnable %q already appears on the call chain", a.cfg.Name, a.target.ID())
		return tool.Result{Content: rtErr.Error(), IsSuccess: false}, nil
	}

	childRunID := uuid.NewString()
	childCtx := rctx.Child(childRunID, a.target.ID(), a.target.Type(), execctx.NestingTypeToolCall)

	out, err := a.target.Run(ctx, childCtx, decoded.Input)
	if err != nil {
		return tool.Result{
			Content:   fmt.Sprintf("agenttool: %s: nested run failed: %v", a.cfg.Name, err),
			IsSuccess: false,
		}, nil
	}
	if out.TerminationReason == runnable.TerminationFailed || out.TerminationReason == runnable.TerminationAborted {
		return tool.Result{
			Content:   out.Content,
			IsSuccess: false,
		}, nil
	}

	return tool.Result{Content: out.Content, IsSuccess: true}, nil
}
