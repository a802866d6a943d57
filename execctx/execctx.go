// Package execctx defines the ExecutionContext threaded through every
// Runnable invocation. One Context is created per top-level run and carries
// the identifiers, nesting metadata, shared Wire, and abort signal that
// every nested Agent/Workflow call inherits — mirroring the three-tier
// run/turn/session identifier layering the runtime uses for observability
// (RunID = this invocation's infra identifier, SessionID = the conversation
// thread it belongs to, TurnID = an optional UI-only grouping that never
// participates in engine semantics).
package execctx

import (
	"context"
	"sync"

	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/wire"
)

// NestingType classifies why a child Context exists, for consumers that
// need to distinguish a nested agent-as-tool call from a workflow node
// invocation without inspecting RunnableType/NodeID themselves.
type NestingType string

const (
	// NestingTypeToolCall marks a child Context spawned because an agent
	// invoked another Runnable through an AgentAsTool adapter.
	NestingTypeToolCall NestingType = "tool_call"
	// NestingTypeWorkflowNode marks a child Context spawned for a workflow
	// pipeline stage, parallel branch, or loop body iteration.
	NestingTypeWorkflowNode NestingType = "workflow_node"
)

// AbortSignal is a cooperative cancellation flag shared by every Context
// derived from the same root. Runnables poll Aborted()/Done() at step/tool
// boundaries; it composes with (and is driven by) a context.Context so
// either standard cancellation or an explicit abort call can stop a run.
type AbortSignal struct {
	mu     sync.Mutex
	reason string
	ch     chan struct{}
	once   sync.Once
}

// NewAbortSignal constructs an unset AbortSignal.
func NewAbortSignal() *AbortSignal {
	return &AbortSignal{ch: make(chan struct{})}
}

// Abort marks the signal as tripped with the given reason. Idempotent: only
// the first call's reason is retained.
func (a *AbortSignal) Abort(reason string) {
	a.once.Do(func() {
		a.mu.Lock()
		a.reason = reason
		a.mu.Unlock()
		close(a.ch)
	})
}

// Aborted reports whether Abort has been called.
func (a *AbortSignal) Aborted() bool {
	select {
	case <-a.ch:
		return true
	default:
		return false
	}
}

// Reason returns the reason passed to Abort, or "" if not yet aborted.
func (a *AbortSignal) Reason() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reason
}

// Done returns a channel closed when Abort is called, for use in select
// statements alongside context.Context.Done().
func (a *AbortSignal) Done() <-chan struct{} { return a.ch }

// Context carries the execution metadata for one Runnable invocation. A
// root Context is constructed by the runtime for a top-level run; nested
// invocations (AgentAsTool, workflow nodes) derive children via Child,
// which copies identity fields forward while advancing depth and the call
// chain, and annotate them with a workflow coordinate via WithNode.
type Context struct {
	// RunID uniquely identifies this invocation. Every Step produced during
	// this call carries this RunID.
	RunID string
	// SessionID associates this run with its conversation thread.
	SessionID string
	// TurnID optionally groups runs belonging to one conversational turn,
	// for UI/observability only — never read by engine logic.
	TurnID string

	// ParentRunID is the RunID of the invocation that spawned this one via
	// AgentAsTool or a workflow node. Empty for top-level runs.
	ParentRunID string
	// Depth counts nesting levels from the top-level run (0 at the root).
	// AgentAsTool refuses to enter once Depth would exceed the configured
	// max_nesting_depth.
	Depth int
	// CallChain lists the RunnableIDs on the path from the root to this
	// invocation, in order. AgentAsTool checks for a repeated RunnableID
	// before entering a nested call to detect cycles.
	CallChain []string

	// RunnableID/RunnableType identify which Runnable is executing under
	// this Context.
	RunnableID   string
	RunnableType step.RunnableType

	// NodeID/BranchKey/Iteration record the workflow coordinate this
	// invocation was spawned for, when RunnableType is a workflow node
	// rather than a bare agent call.
	NodeID    string
	BranchKey string
	Iteration int

	// NestingType records why this Context is nested under its parent —
	// "tool_call" for an AgentAsTool invocation, "workflow_node" for a
	// pipeline/parallel/loop child, or "" at the root. Carried onto
	// RUN_STARTED so a consumer can tell the two nesting shapes apart
	// without inferring it from RunnableType/NodeID.
	NestingType NestingType

	// Wire is the shared event bus for the entire execution tree rooted at
	// this run. Every nested Context reuses the same instance.
	Wire *wire.Wire

	// Abort is the cooperative cancellation signal shared across the tree.
	Abort *AbortSignal

	// stdlib context.Context for deadline/cancellation propagation to I/O
	// (model calls, tool calls, store calls).
	std context.Context
}

// New constructs a root Context for a top-level run.
func New(std context.Context, runID, sessionID string, w *wire.Wire) *Context {
	return &Context{
		RunID:     runID,
		SessionID: sessionID,
		Wire:      w,
		Abort:     NewAbortSignal(),
		std:       std,
	}
}

// Std returns the underlying context.Context, for passing to I/O calls.
func (c *Context) Std() context.Context {
	if c.std == nil {
		return context.Background()
	}
	return c.std
}

// WithStd returns a copy of c carrying a new stdlib context (e.g. one with a
// narrower deadline), leaving all other fields unchanged.
func (c *Context) WithStd(std context.Context) *Context {
	clone := *c
	clone.std = std
	return &clone
}

// Child derives a Context for a nested Runnable invocation identified by
// runID/runnableID/runnableType, advancing Depth and appending to
// CallChain. nestingType records why this child exists (NestingTypeToolCall
// for an AgentAsTool call, NestingTypeWorkflowNode for a workflow stage/
// branch/loop body). SessionID, TurnID, Wire, and Abort are inherited
// unchanged.
func (c *Context) Child(runID, runnableID string, runnableType step.RunnableType, nestingType NestingType) *Context {
	chain := make([]string, len(c.CallChain), len(c.CallChain)+1)
	copy(chain, c.CallChain)
	chain = append(chain, c.RunnableID)

	return &Context{
		RunID:        runID,
		SessionID:    c.SessionID,
		TurnID:       c.TurnID,
		ParentRunID:  c.RunID,
		Depth:        c.Depth + 1,
		CallChain:    chain,
		RunnableID:   runnableID,
		RunnableType: runnableType,
		NestingType:  nestingType,
		Wire:         c.Wire,
		Abort:        c.Abort,
		std:          c.std,
	}
}

// WithNode returns a copy of c annotated with a workflow coordinate,
// for Steps produced by a pipeline/parallel/loop node.
func (c *Context) WithNode(nodeID, branchKey string, iteration int) *Context {
	clone := *c
	clone.NodeID = nodeID
	clone.BranchKey = branchKey
	clone.Iteration = iteration
	return &clone
}

// HasVisited reports whether runnableID already appears on the call chain
// (including the current RunnableID), the cycle-detection check AgentAsTool
// performs before entering a nested Runnable.
func (c *Context) HasVisited(runnableID string) bool {
	if c.RunnableID == runnableID {
		return true
	}
	for _, id := range c.CallChain {
		if id == runnableID {
			return true
		}
	}
	return false
}

// StepFilter derives the step.Filter that scopes session/context queries to
// this invocation's nesting coordinate.
func (c *Context) StepFilter() step.Filter {
	return step.Filter{
		RunID:      c.RunID,
		WorkflowID: c.RunnableID,
		NodeID:     c.NodeID,
		BranchKey:  c.BranchKey,
	}
}
