// Package runnable defines the single capability set shared by everything the
// runtime can execute: an agent's reason/act loop and each workflow
// orchestration shape (pipeline, parallel, loop). The source system models
// Agent and Workflow as subtypes of an abstract base class; here that
// relationship is a tagged variant dispatched through one small interface
// rather than an inheritance hierarchy — Run/ID/Type is the only
// polymorphism AgentAsTool and the workflow executors need.
package runnable

import (
	"context"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/step"
)

// TerminationReason records why a Runnable's execution stopped.
type TerminationReason string

const (
	// TerminationNatural means the agent's model produced a final response
	// with no further tool calls.
	TerminationNatural TerminationReason = "natural"
	// TerminationMaxSteps means the agent reached its configured step bound.
	TerminationMaxSteps TerminationReason = "max_steps"
	// TerminationAborted means the run's AbortSignal fired mid-execution.
	TerminationAborted TerminationReason = "aborted"
	// TerminationFailed means the run ended on an unrecoverable error (a
	// model call failure, or — for workflows — a stage/branch/body failure).
	TerminationFailed TerminationReason = "failed"
)

// Output is what a Runnable's execution produces once it settles: the final
// textual output (fed back as Tool.Result.Content when wrapped by
// AgentAsTool), why it stopped, and the step-level metrics accumulated along
// the way.
type Output struct {
	RunID             string
	Content           string
	TerminationReason TerminationReason
	Metrics           step.Metrics
}

// Runnable is anything the runtime can execute: an agent or a workflow
// (pipeline, parallel, or loop). Implementations own their own
// configuration; Run is the only entry point the runtime, AgentAsTool, and
// the workflow executors need.
//
// Run must be safe to call concurrently for distinct rctx values (distinct
// run_id) — the same Runnable value is commonly invoked many times
// concurrently as a workflow stage or nested AgentAsTool target.
type Runnable interface {
	// ID returns the runnable's stable identifier, used for AgentAsTool cycle
	// detection (ExecutionContext.CallChain) and for resolving workflow stage
	// targets and tool names.
	ID() string
	// Type reports whether this Runnable is an agent leaf or a workflow node,
	// recorded on every Step it produces.
	Type() step.RunnableType
	// Run drives the Runnable to completion against rctx, which already
	// carries the run's identity, nesting metadata, shared Wire, and
	// AbortSignal (callers construct rctx via execctx.New or Context.Child
	// before calling Run). input is the textual input for this invocation —
	// a user message for a root agent run, or a rendered template for a
	// workflow stage/branch/loop body.
	Run(ctx context.Context, rctx *execctx.Context, input string) (Output, error)
}

// Registry resolves Runnable ids to instances, used by workflow definitions
// (stage/branch/body references by id) and by AgentAsTool when a tool name
// identifies a nested Runnable rather than a plain function tool.
type Registry struct {
	runnables map[string]Runnable
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{runnables: make(map[string]Runnable)}
}

// Register adds r under its own ID, overwriting any previous registration
// under the same id.
func (reg *Registry) Register(r Runnable) {
	reg.runnables[r.ID()] = r
}

// Lookup returns the Runnable registered under id, or ok=false.
func (reg *Registry) Lookup(id string) (Runnable, bool) {
	r, ok := reg.runnables[id]
	return r, ok
}
