// Package tool defines the uniform execute-with-context contract every
// Runnable invokes tools through (§4.4), plus a name-keyed Registry that
// validates arguments against each tool's JSON schema before execution.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowmesh/agentrt/execctx"
)

// Citation is an optional structured source attribution a tool can attach
// to its result, surfaced to the model alongside the textual content.
type Citation struct {
	Source  string `json:"source"`
	Locator string `json:"locator,omitempty"`
}

// Result is what Tool.Execute returns: the textual content fed back to the
// model, a success flag, optional citations, and — per the teacher's
// retry-hint feature — an optional machine-readable hint for how to retry a
// failed call deterministically.
type Result struct {
	Content   string     `json:"content"`
	IsSuccess bool       `json:"is_success"`
	Citations []Citation `json:"citations,omitempty"`
	RetryHint string     `json:"retry_hint,omitempty"`
}

// Tool is the uniform contract every executable capability implements,
// whether a plain function tool or an AgentAsTool adapter wrapping a nested
// Runnable. Name/Description/ParametersSchema are used for model-facing
// tool declarations and for Registry-side argument validation; Execute
// performs the actual (possibly I/O-bound) work.
type Tool interface {
	Name() string
	Description() string
	// ParametersSchema returns the tool's parameters as a JSON Schema
	// document, used both to advertise the tool's shape to the model and
	// to validate incoming arguments.
	ParametersSchema() []byte
	// Execute runs the tool against already-validated arguments. rctx
	// carries the ExecutionContext (Wire, AbortSignal, nesting metadata)
	// for tools that need to emit progress or check for cancellation.
	Execute(ctx context.Context, rctx *execctx.Context, args []byte) (Result, error)
}

// StreamingTool is an optional extension a Tool may implement to emit
// best-effort partial output via wire.EventToolOutputDelta while it runs.
// Most tools don't stream output. Neither Registry nor agent.Agent
// type-asserts for it; a streaming tool publishes its own deltas (for
// example through pipeline.StepPipeline.EmitToolOutputDelta).
type StreamingTool interface {
	Tool
	StreamsOutput() bool
}

// Registry resolves tool names to Tool implementations and validates
// arguments against each tool's declared JSON schema before execution.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds t to the registry, compiling its parameters schema eagerly
// so malformed schemas fail at registration time rather than on first call.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool: cannot register nil tool")
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool: tool name is required")
	}

	var schemaDoc any
	if err := json.Unmarshal(t.ParametersSchema(), &schemaDoc); err != nil {
		return fmt.Errorf("tool: %s: invalid parameters schema: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	resourceURL := "mem://" + name + "/schema.json"
	if err := compiler.AddResource(resourceURL, schemaDoc); err != nil {
		return fmt.Errorf("tool: %s: invalid parameters schema: %w", name, err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("tool: %s: compile parameters schema: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = t
	r.schemas[name] = schema
	return nil
}

// Lookup returns the tool registered under name, or ok=false.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Validate checks args (a JSON object) against the tool's parameters
// schema, returning a descriptive error on mismatch. Callers execute a
// tool only after Validate succeeds, per the tool_arg_invalid error kind's
// propagation policy.
func (r *Registry) Validate(name string, args []byte) error {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tool: %s: not registered", name)
	}

	var payload any
	if err := json.Unmarshal(args, &payload); err != nil {
		return fmt.Errorf("tool: %s: arguments are not valid JSON: %w", name, err)
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("tool: %s: arguments failed schema validation: %w", name, err)
	}
	return nil
}

// Execute validates args against name's schema, then executes the tool.
func (r *Registry) Execute(ctx context.Context, rctx *execctx.Context, name string, args []byte) (Result, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return Result{}, fmt.Errorf("tool: %s: not registered", name)
	}
	if err := r.Validate(name, args); err != nil {
		return Result{}, err
	}
	return t.Execute(ctx, rctx, args)
}
