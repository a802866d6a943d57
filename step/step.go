// Package step defines the canonical durable record of conversational turns —
// the Step — and the ordering/linkage invariants that govern a session's
// history. Every other runtime component (the agent loop, workflow
// executors, session operations) reads and writes Steps; nothing in the
// runtime keeps a separate "message" or "event" table for durable state.
package step

import (
	"encoding/json"
	"time"
)

// Role identifies the speaker that produced a Step.
type Role string

const (
	// RoleUser marks a step carrying end-user input.
	RoleUser Role = "user"
	// RoleAssistant marks a step produced by the model, optionally carrying
	// tool calls in addition to (or instead of) visible content.
	RoleAssistant Role = "assistant"
	// RoleTool marks a step carrying the result of a single tool invocation.
	RoleTool Role = "tool"
	// RoleSystem marks a step carrying system-level instructions injected
	// outside the normal user/assistant exchange.
	RoleSystem Role = "system"
)

// RunnableType distinguishes the two concrete Runnable flavors that can own
// a nested execution: a single agent loop, or a workflow orchestrating
// other Runnables.
type RunnableType string

const (
	// RunnableTypeAgent marks steps produced by an agent's reason/act loop.
	RunnableTypeAgent RunnableType = "agent"
	// RunnableTypeWorkflow marks steps produced by a workflow node.
	RunnableTypeWorkflow RunnableType = "workflow"
)

type (
	// ToolCall is one assistant-declared tool invocation, fully assembled
	// from streamed deltas by the time it appears on a committed Step.
	ToolCall struct {
		// CallID uniquely identifies the invocation within the session.
		// role=tool steps reference it via Step.ToolCallID.
		CallID string `json:"call_id" bson:"call_id"`
		// ToolName is the fully qualified tool identifier the model selected.
		ToolName string `json:"tool_name" bson:"tool_name"`
		// Arguments is the canonical JSON argument object for the call. It is
		// kept as a raw string (opaque bytes) until a caller needs structured
		// access, matching the streaming reconstruction rule in §4.2: argument
		// fragments are concatenated, never parsed, until the step completes.
		Arguments string `json:"arguments" bson:"arguments"`
	}

	// Metrics captures the provider/runtime measurements attached to a
	// completed assistant Step.
	Metrics struct {
		DurationMS          int64  `json:"duration_ms" bson:"duration_ms"`
		InputTokens         int    `json:"input_tokens" bson:"input_tokens"`
		OutputTokens        int    `json:"output_tokens" bson:"output_tokens"`
		CacheReadTokens     int    `json:"cache_read_tokens" bson:"cache_read_tokens"`
		CacheCreationTokens int    `json:"cache_creation_tokens" bson:"cache_creation_tokens"`
		FirstTokenLatencyMS int64  `json:"first_token_latency_ms" bson:"first_token_latency_ms"`
		ModelName           string `json:"model_name" bson:"model_name"`
		Provider            string `json:"provider" bson:"provider"`
	}

	// Step is the atomic unit of session history: one user message, one
	// assistant turn (text and/or tool calls), or one tool result.
	//
	// Invariants (see package doc and spec §3/§8):
	//   - Sequence is unique and strictly increasing by commit order within a
	//     session.
	//   - A role=tool step's ToolCallID matches a ToolCalls[_].CallID on some
	//     earlier assistant step in the same session.
	Step struct {
		ID        string    `json:"id" bson:"id"`
		SessionID string    `json:"session_id" bson:"session_id"`
		RunID     string    `json:"run_id" bson:"run_id"`
		Sequence  int64     `json:"sequence" bson:"sequence"`
		Role      Role      `json:"role" bson:"role"`
		CreatedAt time.Time `json:"created_at" bson:"created_at"`

		// Content is the visible text for this step. Nil when role=assistant
		// and the step carries only tool calls.
		Content *string `json:"content,omitempty" bson:"content,omitempty"`
		// ReasoningContent carries a separate reasoning/thinking channel for
		// models that expose it, kept distinct from Content so downstream
		// consumers never conflate visible reply text with chain-of-thought.
		ReasoningContent *string `json:"reasoning_content,omitempty" bson:"reasoning_content,omitempty"`
		// ToolCalls is the ordered set of tool invocations declared by an
		// assistant step. Empty/nil for all other roles.
		ToolCalls []ToolCall `json:"tool_calls,omitempty" bson:"tool_calls,omitempty"`

		// ToolCallID and Name are populated only when Role == RoleTool,
		// linking the result back to the originating assistant tool call.
		ToolCallID string `json:"tool_call_id,omitempty" bson:"tool_call_id,omitempty"`
		Name       string `json:"name,omitempty" bson:"name,omitempty"`
		// Failed marks a role=tool step produced by a tool execution that
		// returned is_success=false (including synthesized tool_not_found /
		// tool_arg_invalid errors). Context projection surfaces this as
		// ToolResultPart.IsError so the model can distinguish a failed call
		// from a result that merely contains the word "error".
		Failed bool `json:"failed,omitempty" bson:"failed,omitempty"`

		Metrics *Metrics `json:"metrics,omitempty" bson:"metrics,omitempty"`

		// Nesting metadata. ParentRunID and Depth place this step's run in
		// the overall execution tree; RunnableID/RunnableType identify which
		// Runnable produced it; NodeID/BranchKey/Iteration record the
		// workflow coordinate when the run is a workflow node.
		ParentRunID  string       `json:"parent_run_id,omitempty" bson:"parent_run_id,omitempty"`
		RunnableID   string       `json:"runnable_id,omitempty" bson:"runnable_id,omitempty"`
		RunnableType RunnableType `json:"runnable_type,omitempty" bson:"runnable_type,omitempty"`
		NodeID       string       `json:"node_id,omitempty" bson:"node_id,omitempty"`
		BranchKey    string       `json:"branch_key,omitempty" bson:"branch_key,omitempty"`
		Iteration    int          `json:"iteration,omitempty" bson:"iteration,omitempty"`
		Depth        int          `json:"depth" bson:"depth"`
	}

	// Filter narrows a session's steps to a nesting scope. All non-zero
	// fields are applied as an AND predicate. Used by SessionStore.GetSteps
	// and by session.BuildContext to scope context reconstruction to one
	// run/workflow/node/branch.
	Filter struct {
		RunID      string
		WorkflowID string
		NodeID     string
		BranchKey  string
	}
)

// Matches reports whether s satisfies every non-empty predicate in f.
func (f Filter) Matches(s Step) bool {
	if f.RunID != "" && s.RunID != f.RunID {
		return false
	}
	if f.WorkflowID != "" && s.RunnableID != f.WorkflowID {
		return false
	}
	if f.NodeID != "" && s.NodeID != f.NodeID {
		return false
	}
	if f.BranchKey != "" && s.BranchKey != f.BranchKey {
		return false
	}
	return true
}

// HasToolCalls reports whether the step is an assistant step that declared
// one or more tool calls.
func (s Step) HasToolCalls() bool {
	return s.Role == RoleAssistant && len(s.ToolCalls) > 0
}

// ParsedArguments decodes a tool call's canonical argument string into dst.
// Argument strings are opaque JSON objects by convention (§4.2); decoding is
// deferred to callers that need structured access.
func (tc ToolCall) ParsedArguments(dst any) error {
	if tc.Arguments == "" {
		return nil
	}
	return json.Unmarshal([]byte(tc.Arguments), dst)
}
