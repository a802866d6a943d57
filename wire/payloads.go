package wire

import "github.com/flowmesh/agentrt/step"

type (
	// RunStartedPayload is emitted once when a Runnable begins executing.
	// NestingType distinguishes a nested AgentAsTool call ("tool_call") from
	// a workflow pipeline/parallel/loop child ("workflow_node"); it is
	// empty for a top-level run. Input carries the plain-text input the
	// Runnable was invoked with.
	RunStartedPayload struct {
		RunnableID   string            `json:"runnable_id"`
		RunnableType step.RunnableType `json:"runnable_type"`
		ParentRunID  string            `json:"parent_run_id,omitempty"`
		Depth        int               `json:"depth"`
		NestingType  string            `json:"nesting_type,omitempty"`
		Input        string            `json:"input"`
	}

	// StepDeltaPayload streams an incremental fragment of an in-progress
	// step. Exactly one of ContentDelta/ReasoningDelta/ToolCallDelta is set
	// per event; consumers concatenate ContentDelta/ReasoningDelta strings
	// and merge ToolCallDelta fragments by Index to reconstruct the step,
	// per the streaming assembly rules in the data model.
	StepDeltaPayload struct {
		ContentDelta   string          `json:"content_delta,omitempty"`
		ReasoningDelta string          `json:"reasoning_delta,omitempty"`
		ToolCallDelta  *ToolCallDelta  `json:"tool_call_delta,omitempty"`
	}

	// ToolCallDelta is a positional fragment of an in-progress tool call.
	// Index is the position within the assistant step's tool_calls array;
	// CallID/ToolName arrive late (often only on the first fragment that
	// carries them) and Arguments is concatenated across fragments without
	// being parsed until the step completes.
	ToolCallDelta struct {
		Index     int    `json:"index"`
		CallID    string `json:"call_id,omitempty"`
		ToolName  string `json:"tool_name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	}

	// StepCompletedPayload carries the fully assembled, committed Step.
	StepCompletedPayload struct {
		Step step.Step `json:"step"`
	}

	// ToolCallStartedPayload is emitted when a tool invocation begins.
	ToolCallStartedPayload struct {
		CallID          string `json:"call_id"`
		ToolName        string `json:"tool_name"`
		ParentCallID    string `json:"parent_call_id,omitempty"`
		Arguments       string `json:"arguments"`
	}

	// ToolCallCompletedPayload is emitted when a tool invocation finishes,
	// successfully or not. Status is "completed" or "failed"; RetryHint is
	// populated only on failure when the tool supplies one.
	ToolCallCompletedPayload struct {
		CallID     string `json:"call_id"`
		ToolName   string `json:"tool_name"`
		Status     string `json:"status"`
		Result     string `json:"result,omitempty"`
		Error      string `json:"error,omitempty"`
		RetryHint  string `json:"retry_hint,omitempty"`
		DurationMS int64  `json:"duration_ms"`
	}

	// ToolOutputDeltaPayload streams a best-effort partial-output fragment
	// for tools that opt into output streaming (see tool.StreamingTool.StreamsOutput).
	ToolOutputDeltaPayload struct {
		CallID string `json:"call_id"`
		Delta  string `json:"delta"`
	}

	// RunCompletedPayload marks successful completion of a run.
	RunCompletedPayload struct {
		RunnableID string `json:"runnable_id"`
		FinalStep  *step.Step `json:"final_step,omitempty"`
	}

	// RunFailedPayload marks fatal termination of a run, carrying the
	// runtimeerr.Kind string so consumers can branch without importing the
	// runtimeerr package.
	RunFailedPayload struct {
		RunnableID string `json:"runnable_id"`
		ErrorKind  string `json:"error_kind"`
		Message    string `json:"message"`
	}

	// ErrorPayload carries an out-of-band error not tied to a run's
	// terminal state.
	ErrorPayload struct {
		ErrorKind string `json:"error_kind"`
		Message   string `json:"message"`
	}
)
