// Package runtimeerr provides the structured error taxonomy shared by every
// runtime component. A RuntimeError preserves a stable Kind alongside a
// message and an optional cause chain, so callers can both render a
// human-facing message and programmatically branch on failure category via
// errors.Is/errors.As.
package runtimeerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories defined by the runtime's propagation
// policy. Each constant's own comment says how that kind is surfaced.
type Kind string

const (
	// KindModelError marks an LLM stream that aborted or returned a
	// protocol-invalid response. Fatal to the current run.
	KindModelError Kind = "model_error"
	// KindToolNotFound marks a tool call naming an unregistered tool. Not
	// fatal: recorded as a failed tool step so the model can react.
	KindToolNotFound Kind = "tool_not_found"
	// KindToolArgInvalid marks a tool call whose arguments failed schema
	// validation. Not fatal.
	KindToolArgInvalid Kind = "tool_arg_invalid"
	// KindToolExecutionError marks a tool that ran and returned a failure.
	// Not fatal.
	KindToolExecutionError Kind = "tool_execution_error"
	// KindDepthExceeded marks an AgentAsTool invocation that would exceed
	// max_nesting_depth. Surfaced as a tool error at the point of attempted
	// entry; not fatal to the parent.
	KindDepthExceeded Kind = "depth_exceeded"
	// KindCycleDetected marks an AgentAsTool invocation whose runnable ID
	// already appears on the current call chain. Not fatal to the parent.
	KindCycleDetected Kind = "cycle_detected"
	// KindTimeout marks a run that exceeded a configured timeout. Fatal.
	KindTimeout Kind = "timeout"
	// KindAborted marks a run that was cancelled via its AbortSignal. Fatal.
	KindAborted Kind = "aborted"
	// KindStoreError marks a SessionStore failure (unavailable or conflict).
	// Fatal.
	KindStoreError Kind = "store_error"
	// KindWorkflowStageFailed wraps an inner error kind with the identifier
	// of the workflow stage/branch/iteration that failed.
	KindWorkflowStageFailed Kind = "workflow_stage_failed"
)

// RuntimeError is a structured failure that carries a stable Kind alongside
// a human-readable message and an optional cause. Cause chains are built
// from arbitrary errors via Wrap/WrapStage so errors.Is/errors.As continue
// to work across the boundary between tool code, model adapters, and the
// core loop.
type RuntimeError struct {
	Kind Kind
	// Message is the human-readable summary of the failure.
	Message string
	// StageID identifies the workflow stage/branch/iteration associated with
	// KindWorkflowStageFailed. Empty for all other kinds.
	StageID string
	// Cause links to the underlying error, preserving the chain for
	// errors.Is/errors.As while remaining serialization-friendly.
	Cause error
}

// New constructs a RuntimeError of the given kind with a plain message.
func New(kind Kind, message string) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: message}
}

// Errorf constructs a RuntimeError of the given kind, formatting the message
// like fmt.Sprintf.
func Errorf(kind Kind, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a RuntimeError of the given kind that chains to cause.
// If message is empty and cause is non-nil, cause's message is reused.
func Wrap(kind Kind, message string, cause error) *RuntimeError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &RuntimeError{Kind: kind, Message: message, Cause: cause}
}

// WrapStage wraps an inner error as a KindWorkflowStageFailed error carrying
// the failing stage/branch/iteration identifier.
func WrapStage(stageID string, cause error) *RuntimeError {
	return &RuntimeError{
		Kind:    KindWorkflowStageFailed,
		Message: fmt.Sprintf("stage %q failed: %v", stageID, cause),
		StageID: stageID,
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying cause, supporting errors.Is/errors.As.
func (e *RuntimeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is a *RuntimeError with the same Kind. This lets
// callers write errors.Is(err, runtimeerr.New(runtimeerr.KindTimeout, ""))
// as well as compare against a sentinel built purely from Kind.
func (e *RuntimeError) Is(target error) bool {
	var re *RuntimeError
	if !errors.As(target, &re) {
		return false
	}
	return re.Kind == e.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) a *RuntimeError,
// returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var re *RuntimeError
	if !errors.As(err, &re) {
		return "", false
	}
	return re.Kind, true
}
