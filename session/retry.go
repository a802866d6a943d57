package session

import (
	"context"
	"fmt"

	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/store"
)

// RetryPlan describes how a caller should resume execution after
// RetryFrom has truncated a session's tail. It never itself calls a model
// or executes a tool — §4.7 defines retry as "delete the tail, then resume
// execution for the session's last run_id", and "resume execution" is the
// caller's (typically an Agent's) concern, not this package's.
type RetryPlan struct {
	// RunID is the run_id execution should resume under — the RunID of the
	// last step remaining after truncation, or "" if truncation emptied the
	// session entirely (nothing to resume; the caller starts fresh).
	RunID string
	// PendingToolCalls is non-empty when the kept tail ends on an assistant
	// step with tool_calls, possibly followed by some of their tool results,
	// and not every one of those calls has a result left in the tail. Per
	// the source's ambiguity on partially-interrupted tool phases
	// (re-execute only the missing calls, or all of them), this package
	// takes the idempotent-on-call-id reading and lists only the tool calls
	// that have no matching role=tool step left in the kept tail — the
	// caller re-executes exactly these before calling the model again.
	PendingToolCalls []step.ToolCall
}

// NeedsToolReplay reports whether the kept tail ended mid tool-call phase
// and the caller must re-execute PendingToolCalls before its next model
// call.
func (p RetryPlan) NeedsToolReplay() bool { return len(p.PendingToolCalls) > 0 }

// RetryFrom implements §4.7's retry(session_id, N): every step with
// sequence >= fromSeq is deleted, and the resulting kept tail is inspected
// to tell the caller how to resume. Already-committed steps below fromSeq
// are left untouched and remain durable — retry never reaches backward past
// the sequence a caller chose to truncate at.
func RetryFrom(ctx context.Context, s store.SessionStore, sessionID string, fromSeq int64) (RetryPlan, error) {
	if fromSeq <= 0 {
		return RetryPlan{}, fmt.Errorf("session: retry: from_sequence must be >= 1, got %d", fromSeq)
	}

	if err := s.DeleteFrom(ctx, sessionID, fromSeq); err != nil {
		return RetryPlan{}, fmt.Errorf("session: retry: %w", err)
	}

	kept, err := s.GetSteps(ctx, sessionID, step.Filter{})
	if err != nil {
		return RetryPlan{}, fmt.Errorf("session: retry: reload kept tail: %w", err)
	}
	if len(kept) == 0 {
		return RetryPlan{}, nil
	}

	last := kept[len(kept)-1]
	plan := RetryPlan{RunID: last.RunID}

	// Walk back over any trailing tool results to the assistant step that
	// declared them.
	i := len(kept) - 1
	for i >= 0 && kept[i].Role == step.RoleTool {
		i--
	}
	if i < 0 || !kept[i].HasToolCalls() {
		return plan, nil
	}
	caller := kept[i]

	answered := make(map[string]bool, len(caller.ToolCalls))
	for _, st := range kept[i+1:] {
		answered[st.ToolCallID] = true
	}
	for _, tc := range caller.ToolCalls {
		if !answered[tc.CallID] {
			plan.PendingToolCalls = append(plan.PendingToolCalls, tc)
		}
	}
	return plan, nil
}
