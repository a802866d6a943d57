// Package session implements the three pure operations over a session's Step
// log that the engine, not any single Runnable, owns: context
// reconstruction, retry-from-sequence, and fork-at-sequence (§4.7). A
// session has no state of its own beyond the Steps a SessionStore already
// holds — every operation here is a read, a projection, or a bounded
// mutation of that one ordered log.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowmesh/agentrt/model"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/store"
)

// BuildContext loads every Step in sessionID matching filter, sorted by
// sequence (GetSteps' own ordering guarantee), and projects each to a
// provider-neutral model.Message, with systemPrompt prepended as a
// role=system message when non-empty. An empty filter reconstructs the
// session's entire history; a populated one scopes reconstruction to a
// single run/workflow/node/branch, exactly as Agent.buildContext scopes to
// its own run via rctx.StepFilter().
//
// This is deliberately the same projection Agent.buildContext performs
// internally, kept as a free-standing function here (rather than called by
// Agent) so this package never depends on agent and agent never depends on
// this package — Agent is a leaf Runnable implementation, and session is a
// cross-cutting operation any caller (a supervising runtime, a CLI, a test)
// can invoke independently of running an agent. StepToMessage's projection
// rules must stay identical to agent.stepToMessage's; there is exactly one
// rule set for "how a Step becomes a Message" and it is documented once,
// here.
func BuildContext(ctx context.Context, s store.SessionStore, sessionID, systemPrompt string, filter step.Filter) ([]*model.Message, error) {
	steps, err := s.GetSteps(ctx, sessionID, filter)
	if err != nil {
		return nil, fmt.Errorf("session: build_context: %w", err)
	}

	msgs := make([]*model.Message, 0, len(steps)+1)
	if systemPrompt != "" {
		msgs = append(msgs, &model.Message{
			Role:  model.ConversationRoleSystem,
			Parts: []model.Part{model.TextPart{Text: systemPrompt}},
		})
	}
	for _, st := range steps {
		if m := StepToMessage(st); m != nil {
			msgs = append(msgs, m)
		}
	}
	if err := ValidateHandshake(msgs); err != nil {
		return nil, fmt.Errorf("session: build_context: %w", err)
	}
	return msgs, nil
}

// StepToMessage projects one durable Step to its provider-neutral message
// form. A role=user or role=system step with no visible content (possible
// for a system step injected purely for bookkeeping) is dropped rather than
// emitted as an empty message; a role=assistant step with neither content
// nor tool calls is likewise dropped. Tool results are attached as
// model.ToolResultPart on a user-role message — every provider adapter in
// this module expects a tool result to arrive back as part of the next
// user-facing turn, not as its own role.
func StepToMessage(s step.Step) *model.Message {
	switch s.Role {
	case step.RoleUser:
		if s.Content == nil || *s.Content == "" {
			return nil
		}
		return &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: *s.Content}}}
	case step.RoleSystem:
		if s.Content == nil || *s.Content == "" {
			return nil
		}
		return &model.Message{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: *s.Content}}}
	case step.RoleAssistant:
		parts := make([]model.Part, 0, len(s.ToolCalls)+1)
		if s.Content != nil && *s.Content != "" {
			parts = append(parts, model.TextPart{Text: *s.Content})
		}
		for _, tc := range s.ToolCalls {
			var input any
			if tc.Arguments != "" {
				_ = json.Unmarshal([]byte(tc.Arguments), &input)
			}
			parts = append(parts, model.ToolUsePart{ID: tc.CallID, Name: tc.ToolName, Input: input})
		}
		if len(parts) == 0 {
			return nil
		}
		return &model.Message{Role: model.ConversationRoleAssistant, Parts: parts}
	case step.RoleTool:
		content := ""
		if s.Content != nil {
			content = *s.Content
		}
		return &model.Message{
			Role: model.ConversationRoleUser,
			Parts: []model.Part{model.ToolResultPart{
				ToolUseID: s.ToolCallID,
				Content:   content,
				IsError:   s.Failed,
			}},
		}
	default:
		return nil
	}
}
