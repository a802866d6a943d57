package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/model"
	"github.com/flowmesh/agentrt/step"
)

// buildContext loads every Step scoped to this invocation (per
// rctx.StepFilter, which narrows to this run's own RunID) and projects it to
// the provider-neutral message list, with the agent's system prompt
// prepended. This is §4.2 step 1, performed with this package's own
// stepToMessage, which duplicates session.StepToMessage (agent and session
// do not import each other) and must apply the same projection rules.
func (a *Agent) buildContext(ctx context.Context, rctx *execctx.Context) ([]*model.Message, error) {
	steps, err := a.store.GetSteps(ctx, rctx.SessionID, rctx.StepFilter())
	if err != nil {
		return nil, fmt.Errorf("agent: load context: %w", err)
	}

	msgs := make([]*model.Message, 0, len(steps)+1)
	if a.cfg.SystemPrompt != "" {
		msgs = append(msgs, &model.Message{
			Role:  model.ConversationRoleSystem,
			Parts: []model.Part{model.TextPart{Text: a.cfg.SystemPrompt}},
		})
	}
	for _, s := range steps {
		if m := stepToMessage(s); m != nil {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// stepToMessage projects one durable Step to its provider-neutral message
// form. Tool results are attached as ToolResultPart on a user-role message,
// matching how every provider adapter in this module expects tool output to
// arrive back on the next turn.
func stepToMessage(s step.Step) *model.Message {
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
		return &model.Message{
			Role: model.ConversationRoleUser,
			Parts: []model.Part{model.ToolResultPart{
				ToolUseID: s.ToolCallID,
				Content:   deref(s.Content),
				IsError:   s.Failed,
			}},
		}
	default:
		return nil
	}
}

// toolDefinitions resolves cfg.Tools into the model.ToolDefinition list sent
// with every request, using each Tool's own declared schema.
func (a *Agent) toolDefinitions() []*model.ToolDefinition {
	if len(a.cfg.Tools) == 0 {
		return nil
	}
	defs := make([]*model.ToolDefinition, 0, len(a.cfg.Tools))
	for _, name := range a.cfg.Tools {
		t, ok := a.tools.Lookup(name)
		if !ok {
			continue
		}
		defs = append(defs, &model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: json.RawMessage(t.ParametersSchema()),
		})
	}
	return defs
}
