package session

import (
	"fmt"

	"github.com/flowmesh/agentrt/model"
)

// ValidateHandshake checks the one structural invariant every provider
// adapter in this module relies on: an assistant message declaring
// tool_use parts must be immediately followed by a user message carrying
// matching tool_result parts, and a tool_result's id must reference a
// tool_use id the immediately preceding assistant message actually
// declared. BuildContext runs this before returning so a session corrupted
// by an external edit (a hand-patched store row, a partially applied
// retry) fails fast with a descriptive error instead of reaching a
// provider adapter and failing there with a much less legible one.
func ValidateHandshake(messages []*model.Message) error {
	for i, m := range messages {
		if m == nil || m.Role != model.ConversationRoleAssistant {
			continue
		}
		toolUseIDs := toolUseIDsOf(m)
		if len(toolUseIDs) == 0 {
			continue
		}
		if i+1 >= len(messages) || messages[i+1] == nil || messages[i+1].Role != model.ConversationRoleUser {
			return fmt.Errorf("session: assistant message at index %d declares tool_use but is not followed by a user tool_result message", i)
		}
		resultIDs := toolResultIDsOf(messages[i+1])
		for id := range resultIDs {
			if _, ok := toolUseIDs[id]; !ok {
				return fmt.Errorf("session: tool_result id %q at index %d does not match any tool_use id declared by the preceding assistant message", id, i+1)
			}
		}
	}
	return nil
}

func toolUseIDsOf(m *model.Message) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, p := range m.Parts {
		if tu, ok := p.(model.ToolUsePart); ok && tu.ID != "" {
			ids[tu.ID] = struct{}{}
		}
	}
	return ids
}

func toolResultIDsOf(m *model.Message) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, p := range m.Parts {
		if tr, ok := p.(model.ToolResultPart); ok && tr.ToolUseID != "" {
			ids[tr.ToolUseID] = struct{}{}
		}
	}
	return ids
}
