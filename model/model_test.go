package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextContentConcatenatesTextParts(t *testing.T) {
	msg := Message{
		Role: ConversationRoleAssistant,
		Parts: []Part{
			TextPart{Text: "hello "},
			ToolUsePart{ID: "1", Name: "lookup"},
			TextPart{Text: "world"},
		},
	}
	assert.Equal(t, "hello world", msg.TextContent())
}

func TestTextContentEmptyWithoutTextParts(t *testing.T) {
	msg := Message{Role: ConversationRoleAssistant, Parts: []Part{ToolUsePart{ID: "1"}}}
	assert.Equal(t, "", msg.TextContent())
}

func TestPartMarkersSatisfyInterface(t *testing.T) {
	var parts []Part = []Part{
		TextPart{}, ImagePart{}, DocumentPart{}, CitationsPart{},
		ThinkingPart{}, ToolUsePart{}, ToolResultPart{}, CacheCheckpointPart{},
	}
	assert.Len(t, parts, 8)
}
