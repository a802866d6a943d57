// Package model defines the provider-agnostic message and invocation types
// shared by every model.Client adapter and by the agent reason/act loop.
// Messages are modeled as typed parts (text, thinking, tool use/result,
// citations) rather than flattened strings, so provider adapters can encode
// and decode structure without lossy string parsing.
package model

import (
	"context"
	"encoding/json"
	"errors"
)

// ConversationRole identifies the speaker for a Message.
type ConversationRole string

const (
	ConversationRoleSystem    ConversationRole = "system"
	ConversationRoleUser      ConversationRole = "user"
	ConversationRoleAssistant ConversationRole = "assistant"
)

type (
	// Part is a marker interface implemented by every message content block.
	Part interface {
		isPart()
	}

	// ImageFormat identifies the on-wire encoding of an ImagePart.
	ImageFormat string

	// DocumentFormat identifies the on-wire format of a DocumentPart.
	DocumentFormat string

	// TextPart is a plain text content block.
	TextPart struct {
		Text string
	}

	// ImagePart carries image bytes for multimodal requests.
	ImagePart struct {
		Format ImageFormat
		Bytes  []byte
	}

	// DocumentPart carries document content for providers that support
	// document inputs and citation generation. Exactly one of Bytes, Text, or
	// URI is normally populated.
	DocumentPart struct {
		Name    string
		Format  DocumentFormat
		Bytes   []byte
		Text    string
		Chunks  []string
		URI     string
		Context string
		Cite    bool
	}

	// CitationsPart is generated content paired with the sources that
	// informed it. Providers may emit this instead of a TextPart when
	// citation generation is enabled.
	CitationsPart struct {
		Text      string
		Citations []Citation
	}

	// Citation links generated content back to a location in a source
	// document.
	Citation struct {
		Title         string
		Source        string
		Location      CitationLocation
		SourceContent []string
	}

	// CitationLocation identifies where cited content can be found. At most
	// one of the three fields is normally set.
	CitationLocation struct {
		DocumentChar  *DocumentCharLocation
		DocumentChunk *DocumentChunkLocation
		DocumentPage  *DocumentPageLocation
	}

	DocumentCharLocation struct {
		DocumentIndex int
		Start         int
		End           int
	}

	DocumentChunkLocation struct {
		DocumentIndex int
		Start         int
		End           int
	}

	DocumentPageLocation struct {
		DocumentIndex int
		Start         int
		End           int
	}

	// ThinkingPart carries provider-issued reasoning content. Callers treat
	// Signature/Redacted as opaque and surface them according to UI policy.
	ThinkingPart struct {
		Text      string
		Signature string
		Redacted  []byte
		Index     int
		Final     bool
	}

	// ToolUsePart declares a tool invocation by the assistant. The agent loop
	// turns these into concrete tool executions and correlates the result via
	// ToolResultPart.ToolUseID.
	ToolUsePart struct {
		ID    string
		Name  string
		Input any
	}

	// ToolResultPart carries a tool result attached to a subsequent message so
	// the model can read it on the next turn.
	ToolResultPart struct {
		ToolUseID string
		Content   any
		IsError   bool
	}

	// CacheCheckpointPart marks a prompt-cache boundary. Providers that do not
	// support caching ignore it.
	CacheCheckpointPart struct{}

	// Message is a single chat message: an ordered set of typed parts spoken
	// by Role.
	Message struct {
		Role  ConversationRole
		Parts []Part
		Meta  map[string]any
	}

	// ToolDefinition describes a tool exposed to the model: name, description,
	// and a JSON Schema input shape.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema any
	}

	// ToolCall is a tool invocation requested by the model. Payload is always
	// canonical JSON; adapters never hand callers partially-assembled bytes.
	ToolCall struct {
		Name    string
		Payload json.RawMessage
		ID      string
	}

	// ToolCallDelta is an incremental tool-call argument fragment streamed by
	// providers that construct tool input progressively. It is a best-effort
	// UX signal only — Delta is not guaranteed to be valid JSON on its own,
	// and the canonical payload is always the ToolCall emitted once the
	// provider closes the tool block.
	ToolCallDelta struct {
		Name  string
		ID    string
		Delta string
	}

	// ToolChoiceMode controls how the model is allowed or required to use
	// tools for a single request.
	ToolChoiceMode string

	// ToolChoice configures tool-use behavior for a Request. A nil ToolChoice
	// leaves the decision to the provider's default (normally "auto").
	ToolChoice struct {
		Mode ToolChoiceMode
		Name string
	}

	// TokenUsage tracks token counts for a single model call.
	TokenUsage struct {
		InputTokens      int
		OutputTokens     int
		TotalTokens      int
		CacheReadTokens  int
		CacheWriteTokens int
	}

	// ThinkingOptions configures provider reasoning behavior for a Request.
	ThinkingOptions struct {
		Enable       bool
		Interleaved  bool
		BudgetTokens int
	}

	// CacheOptions configures prompt caching for a Request. Providers that do
	// not support caching ignore it.
	CacheOptions struct {
		AfterSystem bool
		AfterTools  bool
	}

	// ModelClass selects a model family (e.g. "cheap and fast" vs.
	// "high reasoning") when Request.Model is left unspecified. Provider
	// adapters map classes to concrete model identifiers via their own
	// configuration.
	ModelClass string

	// Request captures the inputs to a single model invocation.
	Request struct {
		RunID       string
		Model       string
		ModelClass  ModelClass
		Messages    []*Message
		Temperature float32
		Tools       []*ToolDefinition
		ToolChoice  *ToolChoice
		MaxTokens   int
		Stream      bool
		Thinking    *ThinkingOptions
		Cache       *CacheOptions
	}

	// Response is the result of a non-streaming Complete call.
	Response struct {
		Content    []Message
		ToolCalls  []ToolCall
		Usage      TokenUsage
		StopReason string
	}

	// Chunk is a single streaming event emitted by a Streamer.
	Chunk struct {
		Type          string
		Message       *Message
		Thinking      string
		ToolCall      *ToolCall
		ToolCallDelta *ToolCallDelta
		UsageDelta    *TokenUsage
		StopReason    string
	}

	// Client is the provider-agnostic model client every adapter implements.
	Client interface {
		Complete(ctx context.Context, req *Request) (*Response, error)
		Stream(ctx context.Context, req *Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Callers must drain Recv
	// until it returns io.EOF (or another terminal error) and then Close.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
		Metadata() map[string]any
	}
)

const (
	ToolChoiceModeAuto ToolChoiceMode = "auto"
	ToolChoiceModeNone ToolChoiceMode = "none"
	ToolChoiceModeAny  ToolChoiceMode = "any"
	ToolChoiceModeTool ToolChoiceMode = "tool"
)

const (
	ChunkTypeText          = "text"
	ChunkTypeToolCall      = "tool_call"
	ChunkTypeToolCallDelta = "tool_call_delta"
	ChunkTypeThinking      = "thinking"
	ChunkTypeUsage         = "usage"
	ChunkTypeStop          = "stop"
)

const (
	ImageFormatPNG  ImageFormat = "png"
	ImageFormatJPEG ImageFormat = "jpeg"
	ImageFormatGIF  ImageFormat = "gif"
	ImageFormatWEBP ImageFormat = "webp"
)

const (
	DocumentFormatPDF  DocumentFormat = "pdf"
	DocumentFormatCSV  DocumentFormat = "csv"
	DocumentFormatDOC  DocumentFormat = "doc"
	DocumentFormatDOCX DocumentFormat = "docx"
	DocumentFormatXLS  DocumentFormat = "xls"
	DocumentFormatXLSX DocumentFormat = "xlsx"
	DocumentFormatHTML DocumentFormat = "html"
	DocumentFormatTXT  DocumentFormat = "txt"
	DocumentFormatMD   DocumentFormat = "md"
)

const (
	ModelClassHighReasoning ModelClass = "high-reasoning"
	ModelClassDefault       ModelClass = "default"
	ModelClassSmall         ModelClass = "small"
)

// ErrStreamingUnsupported indicates the provider adapter does not support
// streaming invocations.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting. Callers must not retry in a tight loop; it is a transient
// infrastructure failure safe to surface to higher layers (the agent loop
// wraps it, like any model call error, as runtimeerr.KindModelError).
var ErrRateLimited = errors.New("model: rate limited")

func (TextPart) isPart()            {}
func (ImagePart) isPart()           {}
func (DocumentPart) isPart()        {}
func (CitationsPart) isPart()       {}
func (ThinkingPart) isPart()        {}
func (ToolUsePart) isPart()         {}
func (ToolResultPart) isPart()      {}
func (CacheCheckpointPart) isPart() {}

// TextContent concatenates every TextPart in the message, ignoring other part
// kinds. Convenience for callers (agent commit logic, logging) that only care
// about the visible reply.
func (m Message) TextContent() string {
	var out string
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}
