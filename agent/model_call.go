package agent

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/model"
	"github.com/flowmesh/agentrt/pipeline"
	"github.com/flowmesh/agentrt/runtimeerr"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/wire"
)

// pendingToolCall accumulates one tool call's streamed fragments, keyed by
// provider-assigned ID. name/finalArgs are populated as soon as a
// ChunkTypeToolCall closes the block; args accumulates delta fragments for
// the best-effort STEP_DELTA preview and is used as the call's arguments
// only when no ChunkTypeToolCall ever closed it.
type pendingToolCall struct {
	id        string
	name      string
	args      strings.Builder
	finalArgs string
	closed    bool
}

// callModel performs one streaming model call and returns the committed
// assistant Step, per §4.2 steps 1-3.
func (a *Agent) callModel(ctx context.Context, rctx *execctx.Context, pipe *pipeline.StepPipeline) (step.Step, error) {
	return a.callModelWithToolChoice(ctx, rctx, pipe, a.cfg.ToolChoice)
}

func (a *Agent) callModelWithToolChoice(ctx context.Context, rctx *execctx.Context, pipe *pipeline.StepPipeline, toolChoice *model.ToolChoice) (step.Step, error) {
	msgs, err := a.buildContext(ctx, rctx)
	if err != nil {
		return step.Step{}, runtimeerr.Wrap(runtimeerr.KindStoreError, "", err)
	}

	req := &model.Request{
		RunID:       rctx.RunID,
		Model:       a.cfg.Model,
		ModelClass:  a.cfg.ModelClass,
		Messages:    msgs,
		Temperature: a.cfg.Temperature,
		Tools:       a.toolDefinitions(),
		ToolChoice:  toolChoice,
		MaxTokens:   a.cfg.MaxTokens,
		Stream:      true,
		Thinking:    a.cfg.Thinking,
		Cache:       a.cfg.Cache,
	}

	callCtx := ctx
	if a.cfg.TimeoutPerStep > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.cfg.TimeoutPerStep)
		defer cancel()
	}

	streamer, err := a.client.Stream(callCtx, req)
	if err != nil {
		return step.Step{}, runtimeerr.Wrap(runtimeerr.KindModelError, "", err)
	}
	defer streamer.Close()

	started := time.Now()
	var (
		firstTokenAt time.Time
		content      strings.Builder
		reasoning    strings.Builder
		toolOrder    []string
		toolByID     = make(map[string]*pendingToolCall)
		usage        model.TokenUsage
	)

	for {
		chunk, err := streamer.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return step.Step{}, runtimeerr.Wrap(runtimeerr.KindModelError, "", err)
		}

		switch chunk.Type {
		case model.ChunkTypeText:
			if chunk.Message == nil {
				continue
			}
			text := chunk.Message.TextContent()
			if text == "" {
				continue
			}
			if firstTokenAt.IsZero() {
				firstTokenAt = time.Now()
			}
			content.WriteString(text)
			if err := pipe.EmitStepDelta(ctx, wire.StepDeltaPayload{ContentDelta: text}); err != nil {
				return step.Step{}, err
			}

		case model.ChunkTypeThinking:
			if chunk.Thinking == "" {
				continue
			}
			if firstTokenAt.IsZero() {
				firstTokenAt = time.Now()
			}
			reasoning.WriteString(chunk.Thinking)
			if err := pipe.EmitStepDelta(ctx, wire.StepDeltaPayload{ReasoningDelta: chunk.Thinking}); err != nil {
				return step.Step{}, err
			}

		case model.ChunkTypeToolCallDelta:
			d := chunk.ToolCallDelta
			if d == nil || d.ID == "" {
				continue
			}
			pb, ok := toolByID[d.ID]
			if !ok {
				pb = &pendingToolCall{id: d.ID, name: d.Name}
				toolByID[d.ID] = pb
				toolOrder = append(toolOrder, d.ID)
			}
			pb.args.WriteString(d.Delta)
			if err := pipe.EmitStepDelta(ctx, wire.StepDeltaPayload{ToolCallDelta: &wire.ToolCallDelta{
				Index:     indexOf(toolOrder, d.ID),
				CallID:    d.ID,
				ToolName:  pb.name,
				Arguments: d.Delta,
			}}); err != nil {
				return step.Step{}, err
			}

		case model.ChunkTypeToolCall:
			tc := chunk.ToolCall
			if tc == nil || tc.ID == "" {
				continue
			}
			pb, ok := toolByID[tc.ID]
			if !ok {
				pb = &pendingToolCall{id: tc.ID}
				toolByID[tc.ID] = pb
				toolOrder = append(toolOrder, tc.ID)
			}
			pb.name = tc.Name
			pb.finalArgs = string(tc.Payload)
			pb.closed = true

		case model.ChunkTypeUsage:
			if chunk.UsageDelta != nil {
				usage = *chunk.UsageDelta
			}
		}
	}

	toolCalls := make([]step.ToolCall, 0, len(toolOrder))
	for _, id := range toolOrder {
		pb := toolByID[id]
		args := pb.finalArgs
		if !pb.closed {
			args = pb.args.String()
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
		}
		toolCalls = append(toolCalls, step.ToolCall{CallID: pb.id, ToolName: pb.name, Arguments: args})
	}

	metrics := &step.Metrics{
		DurationMS:          time.Since(started).Milliseconds(),
		InputTokens:         usage.InputTokens,
		OutputTokens:        usage.OutputTokens,
		CacheReadTokens:     usage.CacheReadTokens,
		CacheCreationTokens: usage.CacheWriteTokens,
		ModelName:           a.cfg.Model,
	}
	if !firstTokenAt.IsZero() {
		metrics.FirstTokenLatencyMS = firstTokenAt.Sub(started).Milliseconds()
	}

	assistantStep := step.Step{
		Role:             step.RoleAssistant,
		Content:          nilIfEmpty(content.String()),
		ReasoningContent: nilIfEmpty(reasoning.String()),
		ToolCalls:        toolCalls,
		Metrics:          metrics,
	}
	committed, err := pipe.CommitStep(ctx, assistantStep)
	if err != nil {
		return step.Step{}, runtimeerr.Wrap(runtimeerr.KindStoreError, "", err)
	}
	return committed, nil
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
