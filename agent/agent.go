// Package agent implements AgentExecutor: the reason/act loop that drives one
// agent Runnable to completion by alternating streaming model calls with
// tool executions until the model stops requesting tools, the configured
// step bound is reached, or the run is aborted.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/model"
	"github.com/flowmesh/agentrt/pipeline"
	"github.com/flowmesh/agentrt/runnable"
	"github.com/flowmesh/agentrt/runtimeerr"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/store"
	"github.com/flowmesh/agentrt/tool"
)

// Config declares one agent's reasoning configuration: which model to call,
// which tools it may use, and the bounds that govern its loop.
type Config struct {
	// ID is the agent's stable Runnable identifier (used for AgentAsTool
	// cycle detection and workflow stage/tool resolution).
	ID string
	// SystemPrompt is prepended to every model call as a system message.
	SystemPrompt string

	Model       string
	ModelClass  model.ModelClass
	Temperature float32
	MaxTokens   int
	ToolChoice  *model.ToolChoice
	Thinking    *model.ThinkingOptions
	Cache       *model.CacheOptions

	// Tools lists the registered tool names this agent may call. A name not
	// present in the bound Registry at call time is a configuration error
	// caught at New, not at Run.
	Tools []string

	// MaxSteps bounds the number of LLM-call iterations (not Steps) this
	// agent will perform before forcing termination_reason=max_steps. Must
	// be >= 1; defaults to 1 if left zero.
	MaxSteps int
	// ParallelToolCalls runs >=2 tool calls from one assistant step
	// concurrently instead of sequentially.
	ParallelToolCalls bool
	// TimeoutPerStep, if set, bounds a single model call.
	TimeoutPerStep time.Duration

	// EnableTerminationSummary, when the loop ends via max_steps, triggers
	// one final non-tool-using model call to produce a closing summary step
	// instead of leaving the last (possibly tool-requesting) assistant step
	// as the run's output.
	EnableTerminationSummary bool
	// TerminationSummaryPrompt is appended as a user message for the
	// termination-summary call. Ignored if EnableTerminationSummary is false.
	TerminationSummaryPrompt string
}

// Agent implements runnable.Runnable for a single reason/act loop.
type Agent struct {
	cfg    Config
	client model.Client
	tools  *tool.Registry
	store  store.SessionStore
}

// New constructs an Agent. Every name in cfg.Tools must already be
// registered in tools; this is checked eagerly so a misconfigured agent
// fails at construction rather than mid-run.
func New(cfg Config, client model.Client, tools *tool.Registry, s store.SessionStore) (*Agent, error) {
	if cfg.ID == "" {
		return nil, errors.New("agent: id is required")
	}
	if client == nil {
		return nil, errors.New("agent: model client is required")
	}
	if s == nil {
		return nil, errors.New("agent: session store is required")
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 1
	}
	for _, name := range cfg.Tools {
		if tools == nil {
			return nil, fmt.Errorf("agent: %s: tool %q requires a non-nil registry", cfg.ID, name)
		}
		if _, ok := tools.Lookup(name); !ok {
			return nil, fmt.Errorf("agent: %s: tool %q is not registered", cfg.ID, name)
		}
	}
	return &Agent{cfg: cfg, client: client, tools: tools, store: s}, nil
}

// ID implements runnable.Runnable.
func (a *Agent) ID() string { return a.cfg.ID }

// Type implements runnable.Runnable.
func (a *Agent) Type() step.RunnableType { return step.RunnableTypeAgent }

// Run implements runnable.Runnable: it drives the loop described in the
// package doc, persisting and emitting every Step along the way via a
// StepPipeline bound to rctx.
func (a *Agent) Run(ctx context.Context, rctx *execctx.Context, input string) (runnable.Output, error) {
	pipe := pipeline.New(rctx, a.store)
	if err := pipe.EmitRunStarted(ctx, input); err != nil {
		return runnable.Output{}, err
	}

	if input != "" {
		content := input
		if _, err := pipe.CommitStep(ctx, step.Step{Role: step.RoleUser, Content: &content}); err != nil {
			return a.fail(ctx, pipe, runtimeerr.Wrap(runtimeerr.KindStoreError, "", err))
		}
	}

	var (
		finalStep   step.Step
		termination runnable.TerminationReason
	)

	for iter := 1; ; iter++ {
		if rctx.Abort.Aborted() {
			return a.fail(ctx, pipe, runtimeerr.New(runtimeerr.KindAborted, rctx.Abort.Reason()))
		}

		assistantStep, err := a.callModel(ctx, rctx, pipe)
		if err != nil {
			var rtErr *runtimeerr.RuntimeError
			if !errors.As(err, &rtErr) {
				rtErr = runtimeerr.Wrap(runtimeerr.KindModelError, "", err)
			}
			return a.fail(ctx, pipe, rtErr)
		}
		finalStep = assistantStep

		if iter >= a.cfg.MaxSteps {
			termination = runnable.TerminationMaxSteps
			if a.cfg.EnableTerminationSummary {
				summary, err := a.callTerminationSummary(ctx, rctx, pipe)
				if err != nil {
					var rtErr *runtimeerr.RuntimeError
					if !errors.As(err, &rtErr) {
						rtErr = runtimeerr.Wrap(runtimeerr.KindModelError, "", err)
					}
					return a.fail(ctx, pipe, rtErr)
				}
				finalStep = summary
			}
			break
		}

		if !assistantStep.HasToolCalls() {
			termination = runnable.TerminationNatural
			break
		}

		if rctx.Abort.Aborted() {
			return a.fail(ctx, pipe, runtimeerr.New(runtimeerr.KindAborted, rctx.Abort.Reason()))
		}
		if err := a.executeToolCalls(ctx, rctx, pipe, assistantStep); err != nil {
			return a.fail(ctx, pipe, runtimeerr.Wrap(runtimeerr.KindStoreError, "", err))
		}
	}

	out := runnable.Output{
		RunID:             rctx.RunID,
		Content:           deref(finalStep.Content),
		TerminationReason: termination,
	}
	if finalStep.Metrics != nil {
		out.Metrics = *finalStep.Metrics
	}

	if err := pipe.EmitRunCompleted(ctx, &finalStep); err != nil {
		return out, err
	}
	return out, nil
}

func (a *Agent) fail(ctx context.Context, pipe *pipeline.StepPipeline, rtErr *runtimeerr.RuntimeError) (runnable.Output, error) {
	_ = pipe.EmitRunFailed(ctx, string(rtErr.Kind), rtErr.Error())
	reason := runnable.TerminationFailed
	if rtErr.Kind == runtimeerr.KindAborted {
		reason = runnable.TerminationAborted
	}
	return runnable.Output{TerminationReason: reason}, rtErr
}

// callTerminationSummary issues one final non-tool-using model call so the
// run ends on readable text instead of a max_steps-truncated tool request.
func (a *Agent) callTerminationSummary(ctx context.Context, rctx *execctx.Context, pipe *pipeline.StepPipeline) (step.Step, error) {
	prompt := a.cfg.TerminationSummaryPrompt
	if prompt == "" {
		prompt = "Summarize your progress and provide a final answer now; no further tool calls are available."
	}
	content := prompt
	if _, err := pipe.CommitStep(ctx, step.Step{Role: step.RoleUser, Content: &content}); err != nil {
		return step.Step{}, err
	}
	return a.callModelWithToolChoice(ctx, rctx, pipe, &model.ToolChoice{Mode: model.ToolChoiceModeNone})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
