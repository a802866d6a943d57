// Package runtime is the single top-level wiring point for an Agent Runtime
// Core deployment: it owns the SessionStore, Wire, telemetry Bundle, Tool
// registry, and Runnable registry, and is the one place that constructs root
// ExecutionContexts and dispatches a top-level run. Per the source's
// "process-wide configuration/registry for tools, models, and runnables" is
// re-expressed here as this explicit, passed-around value — global
// singletons are an optional convenience an application may still layer on
// top (e.g. a package-level default *Runtime), never something this module
// itself relies on.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/flowmesh/agentrt/execctx"
	"github.com/flowmesh/agentrt/model"
	"github.com/flowmesh/agentrt/runnable"
	"github.com/flowmesh/agentrt/session"
	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/store"
	"github.com/flowmesh/agentrt/telemetry"
	"github.com/flowmesh/agentrt/tool"
	"github.com/flowmesh/agentrt/wire"
)

// Options collects a Runtime's dependencies. Construct via Option functions
// passed to New rather than directly; New installs defaults for anything
// left unset.
type Options struct {
	Store     store.SessionStore
	Wire      *wire.Wire
	Telemetry telemetry.Bundle
	Tools     *tool.Registry
	Runnables *runnable.Registry
}

// Option configures an Options value; pass any number to New.
type Option func(*Options)

// WithSessionStore overrides the default in-memory SessionStore.
func WithSessionStore(s store.SessionStore) Option { return func(o *Options) { o.Store = s } }

// WithWire overrides the default Wire, e.g. to share one bus across several
// Runtimes (uncommon — each Runtime normally owns its own execution tree).
func WithWire(w *wire.Wire) Option { return func(o *Options) { o.Wire = w } }

// WithTelemetry overrides the default no-op telemetry.Bundle.
func WithTelemetry(b telemetry.Bundle) Option { return func(o *Options) { o.Telemetry = b } }

// WithTools overrides the default empty tool.Registry, for callers that want
// to assemble theirs ahead of time.
func WithTools(r *tool.Registry) Option { return func(o *Options) { o.Tools = r } }

// WithRunnables overrides the default empty runnable.Registry.
func WithRunnables(r *runnable.Registry) Option { return func(o *Options) { o.Runnables = r } }

// Runtime owns every shared dependency a running Agent Runtime Core
// deployment needs and is the sole constructor of root ExecutionContexts.
// ExecutionContext deliberately does not hold a back-reference to its
// owning Runtime: every Runnable, Tool, and AgentAsTool adapter already
// receives the specific Store/Registry references it needs via constructor
// injection at wiring time, so no nested call ever needs to reach back
// through rctx to rediscover a registry — and a back-reference would import
// this package into execctx, inverting the module's whole dependency
// graph for no operational benefit.
type Runtime struct {
	opts Options
}

// New constructs a Runtime, defaulting every dependency left unset by opts:
// an in-memory SessionStore, a fresh Wire, a no-op telemetry Bundle, and
// empty Tool/Runnable registries.
func New(opts ...Option) *Runtime {
	o := Options{}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	if o.Store == nil {
		o.Store = store.NewInMemory()
	}
	if o.Wire == nil {
		o.Wire = wire.New()
	}
	if o.Telemetry.Logger == nil && o.Telemetry.Metrics == nil && o.Telemetry.Tracer == nil {
		o.Telemetry = telemetry.NewNoopBundle()
	}
	if o.Tools == nil {
		o.Tools = tool.NewRegistry()
	}
	if o.Runnables == nil {
		o.Runnables = runnable.NewRegistry()
	}
	return &Runtime{opts: o}
}

// Store returns the Runtime's SessionStore.
func (rt *Runtime) Store() store.SessionStore { return rt.opts.Store }

// Wire returns the Runtime's shared event bus.
func (rt *Runtime) Wire() *wire.Wire { return rt.opts.Wire }

// Telemetry returns the Runtime's logging/metrics/tracing facades.
func (rt *Runtime) Telemetry() telemetry.Bundle { return rt.opts.Telemetry }

// Tools returns the Runtime's Tool registry, for registering plain function
// tools and AgentAsTool adapters before any run starts.
func (rt *Runtime) Tools() *tool.Registry { return rt.opts.Tools }

// Runnables returns the Runtime's Runnable registry, for registering the
// agents and workflows a top-level Run call or a workflow stage/branch
// reference can dispatch to by id.
func (rt *Runtime) Runnables() *runnable.Registry { return rt.opts.Runnables }

// RegisterRunnable adds r to the Runnable registry under its own ID.
func (rt *Runtime) RegisterRunnable(r runnable.Runnable) { rt.opts.Runnables.Register(r) }

// RegisterTool adds t to the Tool registry, compiling its parameters schema
// eagerly (tool.Registry.Register's own contract).
func (rt *Runtime) RegisterTool(t tool.Tool) error { return rt.opts.Tools.Register(t) }

// NewRun constructs a root ExecutionContext for a fresh top-level run under
// sessionID, carrying this Runtime's Wire and a freshly allocated RunID.
func (rt *Runtime) NewRun(ctx context.Context, sessionID string) *execctx.Context {
	return execctx.New(ctx, uuid.NewString(), sessionID, rt.opts.Wire)
}

// runResult carries a background run's terminal outcome from the goroutine
// RunStream spawns back to whichever caller is waiting on it (Run, or a
// caller that used RunStream directly and also wants the final Output once
// the event channel closes).
type runResult struct {
	output runnable.Output
	err    error
}

// runStream is the shared implementation behind RunStream and Run: it
// resolves runnableID, starts the run on a new goroutine, and returns an
// event channel scoped to that run and the runs nested under it (a run is
// taken in when one of its events names an already-taken run as its
// ParentRunID) plus a single-value result channel
// that receives the run's final (Output, error) once the goroutine returns.
//
// events is closed from inside the collector subscriber itself, the instant
// a RUN_COMPLETED/RUN_FAILED event for this run has been forwarded — every
// Runnable implementation in this module publishes exactly one of those
// before its Run method returns (agent.Agent.fail/the success path;
// workflow's emitFailure/EmitRunCompleted in Pipeline, Parallel, and Loop).
// Closing here, rather than from the goroutine once Run returns, avoids a
// race between draining the subscriber's own queued terminal event and
// unsubscribing it: Run returning only means the terminal Publish call
// enqueued successfully, not that this collector has dequeued it yet.
func (rt *Runtime) runStream(ctx context.Context, runnableID, sessionID, input string) (<-chan wire.Event, <-chan runResult, error) {
	r, ok := rt.opts.Runnables.Lookup(runnableID)
	if !ok {
		return nil, nil, fmt.Errorf("runtime: run_stream: runnable %q is not registered", runnableID)
	}

	rctx := rt.NewRun(ctx, sessionID)
	rctx.RunnableID = r.ID()
	rctx.RunnableType = r.Type()

	events := make(chan wire.Event, wire.DefaultQueueSize)
	var closeOnce sync.Once
	var sub wire.Subscription

	// runIDs holds this run and every run found nested under it; it is only
	// touched from the subscription's own delivery goroutine.
	runIDs := map[string]bool{rctx.RunID: true}
	sub, err := rt.opts.Wire.Subscribe(wire.SubscriberFunc(func(_ context.Context, ev wire.Event) error {
		if !runIDs[ev.RunID] {
			if ev.ParentRunID == "" || !runIDs[ev.ParentRunID] {
				return nil
			}
			runIDs[ev.RunID] = true
		}
		events <- ev
		if ev.RunID == rctx.RunID && (ev.Type == wire.EventRunCompleted || ev.Type == wire.EventRunFailed) {
			closeOnce.Do(func() {
				_ = sub.Close()
				close(events)
			})
		}
		return nil
	}))
	if err != nil {
		close(events)
		return nil, nil, err
	}

	results := make(chan runResult, 1)
	go func() {
		out, runErr := r.Run(ctx, rctx, input)
		results <- runResult{output: out, err: runErr}
		close(results)
	}()

	return events, results, nil
}

// RunStream starts runnableID's execution as a background task against a
// freshly constructed root ExecutionContext for sessionID and returns a
// receive-only channel of the Wire events that one run produces — RUN_STARTED
// through RUN_COMPLETED/RUN_FAILED, plus everything in between (step deltas,
// tool calls, and the events of every run nested under this one). Events
// from any other run concurrently sharing this Runtime's Wire are filtered
// out. It is closed once this root run finishes; a caller that wants the run's
// final Output rather than its event stream should call Run instead, which
// is implemented on top of this method.
func (rt *Runtime) RunStream(ctx context.Context, runnableID, sessionID, input string) (<-chan wire.Event, error) {
	events, _, err := rt.runStream(ctx, runnableID, sessionID, input)
	return events, err
}

// Run resolves runnableID in the Runnable registry and drives it to
// completion, returning once the run settles. This is the top-level,
// blocking entry point an application calls to start a run; nested
// invocations (AgentAsTool, workflow stages) derive their own child Contexts
// directly and never go through Run again. Internally it is a thin wrapper
// around RunStream: it drains the run's event channel on the caller's behalf
// (so a Run caller that never subscribes still doesn't leak the channel) and
// returns the terminal result delivered once the background run exits.
func (rt *Runtime) Run(ctx context.Context, runnableID, sessionID, input string) (runnable.Output, error) {
	events, results, err := rt.runStream(ctx, runnableID, sessionID, input)
	if err != nil {
		return runnable.Output{}, err
	}
	for range events {
	}
	res := <-results
	return res.output, res.err
}

// BuildContext delegates to session.BuildContext against this Runtime's
// SessionStore — see §4.7's build_context operation.
func (rt *Runtime) BuildContext(ctx context.Context, sessionID, systemPrompt string, filter step.Filter) ([]*model.Message, error) {
	return session.BuildContext(ctx, rt.opts.Store, sessionID, systemPrompt, filter)
}

// Retry delegates to session.RetryFrom against this Runtime's SessionStore
// — see §4.7's retry operation. The caller uses the returned RetryPlan to
// resume execution (re-executing any PendingToolCalls before the next model
// call).
func (rt *Runtime) Retry(ctx context.Context, sessionID string, fromSequence int64) (session.RetryPlan, error) {
	return session.RetryFrom(ctx, rt.opts.Store, sessionID, fromSequence)
}

// Fork delegates to session.Fork against this Runtime's SessionStore — see
// §4.7's fork operation.
func (rt *Runtime) Fork(ctx context.Context, sessionID string, uptoSequence int64) (string, error) {
	return session.Fork(ctx, rt.opts.Store, sessionID, uptoSequence)
}

// Subscribe registers sub on this Runtime's Wire, for an application that
// wants to stream execution events (UI, logging, persistence) for every run
// this Runtime drives.
func (rt *Runtime) Subscribe(sub wire.Subscriber) (wire.Subscription, error) {
	return rt.opts.Wire.Subscribe(sub)
}
