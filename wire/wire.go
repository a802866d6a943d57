// Package wire implements the Wire: an in-process, multi-producer/
// multi-consumer event bus shared across an execution tree. A root
// ExecutionContext's Wire is threaded through every nested ExecutionContext
// (runtime.Runtime hands the same Wire to every root run it starts), so an
// Agent nested five AgentAsTool calls deep publishes onto the exact same
// Wire as its root caller. Events are ordered per
// producer (a single goroutine only ever publishes its own events in
// program order) and per subscriber (each subscriber drains its own bounded
// queue in FIFO order); across producers and across subscribers, delivery is
// interleaved the way goroutine scheduling interleaves it — consumers that
// need a strict total order should sort by (RunID, sequence-within-run).
package wire

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"sync"
)

// EventType enumerates the event taxonomy a Wire carries. This is the
// canonical, client-facing vocabulary — additive event kinds (like
// EventToolOutputDelta) are ignorable by any consumer that doesn't recognize
// them, per the tagged-union extensibility called out in the data model.
type EventType string

const (
	// EventRunStarted marks the beginning of a Runnable's execution.
	EventRunStarted EventType = "RUN_STARTED"
	// EventStepDelta streams an incremental fragment of an in-progress
	// assistant step (text, reasoning, or tool-call argument fragments).
	EventStepDelta EventType = "STEP_DELTA"
	// EventStepCompleted marks that a Step has been fully assembled and
	// committed to the session store.
	EventStepCompleted EventType = "STEP_COMPLETED"
	// EventToolCallStarted marks that a tool invocation has begun executing.
	EventToolCallStarted EventType = "TOOL_CALL_STARTED"
	// EventToolCallCompleted marks that a tool invocation finished, with
	// either a result or a failure.
	EventToolCallCompleted EventType = "TOOL_CALL_COMPLETED"
	// EventToolOutputDelta streams a best-effort partial-output fragment for
	// tools that opt into output streaming. Not part of the canonical step
	// model; consumers may ignore it.
	EventToolOutputDelta EventType = "TOOL_OUTPUT_DELTA"
	// EventRunCompleted marks successful completion of a Runnable's run.
	EventRunCompleted EventType = "RUN_COMPLETED"
	// EventRunFailed marks that a Runnable's run terminated with a fatal
	// error (see runtimeerr's propagation policy).
	EventRunFailed EventType = "RUN_FAILED"
	// EventError carries an out-of-band error not tied to a single run's
	// terminal state (e.g. a Wire write failure surfaced to observers).
	EventError EventType = "ERROR"
)

// Event is a single published notification. RunID/SessionID let consumers
// filter or correlate across a deeply nested execution tree without
// inspecting the payload; Payload carries the event-specific,
// JSON-serializable data.
type Event struct {
	Type        EventType `json:"type"`
	RunID       string    `json:"run_id"`
	SessionID   string    `json:"session_id"`
	ParentRunID string    `json:"parent_run_id,omitempty"`
	Payload     any       `json:"payload,omitempty"`
}

// MarshalPayload returns the JSON encoding of the event's payload, useful
// for sinks that need generic serialization without a type switch.
func (e Event) MarshalPayload() ([]byte, error) {
	return json.Marshal(e.Payload)
}

// Subscriber reacts to events published on a Wire. HandleEvent is called
// from a dedicated per-subscriber goroutine, never from the publisher's own
// goroutine, so a slow subscriber only ever backs up its own queue — it
// cannot stall the producer or any other subscriber. A returned error stops
// that subscriber's own queue (see Wire's ErrorHandler option); it no longer
// halts delivery to other subscribers the way a synchronous bus would.
type Subscriber interface {
	HandleEvent(ctx context.Context, event Event) error
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event Event) error

// HandleEvent implements Subscriber.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error { return f(ctx, event) }

// Subscription represents an active registration on a Wire. Close is
// idempotent and safe to call concurrently with Publish.
type Subscription interface {
	Close() error
}

// DefaultQueueSize is the per-subscriber buffered-queue capacity used when
// Options.QueueSize is left zero.
const DefaultQueueSize = 256

// Options configures a Wire. The zero value is valid; New fills in defaults.
type Options struct {
	// QueueSize bounds each subscriber's event queue. Defaults to
	// DefaultQueueSize.
	QueueSize int
	// OnSubscriberError is invoked (from the failing subscriber's own
	// goroutine) when HandleEvent returns an error. The subscriber's queue
	// is always stopped and unregistered after this call returns; the
	// handler exists purely for observability (logging, metrics) since a
	// non-blocking bus has no synchronous caller left to return the error
	// to. Defaults to a no-op.
	OnSubscriberError func(event Event, err error)
}

// Option configures Options; pass any number to New.
type Option func(*Options)

// WithQueueSize overrides the default per-subscriber queue capacity.
func WithQueueSize(n int) Option { return func(o *Options) { o.QueueSize = n } }

// WithErrorHandler overrides the default no-op subscriber-error callback.
func WithErrorHandler(fn func(event Event, err error)) Option {
	return func(o *Options) { o.OnSubscriberError = fn }
}

// Wire is the shared, in-process event bus for one execution tree. Publish
// enqueues the event onto every currently registered subscriber's own
// bounded queue and returns without waiting for delivery — writes are
// non-blocking; if a subscriber's queue is saturated, the producer yields
// the processor (runtime.Gosched) and retries rather than blocking on a
// full channel send, so a stalled subscriber applies back-pressure to the
// producer without ever deadlocking it against the other subscribers (each
// has its own queue and its own consuming goroutine). Close is idempotent:
// once closed, Publish becomes a no-op that returns ErrClosed, so a child
// Runnable racing a parent's shutdown never panics.
type Wire struct {
	mu          sync.RWMutex
	subscribers []*subscription
	closed      bool
	closeOnce   sync.Once
	opts        Options
}

// ErrClosed is returned by Publish once the Wire has been closed.
var ErrClosed = errors.New("wire: closed")

// New constructs a ready-to-use Wire.
func New(opts ...Option) *Wire {
	o := Options{}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.OnSubscriberError == nil {
		o.OnSubscriberError = func(Event, error) {}
	}
	return &Wire{opts: o}
}

// Publish fans the event out to every currently registered subscriber's
// queue, in registration order, and returns once every enqueue has
// succeeded (or the Wire is closed / ctx is done). It never waits for a
// subscriber's HandleEvent to actually run.
func (w *Wire) Publish(ctx context.Context, event Event) error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]*subscription, 0, len(w.subscribers))
	for _, s := range w.subscribers {
		if !s.stopped() {
			subs = append(subs, s)
		}
	}
	w.mu.RUnlock()

	for _, s := range subs {
		if err := s.enqueue(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers sub and returns a Subscription that removes it on
// Close. Returns an error if sub is nil or the Wire is already closed.
// Events are delivered to sub from a dedicated goroutine this call starts.
func (w *Wire) Subscribe(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("wire: subscriber is required")
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	s := &subscription{
		wire:  w,
		sub:   sub,
		queue: make(chan Event, w.opts.QueueSize),
		done:  make(chan struct{}),
	}
	w.subscribers = append(w.subscribers, s)
	w.mu.Unlock()

	go s.run()
	return s, nil
}

// Close permanently disables the Wire: all subscriptions are stopped and
// subsequent Publish calls return ErrClosed. Close is idempotent.
func (w *Wire) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		subs := w.subscribers
		w.subscribers = nil
		w.mu.Unlock()
		for _, s := range subs {
			s.stop()
		}
	})
	return nil
}

func (w *Wire) removeSubscription(target *subscription) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, s := range w.subscribers {
		if s == target {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			return
		}
	}
}

// subscription owns one subscriber's bounded queue and the goroutine that
// drains it. Grounded on features/stream/pulse/subscriber.go's
// buffered-channel-plus-consumer-goroutine shape, generalized here to make
// the producer side (enqueue) explicitly non-blocking.
type subscription struct {
	wire    *Wire
	sub     Subscriber
	queue   chan Event
	done    chan struct{}
	once    sync.Once
	isStopped bool
	mu        sync.Mutex
}

// enqueue places event on the subscriber's queue without blocking: a full
// queue makes the producer yield and retry (spec's back-pressure contract)
// rather than wait on a blocking channel send. ctx cancellation is the only
// way out of a queue that never drains.
func (s *subscription) enqueue(ctx context.Context, event Event) error {
	for {
		select {
		case s.queue <- event:
			return nil
		case <-s.done:
			return nil
		default:
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
			runtime.Gosched()
		}
	}
}

// run drains the queue and invokes HandleEvent for each event in FIFO
// order, using a context independent of any single Publish call's ctx since
// delivery is decoupled from the producer by design. A HandleEvent error
// reports to the Wire's OnSubscriberError handler and stops this
// subscription permanently — a failing subscriber unregisters itself rather
// than holding a dead queue open.
func (s *subscription) run() {
	for {
		select {
		case event := <-s.queue:
			if err := s.sub.HandleEvent(context.Background(), event); err != nil {
				s.wire.opts.OnSubscriberError(event, err)
				_ = s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *subscription) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isStopped
}

func (s *subscription) stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.isStopped = true
		s.mu.Unlock()
		close(s.done)
	})
}

// Close removes the subscription from its Wire and stops its goroutine.
// Safe to call multiple times and safe to call concurrently with Publish.
func (s *subscription) Close() error {
	s.stop()
	s.wire.removeSubscription(s)
	return nil
}
