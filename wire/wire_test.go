package wire

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor polls cond until it returns true or the deadline elapses, failing
// the test if it never does. Delivery is asynchronous in this Wire, so
// assertions about a subscriber having seen an event must wait rather than
// check immediately after Publish returns.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPublishDeliversToEverySubscriber(t *testing.T) {
	w := New()
	var mu sync.Mutex
	var seen []int

	for i := 0; i < 3; i++ {
		i := i
		_, err := w.Subscribe(SubscriberFunc(func(ctx context.Context, e Event) error {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
			return nil
		}))
		require.NoError(t, err)
	}

	require.NoError(t, w.Publish(context.Background(), Event{Type: EventRunStarted, RunID: "r1"}))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	})
}

func TestPublishPreservesPerSubscriberOrder(t *testing.T) {
	w := New()
	var mu sync.Mutex
	var order []int

	_, err := w.Subscribe(SubscriberFunc(func(ctx context.Context, e Event) error {
		mu.Lock()
		order = append(order, e.Payload.(int))
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Publish(context.Background(), Event{Type: EventStepDelta, Payload: i}))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPublishIsNonBlockingUnderSaturation(t *testing.T) {
	release := make(chan struct{})
	w := New(WithQueueSize(1))
	_, err := w.Subscribe(SubscriberFunc(func(ctx context.Context, e Event) error {
		<-release
		return nil
	}))
	require.NoError(t, err)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// First publish is consumed immediately by the blocked subscriber
	// goroutine; the second fills the size-1 queue. A third, published with
	// a short-lived ctx, proves Publish yields rather than deadlocking: it
	// returns ctx.Err() instead of hanging forever on a full channel send.
	require.NoError(t, w.Publish(context.Background(), Event{Type: EventStepDelta}))
	require.NoError(t, w.Publish(context.Background(), Event{Type: EventStepDelta}))

	err = w.Publish(ctx, Event{Type: EventStepDelta})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscriberErrorUnregistersWithoutBlockingOthers(t *testing.T) {
	boom := errors.New("boom")
	var errMu sync.Mutex
	var reportedErr error

	w := New(WithErrorHandler(func(event Event, err error) {
		errMu.Lock()
		reportedErr = err
		errMu.Unlock()
	}))

	_, err := w.Subscribe(SubscriberFunc(func(ctx context.Context, e Event) error { return boom }))
	require.NoError(t, err)

	var mu sync.Mutex
	var secondSeen int
	_, err = w.Subscribe(SubscriberFunc(func(ctx context.Context, e Event) error {
		mu.Lock()
		secondSeen++
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, w.Publish(context.Background(), Event{Type: EventError}))
	require.NoError(t, w.Publish(context.Background(), Event{Type: EventError}))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return secondSeen == 2
	})
	waitFor(t, func() bool {
		errMu.Lock()
		defer errMu.Unlock()
		return reportedErr != nil
	})
	assert.Equal(t, boom, reportedErr)
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	w := New()
	var mu sync.Mutex
	var calls int
	sub, err := w.Subscribe(SubscriberFunc(func(ctx context.Context, e Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, w.Publish(context.Background(), Event{Type: EventRunStarted}))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	})

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.NoError(t, w.Publish(context.Background(), Event{Type: EventRunStarted}))

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestCloseDisablesFurtherPublish(t *testing.T) {
	w := New()
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	err := w.Publish(context.Background(), Event{Type: EventRunStarted})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = w.Subscribe(SubscriberFunc(func(ctx context.Context, e Event) error { return nil }))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscribeRejectsNilSubscriber(t *testing.T) {
	w := New()
	_, err := w.Subscribe(nil)
	assert.Error(t, err)
}
