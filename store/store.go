// Package store defines the SessionStore contract — the sole piece of
// shared mutable state across concurrently executing Runnables — and ships
// an in-memory implementation for tests and single-process use. A durable
// backend lives in store/mongo.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/flowmesh/agentrt/step"
)

// ErrSessionNotFound names the condition of a session that has never had a
// step appended. No method of InMemory or of store/mongo's Store returns
// it; GetLastStep reports an empty session with ok=false instead.
var ErrSessionNotFound = errors.New("store: session not found")

// SessionStore is the ordered append-only log of Steps for every session,
// plus the atomic sequence allocator that gives Steps their total order.
// Implementations must guarantee that sequence allocation is atomic per
// session_id — concurrent Append calls for the same session must never
// observe the same sequence number twice.
type SessionStore interface {
	// Append assigns the next sequence number for s.SessionID (if s.Sequence
	// is zero), persists s, and returns the persisted copy.
	Append(ctx context.Context, s step.Step) (step.Step, error)
	// BulkInsert persists steps that already carry explicit sequence
	// numbers, used by session.Fork to copy a prefix into a new session in
	// one call instead of replaying Append per step.
	BulkInsert(ctx context.Context, steps []step.Step) error
	// GetSteps returns every step for sessionID matching filter, in
	// ascending sequence order.
	GetSteps(ctx context.Context, sessionID string, filter step.Filter) ([]step.Step, error)
	// GetLastStep returns the highest-sequence step for sessionID, or
	// ok=false if the session has no steps.
	GetLastStep(ctx context.Context, sessionID string) (s step.Step, ok bool, err error)
	// DeleteFrom removes every step for sessionID with Sequence >= fromSeq,
	// the primitive session.RetryFrom is built on.
	DeleteFrom(ctx context.Context, sessionID string, fromSeq int64) error
	// NextSequence atomically allocates and returns the next sequence
	// number for sessionID without appending a step, for callers that need
	// to reserve a sequence ahead of constructing the Step body.
	NextSequence(ctx context.Context, sessionID string) (int64, error)
}

// InMemory is a mutex-protected SessionStore with no durability across
// process restarts, the default for tests and local tooling. Steps are
// defensively copied on read and write so callers can never mutate stored
// state through an aliased slice.
type InMemory struct {
	mu       sync.RWMutex
	bySess   map[string][]step.Step
	sequence map[string]int64
}

// NewInMemory constructs an empty InMemory store, immediately ready for use.
func NewInMemory() *InMemory {
	return &InMemory{
		bySess:   make(map[string][]step.Step),
		sequence: make(map[string]int64),
	}
}

// Append implements SessionStore.
func (s *InMemory) Append(_ context.Context, st step.Step) (step.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.Sequence == 0 {
		s.sequence[st.SessionID]++
		st.Sequence = s.sequence[st.SessionID]
	} else if st.Sequence > s.sequence[st.SessionID] {
		s.sequence[st.SessionID] = st.Sequence
	}
	s.bySess[st.SessionID] = append(s.bySess[st.SessionID], st)
	return st, nil
}

// BulkInsert implements SessionStore.
func (s *InMemory) BulkInsert(_ context.Context, steps []step.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range steps {
		s.bySess[st.SessionID] = append(s.bySess[st.SessionID], st)
		if st.Sequence > s.sequence[st.SessionID] {
			s.sequence[st.SessionID] = st.Sequence
		}
	}
	for sessionID := range s.bySess {
		sortBySequence(s.bySess[sessionID])
	}
	return nil
}

// GetSteps implements SessionStore.
func (s *InMemory) GetSteps(_ context.Context, sessionID string, filter step.Filter) ([]step.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []step.Step
	for _, st := range s.bySess[sessionID] {
		if filter.Matches(st) {
			out = append(out, st)
		}
	}
	return out, nil
}

// GetLastStep implements SessionStore.
func (s *InMemory) GetLastStep(_ context.Context, sessionID string) (step.Step, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := s.bySess[sessionID]
	if len(steps) == 0 {
		return step.Step{}, false, nil
	}
	return steps[len(steps)-1], true, nil
}

// DeleteFrom implements SessionStore.
func (s *InMemory) DeleteFrom(_ context.Context, sessionID string, fromSeq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := s.bySess[sessionID]
	kept := steps[:0:0]
	for _, st := range steps {
		if st.Sequence < fromSeq {
			kept = append(kept, st)
		}
	}
	s.bySess[sessionID] = kept
	return nil
}

// NextSequence implements SessionStore.
func (s *InMemory) NextSequence(_ context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence[sessionID]++
	return s.sequence[sessionID], nil
}

// Reset clears all stored steps and sequence counters. Not part of
// SessionStore; exists purely to isolate test cases sharing a store.
func (s *InMemory) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySess = make(map[string][]step.Step)
	s.sequence = make(map[string]int64)
}

func sortBySequence(steps []step.Step) {
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Sequence < steps[j].Sequence })
}
