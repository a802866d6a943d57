package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowmesh/agentrt/step"
	"github.com/flowmesh/agentrt/store"
)

// Fork implements §4.7's fork(session_id, N) -> new_session_id: every step
// with sequence <= uptoSeq is copied from sourceSessionID into a freshly
// allocated session, session_id rewritten to the new id and sequence
// numbers preserved exactly. The source session is never modified — Fork
// is a pure read of the source plus a bulk write of the copy, matching the
// fork-fidelity invariant that a forked session's first N steps equal the
// source's first N steps modulo session_id.
func Fork(ctx context.Context, s store.SessionStore, sourceSessionID string, uptoSeq int64) (string, error) {
	if uptoSeq <= 0 {
		return "", fmt.Errorf("session: fork: upto_sequence must be >= 1, got %d", uptoSeq)
	}

	source, err := s.GetSteps(ctx, sourceSessionID, step.Filter{})
	if err != nil {
		return "", fmt.Errorf("session: fork: load source: %w", err)
	}

	newSessionID := uuid.NewString()
	copied := make([]step.Step, 0, len(source))
	for _, st := range source {
		if st.Sequence > uptoSeq {
			continue
		}
		st.SessionID = newSessionID
		copied = append(copied, st)
	}
	if len(copied) == 0 {
		return newSessionID, nil
	}

	if err := s.BulkInsert(ctx, copied); err != nil {
		return "", fmt.Errorf("session: fork: %w", err)
	}
	return newSessionID, nil
}
