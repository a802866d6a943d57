// Package mongo provides a MongoDB-backed SessionStore using
// go.mongodb.org/mongo-driver/v2, grounded on the teacher's session/run
// Mongo clients: a thin Store wrapping collection handles, plain inserts for
// steps, an upserted per-session sequence counter, and ensureIndexes run
// once at construction.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/flowmesh/agentrt/step"
)

const (
	defaultStepsCollection    = "agent_steps"
	defaultCountersCollection = "agent_sequence_counters"
	defaultOpTimeout          = 5 * time.Second
)

// Options configures the Mongo-backed SessionStore.
type Options struct {
	Client             *mongodriver.Client
	Database           string
	StepsCollection    string
	CountersCollection string
	Timeout            time.Duration
}

// Store implements store.SessionStore against MongoDB. Steps are keyed by
// (session_id, sequence) via a unique compound index; secondary indexes on
// (session_id, run_id) and (session_id, runnable_id) support the Filter
// predicates GetSteps accepts (Filter.WorkflowID matches runnable_id). Sequence numbers are allocated atomically via
// FindOneAndUpdate with $inc against a dedicated counters collection, so
// concurrent Append calls for the same session never collide.
type Store struct {
	steps    *mongodriver.Collection
	counters *mongodriver.Collection
	timeout  time.Duration
}

// NewStore constructs a Store, creating the required indexes if they don't
// already exist.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	stepsColl := opts.StepsCollection
	if stepsColl == "" {
		stepsColl = defaultStepsCollection
	}
	countersColl := opts.CountersCollection
	if countersColl == "" {
		countersColl = defaultCountersCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	s := &Store{
		steps:    db.Collection(stepsColl),
		counters: db.Collection(countersColl),
		timeout:  timeout,
	}

	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.ensureIndexes(ictx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	sessionSeq := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "sequence", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.steps.Indexes().CreateOne(ctx, sessionSeq); err != nil {
		return err
	}
	sessionRun := mongodriver.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "run_id", Value: 1}},
	}
	if _, err := s.steps.Indexes().CreateOne(ctx, sessionRun); err != nil {
		return err
	}
	sessionWorkflow := mongodriver.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "runnable_id", Value: 1}},
	}
	_, err := s.steps.Indexes().CreateOne(ctx, sessionWorkflow)
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

// NextSequence atomically increments and returns the sequence counter for
// sessionID via FindOneAndUpdate+$inc, upserting the counter document on
// first use.
func (s *Store) NextSequence(ctx context.Context, sessionID string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"session_id": sessionID}
	update := bson.M{"$inc": bson.M{"value": int64(1)}}
	after := options.ReturnDocument(options.After)
	var doc struct {
		Value int64 `bson:"value"`
	}
	err := s.counters.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(after),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Value, nil
}

// Append implements store.SessionStore.
func (s *Store) Append(ctx context.Context, st step.Step) (step.Step, error) {
	if st.Sequence == 0 {
		seq, err := s.NextSequence(ctx, st.SessionID)
		if err != nil {
			return step.Step{}, err
		}
		st.Sequence = seq
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.steps.InsertOne(ctx, st); err != nil {
		return step.Step{}, err
	}
	return st, nil
}

// BulkInsert implements store.SessionStore.
func (s *Store) BulkInsert(ctx context.Context, steps []step.Step) error {
	if len(steps) == 0 {
		return nil
	}
	docs := make([]any, len(steps))
	for i, st := range steps {
		docs[i] = st
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.steps.InsertMany(ctx, docs)
	return err
}

// GetSteps implements store.SessionStore, translating a step.Filter into a
// Mongo query against the session_id/run_id/runnable_id/node_id/branch_key
// fields (Filter.WorkflowID is matched against runnable_id) and sorting by
// sequence ascending.
func (s *Store) GetSteps(ctx context.Context, sessionID string, filter step.Filter) ([]step.Step, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := bson.M{"session_id": sessionID}
	if filter.RunID != "" {
		query["run_id"] = filter.RunID
	}
	if filter.WorkflowID != "" {
		query["runnable_id"] = filter.WorkflowID
	}
	if filter.NodeID != "" {
		query["node_id"] = filter.NodeID
	}
	if filter.BranchKey != "" {
		query["branch_key"] = filter.BranchKey
	}

	cur, err := s.steps.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []step.Step
	for cur.Next(ctx) {
		var st step.Step
		if err := cur.Decode(&st); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, cur.Err()
}

// GetLastStep implements store.SessionStore.
func (s *Store) GetLastStep(ctx context.Context, sessionID string) (step.Step, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var st step.Step
	err := s.steps.FindOne(ctx,
		bson.M{"session_id": sessionID},
		options.FindOne().SetSort(bson.D{{Key: "sequence", Value: -1}}),
	).Decode(&st)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return step.Step{}, false, nil
	}
	if err != nil {
		return step.Step{}, false, err
	}
	return st, true, nil
}

// DeleteFrom implements store.SessionStore.
func (s *Store) DeleteFrom(ctx context.Context, sessionID string, fromSeq int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.steps.DeleteMany(ctx, bson.M{
		"session_id": sessionID,
		"sequence":   bson.M{"$gte": fromSeq},
	})
	return err
}
