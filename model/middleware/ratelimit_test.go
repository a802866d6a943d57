package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/agentrt/model"
)

type fakeClient struct {
	completeErr   error
	completeCalls int
}

func (f *fakeClient) Complete(_ context.Context, _ *model.Request) (*model.Response, error) {
	f.completeCalls++
	return nil, f.completeErr
}

func (f *fakeClient) Stream(_ context.Context, _ *model.Request) (model.Streamer, error) {
	return nil, nil
}

func sampleRequest() *model.Request {
	return &model.Request{
		Messages: []*model.Message{
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "hello"}}},
		},
		MaxTokens: 10,
	}
}

func TestAdaptiveRateLimiterBacksOffOnRateLimited(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(60000, 60000)
	initial := limiter.CurrentTPM()

	client := &fakeClient{completeErr: model.ErrRateLimited}
	wrapped := limiter.Middleware()(client)

	_, err := wrapped.Complete(context.Background(), sampleRequest())
	require.ErrorIs(t, err, model.ErrRateLimited)
	assert.Less(t, limiter.CurrentTPM(), initial)
}

func TestAdaptiveRateLimiterProbesOnSuccess(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(60000, 120000)
	limiter.mu.Lock()
	limiter.recoveryRate = 1000
	limiter.mu.Unlock()
	initial := limiter.CurrentTPM()

	client := &fakeClient{}
	wrapped := limiter.Middleware()(client)

	_, err := wrapped.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Greater(t, limiter.CurrentTPM(), initial)
}

func TestAdaptiveRateLimiterClampsToMax(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(100, 50)
	assert.Equal(t, 100.0, limiter.maxTPM)
}

func TestMiddlewarePassesThroughNilClient(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(1000, 1000)
	assert.Nil(t, limiter.Middleware()(nil))
}

func TestOnBackoffCallbackFires(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(60000, 60000)
	called := false
	limiter.OnBackoff(func(float64) { called = true })

	client := &fakeClient{completeErr: model.ErrRateLimited}
	wrapped := limiter.Middleware()(client)
	_, _ = wrapped.Complete(context.Background(), sampleRequest())

	assert.True(t, called)
}
