// Package middleware provides reusable model.Client middlewares, currently
// an adaptive token-bucket rate limiter.
package middleware

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/flowmesh/agentrt/model"
)

// AdaptiveRateLimiter applies an AIMD-style adaptive token bucket on top of a
// model.Client. It estimates the token cost of each request, blocks callers
// until capacity is available, and adjusts its effective tokens-per-minute
// budget in response to rate-limit signals from the provider.
//
// The limiter is process-local. Construct one instance per process and wrap
// the underlying model.Client with Middleware before handing it to an agent
// or workflow executor.
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64

	onBackoff func(newTPM float64)
	onProbe   func(newTPM float64)
}

// NewAdaptiveRateLimiter constructs an AdaptiveRateLimiter configured with an
// initial tokens-per-minute budget and an upper bound. initialTPM defaults to
// a conservative 60000 when zero or negative; maxTPM is clamped up to
// initialTPM when smaller.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	lim := rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM))

	return &AdaptiveRateLimiter{
		limiter:      lim,
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// OnBackoff registers a callback invoked whenever the limiter halves its
// budget in response to a rate-limited response.
func (l *AdaptiveRateLimiter) OnBackoff(fn func(newTPM float64)) {
	l.mu.Lock()
	l.onBackoff = fn
	l.mu.Unlock()
}

// OnProbe registers a callback invoked whenever the limiter grows its budget
// after an unrate-limited response.
func (l *AdaptiveRateLimiter) OnProbe(fn func(newTPM float64)) {
	l.mu.Lock()
	l.onProbe = fn
	l.mu.Unlock()
}

// Middleware returns a model.Client middleware enforcing the adaptive
// tokens-per-minute limit for both Complete and Stream calls.
func (l *AdaptiveRateLimiter) Middleware() func(model.Client) model.Client {
	return func(next model.Client) model.Client {
		if next == nil {
			return nil
		}
		return &limitedClient{next: next, limiter: l}
	}
}

type limitedClient struct {
	next    model.Client
	limiter *AdaptiveRateLimiter
}

func (c *limitedClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	resp, err := c.next.Complete(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (c *limitedClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	stream, err := c.next.Stream(ctx, req)
	c.limiter.observe(err)
	return stream, err
}

func (l *AdaptiveRateLimiter) wait(ctx context.Context, req *model.Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, model.ErrRateLimited) {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
	cb := l.onBackoff
	l.mu.Unlock()
	if cb != nil {
		cb(newTPM)
	}
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
	cb := l.onProbe
	l.mu.Unlock()
	if cb != nil {
		cb(newTPM)
	}
}

// CurrentTPM reports the limiter's current tokens-per-minute budget.
func (l *AdaptiveRateLimiter) CurrentTPM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

// estimateTokens computes a cheap heuristic for the number of tokens in the
// request transcript: characters in text and string tool results divided by
// an approximate chars-per-token ratio, plus a fixed buffer for system
// prompts and provider framing.
func estimateTokens(req *model.Request) int {
	charCount := 0
	for _, m := range req.Messages {
		for _, p := range m.Parts {
			switch v := p.(type) {
			case model.TextPart:
				charCount += len(v.Text)
			case model.ToolResultPart:
				if s, ok := v.Content.(string); ok {
					charCount += len(s)
				}
			}
		}
	}
	if charCount <= 0 {
		return 500
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
