// Package ratelimit wraps an llm.Provider with an adaptive tokens-per-minute
// budget: an AIMD token bucket that halves its budget on a provider rate
// limit error and recovers gradually on success, so a single noisy assistant
// cannot starve the shared per-process provider connection.
package ratelimit

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/flowmind/agentrt/internal/llm"
)

// ErrRateLimited should be returned (or wrapped) by a Provider when the
// upstream API itself signals a rate limit, so the limiter can back off.
var ErrRateLimited = errors.New("llm: rate limited by provider")

// Limiter applies an adaptive tokens-per-minute cap on top of an
// llm.Provider.
type Limiter struct {
	mu sync.Mutex

	next llm.Provider

	limiter *rate.Limiter

	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64
}

// Wrap returns an llm.Provider that enforces an adaptive rate limit in
// front of next. initialTPM and maxTPM are tokens per minute; maxTPM is
// clamped up to initialTPM if set lower.
func Wrap(next llm.Provider, initialTPM, maxTPM float64) *Limiter {
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
	return &Limiter{
		next:         next,
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Complete enforces the limiter before delegating to the wrapped provider.
func (l *Limiter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := l.limiter.WaitN(ctx, estimateTokens(req)); err != nil {
		return llm.Response{}, err
	}
	resp, err := l.next.Complete(ctx, req)
	l.observe(err)
	return resp, err
}

// Stream enforces the limiter before delegating to the wrapped provider.
func (l *Limiter) Stream(ctx context.Context, req llm.Request) (llm.Streamer, error) {
	if err := l.limiter.WaitN(ctx, estimateTokens(req)); err != nil {
		return nil, err
	}
	s, err := l.next.Stream(ctx, req)
	l.observe(err)
	return s, err
}

func (l *Limiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, ErrRateLimited) {
		l.backoff()
	}
}

func (l *Limiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

func (l *Limiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// estimateTokens is a cheap character-count heuristic, consistent with the
// fixed-ratio approach used elsewhere for budgeting request cost without a
// real tokenizer.
func estimateTokens(req llm.Request) int {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	tokens := chars/4 + 64
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
