package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket holding at most one token, refilled at a
// fixed rate. A limiter built with a non-positive rate never blocks.
type RateLimiter struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	tokens   float64
	lastTime time.Time
	poll     time.Duration
}

// NewRateLimiter allows perMinute operations per minute.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		rate:     float64(perMinute) / 60.0,
		tokens:   1,
		lastTime: time.Now(),
		poll:     10 * time.Millisecond,
	}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl.rate <= 0 {
		return ctx.Err()
	}
	for {
		wait, ok := rl.take()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// take consumes a token if one is available, otherwise it reports how long
// until the next one.
func (rl *RateLimiter) take() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens = min(1, rl.tokens+now.Sub(rl.lastTime).Seconds()*rl.rate)
	rl.lastTime = now
	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}
	need := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
	return max(min(need, time.Second), rl.poll), false
}
