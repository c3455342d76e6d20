package crawler

import (
	"context"
	"errors"
	"time"
)

// Default retry policy: three attempts, eleven seconds apart.
const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 11 * time.Second
)

// RetryPolicy decides whether and when a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
	MaxAttempts() int
}

// FixedRetryPolicy retries every fetch failure with the same delay. There is
// no jitter and no growth, so one slow page costs at most
// (attempts-1)*delay on top of its request timeouts.
type FixedRetryPolicy struct {
	attempts int
	delay    time.Duration
}

// NewFixedRetryPolicy builds a policy. attempts counts the first try; values
// below one are raised to one.
func NewFixedRetryPolicy(attempts int, delay time.Duration) *FixedRetryPolicy {
	if attempts < 1 {
		attempts = 1
	}
	if delay < 0 {
		delay = 0
	}
	return &FixedRetryPolicy{attempts: attempts, delay: delay}
}

// MaxAttempts returns the total number of tries, including the first.
func (p *FixedRetryPolicy) MaxAttempts() int {
	return p.attempts
}

// ShouldRetry reports whether attempt (1-based) may be followed by another.
func (p *FixedRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.attempts {
		return false
	}
	// Per-request timeouts are retried; the caller's own deadline is checked by
	// RetryFetcher before it sleeps.
	return !errors.Is(err, context.Canceled)
}

// Backoff returns the fixed delay regardless of attempt.
func (p *FixedRetryPolicy) Backoff(int) time.Duration {
	return p.delay
}
