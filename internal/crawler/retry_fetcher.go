package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// RetryFetcher wraps a Fetcher with a single retry policy and an optional
// rate limiter. Every fetch in a run goes through the same instance, so
// backoff behavior is uniform across discovery and table building.
type RetryFetcher struct {
	inner   Fetcher
	policy  RetryPolicy
	limiter Limiter
	sleep   Sleeper
	logger  *zap.Logger
}

// RetryOption customizes a RetryFetcher.
type RetryOption func(*RetryFetcher)

// WithLimiter throttles each attempt through l.
func WithLimiter(l Limiter) RetryOption {
	return func(f *RetryFetcher) { f.limiter = l }
}

// WithSleeper replaces the inter-attempt wait.
func WithSleeper(s Sleeper) RetryOption {
	return func(f *RetryFetcher) { f.sleep = s }
}

// WithRetryLogger attaches a logger.
func WithRetryLogger(logger *zap.Logger) RetryOption {
	return func(f *RetryFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewRetryFetcher builds a RetryFetcher. A nil policy means one attempt.
func NewRetryFetcher(inner Fetcher, policy RetryPolicy, opts ...RetryOption) *RetryFetcher {
	if policy == nil {
		policy = NewFixedRetryPolicy(1, 0)
	}
	f := &RetryFetcher{
		inner:  inner,
		policy: policy,
		sleep:  sleepContext,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves url, retrying failures according to the policy. The final
// error is always a *FetchError carrying the attempt count.
func (f *RetryFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.inner == nil {
		return "", &FetchError{URL: url, Err: errors.New("no fetcher configured")}
	}
	var lastErr error
	for attempt := 1; ; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, url); err != nil {
				return "", &FetchError{URL: url, Attempts: attempt, Err: fmt.Errorf("rate limit: %w", err)}
			}
		}
		body, err := f.inner.Fetch(ctx, url)
		if err == nil {
			fetchAttempts.WithLabelValues("ok").Inc()
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil || !f.policy.ShouldRetry(err, attempt) {
			fetchAttempts.WithLabelValues("failed").Inc()
			return "", wrapFetchError(url, attempt, lastErr)
		}
		fetchAttempts.WithLabelValues("retry").Inc()
		delay := f.policy.Backoff(attempt)
		f.logger.Warn("fetch failed; retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", f.policy.MaxAttempts()),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := f.sleep(ctx, delay); err != nil {
			return "", wrapFetchError(url, attempt, fmt.Errorf("retry wait: %w (last error: %v)", err, lastErr))
		}
	}
}

func wrapFetchError(url string, attempts int, err error) *FetchError {
	if fe, ok := AsFetchError(err); ok {
		out := *fe
		if out.URL == "" {
			out.URL = url
		}
		out.Attempts = attempts
		return &out
	}
	return &FetchError{URL: url, Attempts: attempts, Err: err}
}
