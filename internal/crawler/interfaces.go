package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
)

// Fetcher retrieves a page body. Implementations return *FetchError for
// non-2xx responses and transport failures.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context, url string) (string, error)

// Fetch calls f.
func (f FetchFunc) Fetch(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// Sink persists a frozen table and reports where it went.
type Sink interface {
	Name() string
	Persist(ctx context.Context, table *beach.Table) (string, error)
}

// Limiter throttles outgoing requests.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Publisher pushes run summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Sleeper waits between retry attempts; tests swap it for an instant one.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
