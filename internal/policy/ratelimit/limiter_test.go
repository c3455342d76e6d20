package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWaitSpacesRequests(t *testing.T) {
	t.Parallel()

	// 10 RPS = one token every 100ms, starting with a single token.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.environment.nsw.gov.au/beachmapp"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://www.environment.nsw.gov.au/beachmapp/Beaches/Sydney"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, 1, l.Hosts())
}

func TestLimiterDifferentHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.com/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.com/1"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 2, l.Hosts())
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://example.com"))
	}
}

func TestLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.01, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://example.com"))
}

func TestLimiterBucketsByNormalisedHost(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://WWW.Environment.nsw.gov.au/beachmapp"))
	require.NoError(t, l.Wait(ctx, "https://www.environment.nsw.gov.au:443/beachmapp/Beach/bondi"))
	assert.Equal(t, 1, l.Hosts())

	require.NoError(t, l.Wait(ctx, "%%"))
	assert.Equal(t, 2, l.Hosts(), "unparseable URLs share the unknown bucket")
}
