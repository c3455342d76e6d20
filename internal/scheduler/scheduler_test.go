package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/beachwatch-crawler/internal/crawler"
)

type blockingJob struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
	err     error
}

func newBlockingJob() *blockingJob {
	return &blockingJob{release: make(chan struct{}), started: make(chan struct{}, 4)}
}

func (j *blockingJob) Run(ctx context.Context) (*crawler.RunSummary, error) {
	n := j.calls.Add(1)
	j.started <- struct{}{}
	select {
	case <-j.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	summary := &crawler.RunSummary{RunID: "run-" + string(rune('0'+n)), Rows: int(n)}
	if j.err != nil {
		summary.Error = j.err.Error()
	}
	return summary, j.err
}

func TestRunnerRejectsOverlap(t *testing.T) {
	t.Parallel()

	job := newBlockingJob()
	r := NewRunner(job, nil)

	require.NoError(t, r.Trigger(context.Background()))
	<-job.started
	assert.True(t, r.Running())

	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrRunInProgress)
	require.ErrorIs(t, r.Trigger(context.Background()), ErrRunInProgress)

	close(job.release)
	r.Wait()
	assert.False(t, r.Running())
	assert.EqualValues(t, 1, job.calls.Load())

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, "run-1", last.RunID)
}

func TestRunnerKeepsFailedSummary(t *testing.T) {
	t.Parallel()

	job := newBlockingJob()
	job.err = errors.New("sink failed")
	close(job.release)
	core, logs := observer.New(zap.ErrorLevel)
	r := NewRunner(job, zap.New(core))

	_, ok := r.Last()
	assert.False(t, ok)

	summary, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "sink failed", summary.Error)
	last, ok := r.Last()
	require.True(t, ok)
	assert.Same(t, summary, last)
	assert.Equal(t, 1, logs.FilterMessage("run failed").Len())

	_, err = r.Run(context.Background())
	require.Error(t, err, "runner is reusable after a failure")
}

func TestSchedulerValidation(t *testing.T) {
	t.Parallel()

	r := NewRunner(newBlockingJob(), nil)
	_, err := New(Config{}, nil, nil)
	require.Error(t, err)
	_, err = New(Config{Spec: "every day"}, r, nil)
	require.Error(t, err)
	_, err = New(Config{Timezone: "Atlantis/Central"}, r, nil)
	require.Error(t, err)

	s, err := New(Config{Timezone: "Australia/Sydney"}, r, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSpec, s.spec)
}

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()

	r := NewRunner(newBlockingJob(), nil)
	s, err := New(Config{Spec: "40 7 * * *", Timezone: "Australia/Sydney"}, r, nil)
	require.NoError(t, err)
	assert.True(t, s.Next().IsZero())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")

	next := s.Next().In(s.loc)
	assert.Equal(t, 7, next.Hour())
	assert.Equal(t, 40, next.Minute())
	assert.True(t, next.After(time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
	assert.True(t, s.Next().IsZero())
}

func TestSchedulerFireSkipsWhenBusy(t *testing.T) {
	t.Parallel()

	job := newBlockingJob()
	r := NewRunner(job, nil)
	core, logs := observer.New(zap.InfoLevel)
	s, err := New(Config{}, r, zap.New(core))
	require.NoError(t, err)

	require.NoError(t, r.Trigger(context.Background()))
	<-job.started
	s.fire(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("scheduled run skipped").Len())

	close(job.release)
	r.Wait()
	s.fire(context.Background())
	<-job.started
	assert.Equal(t, 1, logs.FilterMessage("scheduled run finished").Len())
}
