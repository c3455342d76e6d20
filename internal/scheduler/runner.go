// Package scheduler triggers pipeline runs from a cron schedule or on demand
// and guarantees that at most one run is in flight.
package scheduler

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/beachwatch-crawler/internal/crawler"
)

// ErrRunInProgress is returned when a trigger arrives while a run is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// Job is one collection run; *crawler.Pipeline satisfies it.
type Job interface {
	Run(ctx context.Context) (*crawler.RunSummary, error)
}

// Runner serialises runs of a Job and remembers the most recent summary.
type Runner struct {
	job    Job
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	last    *crawler.RunSummary
	wg      sync.WaitGroup
}

// NewRunner wraps job.
func NewRunner(job Job, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{job: job, logger: logger}
}

// Run executes the job synchronously, or returns ErrRunInProgress.
func (r *Runner) Run(ctx context.Context) (*crawler.RunSummary, error) {
	if !r.acquire() {
		return nil, ErrRunInProgress
	}
	return r.execute(ctx)
}

// Trigger starts the job in the background, or returns ErrRunInProgress.
func (r *Runner) Trigger(ctx context.Context) error {
	if !r.acquire() {
		return ErrRunInProgress
	}
	go func() {
		_, _ = r.execute(ctx)
	}()
	return nil
}

// Running reports whether a run is in flight.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Last returns the summary of the most recently finished run.
func (r *Runner) Last() (*crawler.RunSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.last != nil
}

// Wait blocks until the in-flight run, if any, has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	r.wg.Add(1)
	return true
}

func (r *Runner) execute(ctx context.Context) (*crawler.RunSummary, error) {
	defer r.wg.Done()
	summary, err := r.job.Run(ctx)
	if err != nil {
		r.logger.Error("run failed", zap.Error(err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	if summary != nil {
		r.last = summary
	}
	return summary, err
}
