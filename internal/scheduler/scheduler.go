package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSpec fires just after the site's morning update, Sydney time.
const DefaultSpec = "40 7 * * *"

// Config selects the schedule.
type Config struct {
	Spec     string
	Timezone string
}

// Scheduler fires Runner.Run on a cron schedule. Triggers that land while a
// run is still active are skipped and logged.
type Scheduler struct {
	runner *Runner
	logger *zap.Logger
	spec   string
	loc    *time.Location
	parser cron.Parser

	mu    sync.Mutex
	c     *cron.Cron
	entry cron.EntryID
}

// New validates cfg and builds a stopped Scheduler.
func New(cfg Config, runner *Runner, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	spec := strings.TrimSpace(cfg.Spec)
	if spec == "" {
		spec = DefaultSpec
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return &Scheduler{runner: runner, logger: logger, spec: spec, loc: loc, parser: parser}, nil
}

// Start registers the job and starts the cron loop. Runs use ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	id, err := c.AddFunc(s.spec, func() { s.fire(ctx) })
	if err != nil {
		return fmt.Errorf("add schedule: %w", err)
	}
	s.c = c
	s.entry = id
	c.Start()
	s.logger.Info("scheduler started",
		zap.String("spec", s.spec),
		zap.String("tz", s.loc.String()),
		zap.Time("next", c.Entry(id).Next),
	)
	return nil
}

// Stop halts the cron loop and waits for a fired job to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// Next returns the next fire time, or the zero time when stopped.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entry).Next
}

func (s *Scheduler) fire(ctx context.Context) {
	summary, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Warn("scheduled run skipped", zap.Error(err))
	case err != nil:
		// Runner already logged the failure.
	default:
		s.logger.Info("scheduled run finished",
			zap.String("run_id", summary.RunID),
			zap.Int("rows", summary.Rows),
		)
	}
}
