package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
	"github.com/JakeFAU/beachwatch-crawler/internal/progress"
)

// Default freshness check against the "Data last updated" column, whose
// values read like "Updated 35 minutes ago" when the site is current.
const (
	DefaultFreshnessLabel  = "Data last updated"
	DefaultFreshnessMarker = "minutes ago"
)

// PipelineConfig holds the knobs of a single collection run.
type PipelineConfig struct {
	Discovery DiscoveryConfig
	Fields    beach.FieldSpec
	// Limit caps the number of beaches turned into rows; <= 0 means all.
	Limit int
	// FreshnessLabel/FreshnessMarker drive the stale-row warning. An empty
	// marker disables the check.
	FreshnessLabel  string
	FreshnessMarker string
	// NotifyTopic receives the run summary when a Publisher is configured.
	NotifyTopic string
}

// SinkResult records where a sink wrote, or why it failed.
type SinkResult struct {
	Sink        string `json:"sink"`
	Destination string `json:"destination,omitempty"`
	Error       string `json:"error,omitempty"`
}

// RunSummary describes a finished run. Table is the frozen table that was
// handed to the sinks.
type RunSummary struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Beaches    int          `json:"beaches"`
	Rows       int          `json:"rows"`
	Fallbacks  int          `json:"fallbacks"`
	StaleRows  int          `json:"stale_rows"`
	Sinks      []SinkResult `json:"sinks"`
	Error      string       `json:"error,omitempty"`

	Table *beach.Table `json:"-"`
}

// Succeeded reports whether the run completed without any error.
func (s *RunSummary) Succeeded() bool {
	return s != nil && s.Error == ""
}

// Attributes labels the published summary so subscribers can filter without
// decoding the body.
func (s *RunSummary) Attributes() map[string]string {
	result := "success"
	if !s.Succeeded() {
		result = "error"
	}
	return map[string]string{"run_id": s.RunID, "result": result}
}

// Pipeline runs discovery, table building and persistence in sequence.
type Pipeline struct {
	cfg       PipelineConfig
	fetcher   Fetcher
	sinks     []Sink
	clock     Clock
	ids       IDGenerator
	publisher Publisher
	emitter   progress.Emitter
	logger    *zap.Logger
}

// PipelineOption customises a Pipeline.
type PipelineOption func(*Pipeline)

// WithClock sets the clock used for row timestamps.
func WithClock(c Clock) PipelineOption {
	return func(p *Pipeline) { p.clock = c }
}

// WithIDGenerator sets the run ID source.
func WithIDGenerator(g IDGenerator) PipelineOption {
	return func(p *Pipeline) { p.ids = g }
}

// WithPublisher enables the run summary notification.
func WithPublisher(pub Publisher) PipelineOption {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithEmitter routes progress events.
func WithEmitter(e progress.Emitter) PipelineOption {
	return func(p *Pipeline) { p.emitter = e }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline validates cfg and assembles a Pipeline.
func NewPipeline(cfg PipelineConfig, fetcher Fetcher, sinks []Sink, opts ...PipelineOption) (*Pipeline, error) {
	if fetcher == nil {
		return nil, errors.New("pipeline requires a fetcher")
	}
	if cfg.Discovery.BaseURL == "" {
		return nil, errors.New("pipeline requires a base url")
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = beach.DefaultFieldSpec()
	}
	if err := cfg.Fields.Validate(); err != nil {
		return nil, fmt.Errorf("field spec: %w", err)
	}
	p := &Pipeline{
		cfg:     cfg,
		fetcher: fetcher,
		sinks:   append([]Sink(nil), sinks...),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.clock == nil {
		p.clock = realClock{}
	}
	if p.emitter == nil {
		p.emitter = progress.Discard
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p, nil
}

// Run executes one collection run: discover beaches, build and freeze the
// table, then persist it to every sink in order. The summary is returned even
// when the run fails.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{StartedAt: p.clock.Now()}
	runID, rawID := p.newRunID()
	summary.RunID = runID
	logger := p.logger.With(zap.String("run_id", runID))
	p.emit(progress.Event{RunID: rawID, Stage: progress.StageRunStart})
	logger.Info("run started", zap.String("base_url", p.cfg.Discovery.BaseURL), zap.Int("limit", p.cfg.Limit))

	err := p.run(ctx, summary, rawID, logger)
	summary.FinishedAt = p.clock.Now()
	dur := summary.FinishedAt.Sub(summary.StartedAt)
	if dur < 0 {
		dur = 0
	}
	if err != nil {
		summary.Error = err.Error()
		p.emit(progress.Event{RunID: rawID, Stage: progress.StageRunError, Dur: dur, Note: err.Error()})
		logger.Error("run failed", zap.Error(err))
	} else {
		p.emit(progress.Event{RunID: rawID, Stage: progress.StageRunDone, Dur: dur, Count: int64(summary.Rows)})
		logger.Info("run finished", zap.Int("rows", summary.Rows), zap.Duration("dur", dur))
	}
	p.notify(ctx, summary, logger)
	return summary, err
}

func (p *Pipeline) run(ctx context.Context, summary *RunSummary, rawID [16]byte, logger *zap.Logger) error {
	refs, err := Discover(ctx, p.fetcher, p.cfg.Discovery, logger)
	if err != nil {
		return err
	}
	summary.Beaches = len(refs)
	p.emit(progress.Event{RunID: rawID, Stage: progress.StageDiscoveryDone, Count: int64(len(refs))})
	logger.Info("beaches discovered", zap.Int("beaches", len(refs)))

	table, err := BuildTable(ctx, p.fetcher, p.cfg.Fields, refs, p.cfg.Limit, BuildOptions{
		Clock:  p.clock,
		Logger: logger,
		OnPage: func(ref beach.BeachRef, _ beach.Record, fallbacks int, dur time.Duration) {
			summary.Fallbacks += fallbacks
			p.emit(progress.Event{
				RunID:     rawID,
				Stage:     progress.StagePageDone,
				Region:    ref.Region,
				URL:       ref.URL,
				Fallbacks: int64(fallbacks),
				Dur:       dur,
			})
		},
	})
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			p.emit(progress.Event{RunID: rawID, Stage: progress.StagePageError, URL: fe.URL, Note: fe.Error()})
			logger.Error("beach page failed", zap.String("url", fe.URL), zap.Int("attempts", fe.Attempts))
		}
		return err
	}
	table.Freeze()
	summary.Rows = table.Len()
	summary.Table = table

	if p.cfg.FreshnessMarker != "" {
		label := p.cfg.FreshnessLabel
		if label == "" {
			label = DefaultFreshnessLabel
		}
		summary.StaleRows = table.StaleRows(label, p.cfg.FreshnessMarker)
		if summary.StaleRows > 0 {
			logger.Warn("rows look stale",
				zap.String("column", label),
				zap.String("marker", p.cfg.FreshnessMarker),
				zap.Int("stale_rows", summary.StaleRows),
				zap.Int("rows", summary.Rows),
			)
		}
	}

	results, err := p.persist(ctx, table, rawID, logger)
	summary.Sinks = results
	return err
}

// Persist hands a frozen table to every sink in order and collects their
// results. A failing sink does not stop later sinks and earlier writes are
// never undone; all failures come back combined as *SinkError values.
func (p *Pipeline) Persist(ctx context.Context, table *beach.Table) ([]SinkResult, error) {
	return p.persist(ctx, table, [16]byte{}, p.logger)
}

func (p *Pipeline) persist(
	ctx context.Context,
	table *beach.Table,
	rawID [16]byte,
	logger *zap.Logger,
) ([]SinkResult, error) {
	if table == nil {
		return nil, errors.New("persist: nil table")
	}
	if !table.Frozen() {
		return nil, errors.New("persist: table must be frozen")
	}
	results := make([]SinkResult, 0, len(p.sinks))
	var errs error
	for _, sink := range p.sinks {
		name := sink.Name()
		dest, err := sink.Persist(ctx, table)
		if err != nil {
			var se *SinkError
			if !errors.As(err, &se) {
				se = &SinkError{Sink: name, Destination: dest, Err: err}
			}
			errs = multierr.Append(errs, se)
			sinkWrites.WithLabelValues(name, "error").Inc()
			results = append(results, SinkResult{Sink: name, Destination: se.Destination, Error: se.Error()})
			p.emit(progress.Event{RunID: rawID, Stage: progress.StageSinkError, Sink: name, Destination: se.Destination, Note: se.Error()})
			logger.Error("sink failed", zap.String("sink", name), zap.String("destination", se.Destination), zap.Error(err))
			continue
		}
		sinkWrites.WithLabelValues(name, "success").Inc()
		results = append(results, SinkResult{Sink: name, Destination: dest})
		p.emit(progress.Event{RunID: rawID, Stage: progress.StageSinkDone, Sink: name, Destination: dest})
		logger.Info("table persisted",
			zap.String("sink", name),
			zap.String("destination", dest),
			zap.Int("rows", table.Len()),
		)
	}
	return results, errs
}

func (p *Pipeline) newRunID() (string, [16]byte) {
	if p.ids == nil {
		return "", [16]byte{}
	}
	id, err := p.ids.NewID()
	if err != nil {
		p.logger.Warn("run id generation failed", zap.Error(err))
		return "", [16]byte{}
	}
	raw, err := progress.ParseRunID(id)
	if err != nil {
		return id, [16]byte{}
	}
	return id, raw
}

func (p *Pipeline) emit(evt progress.Event) {
	if evt.RunID == [16]byte{} {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = p.clock.Now()
	}
	p.emitter.Emit(evt)
}

func (p *Pipeline) notify(ctx context.Context, summary *RunSummary, logger *zap.Logger) {
	if p.publisher == nil || p.cfg.NotifyTopic == "" {
		return
	}
	msgID, err := p.publisher.Publish(ctx, p.cfg.NotifyTopic, summary)
	if err != nil {
		logger.Warn("run summary publish failed", zap.String("topic", p.cfg.NotifyTopic), zap.Error(err))
		return
	}
	logger.Debug("run summary published", zap.String("topic", p.cfg.NotifyTopic), zap.String("message_id", msgID))
}
