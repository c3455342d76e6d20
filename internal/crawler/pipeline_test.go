package crawler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
	"github.com/JakeFAU/beachwatch-crawler/internal/progress"
)

const testRunID = "0190f7c6-8a3e-7c1a-9b1e-2f3a4b5c6d7e"

type eventRecorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *eventRecorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) Stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.Stage
	}
	return out
}

func newTestPipeline(t *testing.T, fetcher Fetcher, sinks []Sink, opts ...PipelineOption) *Pipeline {
	t.Helper()
	cfg := PipelineConfig{
		Discovery:       discoveryConfig(),
		FreshnessLabel:  DefaultFreshnessLabel,
		FreshnessMarker: DefaultFreshnessMarker,
		NotifyTopic:     "beachwatch-runs",
	}
	base := []PipelineOption{WithClock(sydneyClock()), WithIDGenerator(fakeIDs{id: testRunID})}
	p, err := NewPipeline(cfg, fetcher, sinks, append(base, opts...)...)
	require.NoError(t, err)
	return p
}

func TestPipelineRunPersistsFrozenTable(t *testing.T) {
	t.Parallel()

	csv := &fakeSink{name: "csv", dest: "file:///data/all_beach_daily_data.csv"}
	s3 := &fakeSink{name: "s3", dest: "s3://databooth-beach-swim/all_beach_daily_data.csv"}
	events := &eventRecorder{}
	pub := &fakePublisher{}
	p := newTestPipeline(t, newFakeFetcher(sitePages()), []Sink{csv, s3}, WithEmitter(events), WithPublisher(pub))

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Succeeded())
	assert.Equal(t, testRunID, summary.RunID)
	assert.Equal(t, 3, summary.Beaches)
	assert.Equal(t, 3, summary.Rows)
	assert.Zero(t, summary.StaleRows)
	assert.Positive(t, summary.Fallbacks)
	assert.Equal(t, []SinkResult{
		{Sink: "csv", Destination: csv.dest},
		{Sink: "s3", Destination: s3.dest},
	}, summary.Sinks)

	require.Len(t, csv.tables, 1)
	require.Len(t, s3.tables, 1)
	assert.Same(t, csv.tables[0], s3.tables[0])
	assert.True(t, csv.tables[0].Frozen())
	assert.ErrorIs(t, summary.Table.Append(beach.Record{}), beach.ErrTableFrozen)

	assert.Equal(t, []progress.Stage{
		progress.StageRunStart,
		progress.StageDiscoveryDone,
		progress.StagePageDone,
		progress.StagePageDone,
		progress.StagePageDone,
		progress.StageSinkDone,
		progress.StageSinkDone,
		progress.StageRunDone,
	}, events.Stages())

	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "beachwatch-runs", pub.topics[0])
	assert.Same(t, summary, pub.payloads[0])
}

func TestPipelineSinkFailureDoesNotStopLaterSinks(t *testing.T) {
	t.Parallel()

	local := &fakeSink{name: "csv", dest: "file:///data/x.csv"}
	db := &fakeSink{name: "sqlite", dest: "file:///data/db.sqlite", err: errors.New("disk full")}
	remote := &fakeSink{name: "s3", dest: "s3://bucket/key"}
	p := newTestPipeline(t, newFakeFetcher(sitePages()), []Sink{local, db, remote})

	summary, err := p.Run(context.Background())
	require.Error(t, err)
	assert.False(t, summary.Succeeded())
	assert.Len(t, local.tables, 1)
	assert.Len(t, remote.tables, 1)

	errs := multierr.Errors(err)
	require.Len(t, errs, 1)
	var se *SinkError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "sqlite", se.Sink)
	assert.Equal(t, "file:///data/db.sqlite", se.Destination)
	assert.Contains(t, summary.Sinks[1].Error, "disk full")
	assert.Empty(t, summary.Sinks[2].Error)
}

func TestPipelinePageFailureSkipsSinks(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(sitePages())
	fetcher.fail[testBase+"/Beach/merewether"] = &FetchError{URL: testBase + "/Beach/merewether", StatusCode: 503, Attempts: 3}
	sink := &fakeSink{name: "csv"}
	events := &eventRecorder{}
	core, logs := observer.New(zap.ErrorLevel)
	p := newTestPipeline(t, fetcher, []Sink{sink}, WithEmitter(events), WithLogger(zap.New(core)))

	summary, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, sink.tables)
	assert.Nil(t, summary.Table)
	assert.Contains(t, summary.Error, "merewether")

	stages := events.Stages()
	assert.Equal(t, progress.StageRunError, stages[len(stages)-1])
	assert.Contains(t, stages, progress.StagePageError)

	failed := logs.FilterMessage("beach page failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, testBase+"/Beach/merewether", failed[0].ContextMap()["url"])
}

func TestPipelineLimitAndStaleRows(t *testing.T) {
	t.Parallel()

	pages := sitePages()
	pages[testBase+"/Beach/bondi"] = `<span class="navbar-title-text">Bondi</span>` +
		`<div class="beach-timelapse-panel">Updated 2 days ago</div>`
	p, err := NewPipeline(PipelineConfig{
		Discovery:       discoveryConfig(),
		Limit:           2,
		FreshnessMarker: DefaultFreshnessMarker,
	}, newFakeFetcher(pages), nil)
	require.NoError(t, err)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Beaches)
	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, 1, summary.StaleRows)
	assert.Empty(t, summary.RunID)
}

func TestPipelinePublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{err: errors.New("topic not found")}
	p := newTestPipeline(t, newFakeFetcher(sitePages()), nil, WithPublisher(pub))

	_, err := p.Run(context.Background())
	require.NoError(t, err)
}

func TestPersistRequiresFrozenTable(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, newFakeFetcher(nil), []Sink{&fakeSink{name: "csv"}})
	table := beach.NewTable(beach.DefaultFieldSpec())
	_, err := p.Persist(context.Background(), table)
	require.Error(t, err)

	table.Freeze()
	results, err := p.Persist(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = p.Persist(context.Background(), nil)
	require.Error(t, err)
}

func TestNewPipelineValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(PipelineConfig{Discovery: discoveryConfig()}, nil, nil)
	require.Error(t, err)

	_, err = NewPipeline(PipelineConfig{}, newFakeFetcher(nil), nil)
	require.Error(t, err)

	_, err = NewPipeline(PipelineConfig{
		Discovery: discoveryConfig(),
		Fields:    beach.FieldSpec{{Selector: "a", Label: "A"}, {Selector: "a", Label: "B"}},
	}, newFakeFetcher(nil), nil)
	require.Error(t, err)
}

func TestRunSummaryAttributes(t *testing.T) {
	t.Parallel()

	ok := &RunSummary{RunID: testRunID}
	assert.Equal(t, map[string]string{"run_id": testRunID, "result": "success"}, ok.Attributes())

	failed := &RunSummary{RunID: testRunID, Error: "fetch failed"}
	assert.Equal(t, "error", failed.Attributes()["result"])
}
