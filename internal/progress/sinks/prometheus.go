package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/beachwatch-crawler/internal/progress"
)

// PrometheusSink exports run lifecycle metrics. It owns the collectors for
// runs started/completed/running, pages per region and sink outcomes.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec
	lastSuccess   prometheus.Gauge

	beachesDiscovered prometheus.Gauge
	pages             *prometheus.CounterVec
	pageFallbacks     *prometheus.CounterVec
	pageDuration      prometheus.Histogram
	sinkResults       *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beachwatch_runs_started_total",
			Help: "Total collection runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beachwatch_runs_completed_total",
			Help: "Total collection runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beachwatch_runs_running",
			Help: "Current number of running collection runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "beachwatch_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		}, []string{"result"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beachwatch_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
		beachesDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beachwatch_beaches_discovered",
			Help: "Beach pages found by the most recent discovery.",
		}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beachwatch_pages_total",
			Help: "Beach pages processed partitioned by region and result.",
		}, []string{"region", "result"}),
		pageFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beachwatch_page_fallbacks_total",
			Help: "Fields that fell back to their selector, by region.",
		}, []string{"region"}),
		pageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "beachwatch_page_duration_seconds",
			Help:    "Time to fetch and extract one beach page, retries included.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
		}),
		sinkResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beachwatch_sink_results_total",
			Help: "Sink persist outcomes partitioned by sink and result.",
		}, []string{"sink", "result"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.lastSuccess,
		s.beachesDiscovered,
		s.pages,
		s.pageFallbacks,
		s.pageDuration,
		s.sinkResults,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		s.handleRunEvent(evt)
	case progress.StageDiscoveryDone:
		s.beachesDiscovered.Set(float64(evt.Count))
	case progress.StagePageDone, progress.StagePageError:
		s.handlePageEvent(evt)
	case progress.StageSinkDone:
		s.sinkResults.WithLabelValues(evt.Sink, "success").Inc()
	case progress.StageSinkError:
		s.sinkResults.WithLabelValues(evt.Sink, "error").Inc()
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
		s.lastSuccess.Set(float64(evt.TS.Unix()))
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageRunStart && s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handlePageEvent(evt progress.Event) {
	region := evt.Region
	if region == "" {
		region = "unknown"
	}
	result := "success"
	if evt.Stage == progress.StagePageError {
		result = "error"
	}
	s.pages.WithLabelValues(region, result).Inc()
	if evt.Fallbacks > 0 {
		s.pageFallbacks.WithLabelValues(region).Add(float64(evt.Fallbacks))
	}
	if evt.Dur > 0 {
		s.pageDuration.Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
