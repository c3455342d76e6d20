// Package app builds the long-lived services from configuration and runs them
// either once or as a scheduled daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gcsstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/beachwatch-crawler/internal/api"
	"github.com/JakeFAU/beachwatch-crawler/internal/clock/system"
	"github.com/JakeFAU/beachwatch-crawler/internal/config"
	"github.com/JakeFAU/beachwatch-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/beachwatch-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/beachwatch-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/beachwatch-crawler/internal/headless/detector"
	"github.com/JakeFAU/beachwatch-crawler/internal/id/uuid"
	"github.com/JakeFAU/beachwatch-crawler/internal/metrics"
	"github.com/JakeFAU/beachwatch-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/beachwatch-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/beachwatch-crawler/internal/progress/sinks"
	"github.com/JakeFAU/beachwatch-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/beachwatch-crawler/internal/scheduler"
	"github.com/JakeFAU/beachwatch-crawler/internal/sink"
	"github.com/JakeFAU/beachwatch-crawler/internal/storage"
	"github.com/JakeFAU/beachwatch-crawler/internal/storage/gcs"
	"github.com/JakeFAU/beachwatch-crawler/internal/storage/local"
	"github.com/JakeFAU/beachwatch-crawler/internal/storage/memory"
	"github.com/JakeFAU/beachwatch-crawler/internal/storage/postgres"
	"github.com/JakeFAU/beachwatch-crawler/internal/storage/s3"
	"github.com/JakeFAU/beachwatch-crawler/internal/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// App holds every service a run needs.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    *system.Clock
	pipeline *crawler.Pipeline
	runner   *scheduler.Runner
	hub      *progress.Hub
	sqlite   *sqlite.TableStore
	closers  []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Option overrides a dependency, mainly for tests.
type Option func(*options)

type options struct {
	fetcher     crawler.Fetcher
	objectStore storage.BlobStore
	registerer  prometheus.Registerer
	publisher   crawler.Publisher
	version     string
}

// WithFetcher replaces the configured page fetcher. The retry policy and
// rate limiter still wrap it.
func WithFetcher(f crawler.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithObjectStore replaces the configured object store.
func WithObjectStore(s storage.BlobStore) Option {
	return func(o *options) { o.objectStore = s }
}

// WithRegisterer registers run metrics against reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithPublisher replaces the Pub/Sub publisher.
func WithPublisher(p crawler.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithVersion sets the build_info label.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// New wires the application. On error every resource opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer, version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	metrics.Init()
	metrics.SetBuildInfo(o.version)

	clk, err := system.NewInZone(cfg.Clock.Timezone)
	if err != nil {
		return nil, err
	}
	a.clock = clk

	fetcher, err := a.buildFetcher(o.fetcher)
	if err != nil {
		return nil, err
	}
	sinks, err := a.buildSinks(ctx, o.objectStore)
	if err != nil {
		return nil, err
	}

	promSink, err := progresssinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("progress metrics: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		progresssinks.NewLogSink(logger.Named("progress")),
		promSink,
	)

	pipelineOpts := []crawler.PipelineOption{
		crawler.WithClock(clk),
		crawler.WithIDGenerator(uuid.New()),
		crawler.WithEmitter(a.hub),
		crawler.WithLogger(logger.Named("pipeline")),
	}
	pub, err := a.buildPublisher(ctx, o.publisher)
	if err != nil {
		return nil, err
	}
	if pub != nil {
		pipelineOpts = append(pipelineOpts, crawler.WithPublisher(pub))
	}

	pipeline, err := crawler.NewPipeline(cfg.Pipeline(), fetcher, sinks, pipelineOpts...)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	a.pipeline = pipeline
	a.runner = scheduler.NewRunner(pipeline, logger.Named("runner"))
	return a, nil
}

func (a *App) buildFetcher(override crawler.Fetcher) (crawler.Fetcher, error) {
	inner := override
	if inner == nil {
		var err error
		if inner, err = a.baseFetcher(); err != nil {
			return nil, err
		}
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Fetch.RequestsPerSecond,
		DefaultBurst: a.cfg.Fetch.Burst,
	})
	return crawler.NewRetryFetcher(inner,
		crawler.NewFixedRetryPolicy(a.cfg.Fetch.RetryAttempts, a.cfg.Fetch.RetryDelay),
		crawler.WithLimiter(limiter),
		crawler.WithRetryLogger(a.logger.Named("fetch")),
	), nil
}

func (a *App) baseFetcher() (crawler.Fetcher, error) {
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Fetch.UserAgent,
		RespectRobots: a.cfg.Fetch.RespectRobots,
		Timeout:       a.cfg.Fetch.Timeout,
	})
	if a.cfg.Fetch.Mode == config.FetchModeColly {
		return probe, nil
	}
	hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       a.cfg.Headless.MaxParallel,
		UserAgent:         a.cfg.Fetch.UserAgent,
		NavigationTimeout: a.cfg.Headless.NavigationTimeout,
		WaitSelector:      a.cfg.Headless.WaitSelector,
		Settle:            a.cfg.Headless.Settle,
	})
	if err != nil {
		return nil, fmt.Errorf("headless fetcher: %w", err)
	}
	a.addCloser("headless", func() error { hf.Close(); return nil })
	if a.cfg.Fetch.Mode == config.FetchModeHeadless {
		return hf, nil
	}
	// Every page the crawl visits carries a region link, a beach link or the
	// first field's class; a probe body with none of them never rendered.
	markers := []string{a.cfg.Source.RegionFilter, a.cfg.Source.BeachFilter}
	if spec := a.cfg.FieldSpec(); len(spec) > 0 {
		markers = append(markers, spec[0].Selector)
	}
	h := detector.NewHeuristic(a.cfg.Headless.PromoteThreshold, markers...)
	return detector.NewFetcher(probe, hf, h, a.logger.Named("detector")), nil
}

// buildSinks returns the sinks in persistence order: local files, SQLite,
// Postgres, object storage.
func (a *App) buildSinks(ctx context.Context, objectOverride storage.BlobStore) ([]crawler.Sink, error) {
	var sinks []crawler.Sink
	sc := a.cfg.Sinks

	if sc.Local.Enabled {
		store, err := local.New(local.Config{BaseDir: sc.Local.Dir})
		if err != nil {
			return nil, fmt.Errorf("local sink: %w", err)
		}
		for _, format := range sc.Local.Formats {
			enc, err := sink.EncoderFor(format)
			if err != nil {
				return nil, fmt.Errorf("local sink: %w", err)
			}
			key := sink.TimestampedKey(sc.Local.BaseName, a.clock.Now)
			if format == "parquet" {
				key = sink.FixedKey(sc.Local.BaseName)
			}
			s, err := sink.NewBlobSink(format, store, enc, key)
			if err != nil {
				return nil, fmt.Errorf("local sink: %w", err)
			}
			sinks = append(sinks, s)
		}
	}

	if sc.SQLite.Enabled {
		store, err := sqlite.Open(sqlite.Config{
			Path:        sc.SQLite.Path,
			Table:       sc.SQLite.Table,
			BusyTimeout: sc.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("sqlite sink: %w", err)
		}
		a.sqlite = store
		a.addCloser("sqlite", store.Close)
		s, err := sink.NewTableSink("sqlite", store)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}

	if sc.Postgres.Enabled {
		store, err := postgres.NewTableStore(ctx, postgres.TableStoreConfig{
			DSN:             sc.Postgres.DSN,
			Table:           sc.Postgres.Table,
			MaxConns:        sc.Postgres.MaxConns,
			MinConns:        sc.Postgres.MinConns,
			MaxConnLifetime: sc.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres sink: %w", err)
		}
		a.addCloser("postgres", func() error { store.Close(); return nil })
		s, err := sink.NewTableSink("postgres", store)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}

	if sc.Object.Enabled {
		store := objectOverride
		if store == nil {
			built, err := a.buildObjectStore(ctx)
			if err != nil {
				return nil, fmt.Errorf("object sink: %w", err)
			}
			store = built
		}
		s, err := sink.NewBlobSink(sc.Object.Provider, store, sink.CSVEncoder{}, sink.ExactKey(sc.Object.Key))
		if err != nil {
			return nil, fmt.Errorf("object sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func (a *App) buildObjectStore(ctx context.Context) (storage.BlobStore, error) {
	oc := a.cfg.Sinks.Object
	switch oc.Provider {
	case config.ProviderS3:
		client, err := s3.NewClient(ctx, s3.Config{
			Region:          oc.S3.Region,
			Endpoint:        oc.S3.Endpoint,
			AccessKeyID:     oc.S3.AccessKeyID,
			SecretAccessKey: oc.S3.SecretAccessKey,
			UsePathStyle:    oc.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s3.New(client, s3.Config{Bucket: oc.Bucket, Prefix: oc.Prefix})
	case config.ProviderGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		a.addCloser("gcs", client.Close)
		return gcs.New(client, gcs.Config{Bucket: oc.Bucket, Prefix: oc.Prefix})
	case config.ProviderMemory:
		return memory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown object provider %q", oc.Provider)
	}
}

func (a *App) buildPublisher(ctx context.Context, override crawler.Publisher) (crawler.Publisher, error) {
	if override != nil {
		return override, nil
	}
	if a.cfg.PubSub.Topic == "" {
		return nil, nil
	}
	client, err := gpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub := pubsub.New(client)
	a.addCloser("pubsub", func() error {
		pub.Close()
		return client.Close()
	})
	return pub, nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Pipeline exposes the wired pipeline.
func (a *App) Pipeline() *crawler.Pipeline { return a.pipeline }

// Runner exposes the run serialiser.
func (a *App) Runner() *scheduler.Runner { return a.runner }

// RunOnce performs a single run and returns its summary.
func (a *App) RunOnce(ctx context.Context) (*crawler.RunSummary, error) {
	summary, err := a.runner.Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("run: %w", err)
	}
	return summary, nil
}

// Ready reports whether the embedded database answers.
func (a *App) Ready(ctx context.Context) error {
	if a.sqlite == nil {
		return nil
	}
	return a.sqlite.Ping(ctx)
}

// Serve runs the scheduler and status server until ctx is done, then waits
// for any in-flight run before returning.
func (a *App) Serve(ctx context.Context) error {
	var sched *scheduler.Scheduler
	if a.cfg.Schedule.Enabled {
		s, err := scheduler.New(scheduler.Config{
			Spec:     a.cfg.Schedule.Cron,
			Timezone: a.cfg.Schedule.Timezone,
		}, a.runner, a.logger.Named("scheduler"))
		if err != nil {
			return fmt.Errorf("build scheduler: %w", err)
		}
		if err := s.Start(ctx); err != nil {
			return err
		}
		sched = s
	}

	var srv *http.Server
	serverErr := make(chan error, 1)
	if a.cfg.Server.Enabled {
		handler := api.NewServer(a.runner, api.Config{
			AuthEnabled: a.cfg.Auth.Enabled,
			APIKey:      a.cfg.Auth.APIKey,
			Ready:       a.Ready,
			RunContext:  ctx,
		}, a.logger.Named("api"))
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           handler.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			runErr = multierr.Append(runErr, fmt.Errorf("server shutdown: %w", err))
		}
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			runErr = multierr.Append(runErr, err)
		}
	}
	a.runner.Wait()
	return runErr
}

// Close flushes progress events and releases every resource.
func (a *App) Close() error {
	var errs error
	if a.hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.hub.Close(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close progress hub: %w", err))
		}
		cancel()
		a.hub = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errs
}
