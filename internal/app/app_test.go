package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/beachwatch-crawler/internal/config"
	memorypublisher "github.com/JakeFAU/beachwatch-crawler/internal/publisher/memory"
	"github.com/JakeFAU/beachwatch-crawler/internal/storage/memory"
)

func beachwatchSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/beachmapp": `<a href="/beachmapp/Beaches/Sydney">Sydney</a><a href="/about">About</a>`,
		"/beachmapp/Beaches/Sydney": `<a href="/beachmapp/Beach/bondi">Bondi</a>` +
			`<a href="/beachmapp/Beach/coogee">Coogee</a>`,
		"/beachmapp/Beach/bondi": `<span class="navbar-title-text">Bondi Beach</span>` +
			`<div class="beach-timelapse-panel">Updated 12 minutes ago</div>` +
			`<div class="bw-alert-text">Bluebottles</div><div class="bw-alert-text">Rips</div>`,
		"/beachmapp/Beach/coogee": `<span class="navbar-title-text">Coogee Beach</span>` +
			`<div class="beach-timelapse-panel">Updated 12 minutes ago</div>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>" + body + "</body></html>"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Source.BaseURL = baseURL
	cfg.Fetch.RetryDelay = 0
	cfg.Fetch.RequestsPerSecond = 0
	cfg.Fetch.Timeout = 5 * time.Second
	cfg.Sinks.Local.Dir = filepath.Join(dir, "data")
	cfg.Sinks.SQLite.Path = filepath.Join(dir, "data", "daily_beach_data_db.sqlite")
	cfg.Sinks.Object.Enabled = true
	cfg.Sinks.Object.Provider = config.ProviderMemory
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRunOnceWritesEverySink(t *testing.T) {
	t.Parallel()

	srv := beachwatchSite(t)
	cfg := testConfig(t, srv.URL+"/beachmapp")
	cfg.PubSub.Topic = "beachwatch-runs"
	objects := memory.NewBlobStore()
	pub := memorypublisher.New(0)

	a, err := New(context.Background(), cfg, nil,
		WithObjectStore(objects),
		WithPublisher(pub),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	summary, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Beaches)
	assert.Equal(t, 2, summary.Rows)
	assert.Zero(t, summary.StaleRows)

	var names []string
	for _, r := range summary.Sinks {
		assert.Empty(t, r.Error, r.Sink)
		names = append(names, r.Sink)
	}
	assert.Equal(t, []string{"csv", "xlsx", "parquet", "sqlite", "memory"}, names)

	entries, err := os.ReadDir(cfg.Sinks.Local.Dir)
	require.NoError(t, err)
	var files []string
	for _, e := range entries {
		files = append(files, e.Name())
	}
	assert.Contains(t, files, "all_beach_daily_data.parquet")
	assert.Contains(t, files, "daily_beach_data_db.sqlite")

	csvData, contentType, ok := objects.Get("all_beach_daily_data.csv")
	require.True(t, ok)
	assert.Equal(t, "text/csv", contentType)
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Retrieved at,Region,Beach name"))
	assert.Contains(t, lines[1], "Bondi Beach")
	assert.Contains(t, lines[1], "Bluebottles Rips")
	assert.Contains(t, lines[1], "+1", "timestamps carry the Sydney offset")

	msg, ok := pub.Last()
	require.True(t, ok)
	assert.Equal(t, "beachwatch-runs", msg.Topic)

	last, ok := a.Runner().Last()
	require.True(t, ok)
	assert.Same(t, summary, last)
	require.NoError(t, a.Ready(context.Background()))
}

func TestRunOnceReportsPageFailure(t *testing.T) {
	t.Parallel()

	srv := beachwatchSite(t)
	cfg := testConfig(t, srv.URL+"/beachmapp")
	cfg.Fetch.RetryAttempts = 2
	cfg.Sinks.Object.Enabled = false
	cfg.Source.Bypass = true
	cfg.Source.BaseURL = srv.URL + "/beachmapp/Beach/missing"

	a, err := New(context.Background(), cfg, nil, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	summary, err := a.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, summary.Error, "/beachmapp/Beach/missing")
	assert.Empty(t, summary.Sinks)
	assert.NoFileExists(t, filepath.Join(cfg.Sinks.Local.Dir, "all_beach_daily_data.parquet"))
}

func TestNewRejectsBadSinkConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "https://example.test/beachmapp")
	cfg.Sinks.Local.Formats = []string{"json"}
	_, err := New(context.Background(), cfg, nil, WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)

	cfg = testConfig(t, "https://example.test/beachmapp")
	cfg.Sinks.Object.Provider = "ftp"
	_, err = New(context.Background(), cfg, nil, WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "https://example.test/beachmapp")
	cfg.Schedule.Enabled = true
	a, err := New(context.Background(), cfg, nil, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
