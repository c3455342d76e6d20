// Package metrics holds the process-wide Prometheus collectors that are not
// tied to a run: the status API, the request limiter and build info. Run
// metrics live with the pipeline and the progress sinks.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequests      *prometheus.CounterVec
	apiLatency       *prometheus.HistogramVec
	rateLimitWaits   *prometheus.HistogramVec
	buildInfo        *prometheus.GaugeVec
	registerOnce     sync.Once
	unknownHostLabel = "unknown"
)

// Init registers the collectors with the default registry. Repeat calls are
// no-ops.
func Init() {
	registerOnce.Do(func() {
		apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beachwatch_http_requests_total",
			Help: "Status API requests by method, route and status code.",
		}, []string{"method", "route", "code"})
		apiLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "beachwatch_http_request_duration_seconds",
			Help:    "Status API latency by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "route"})
		// Waits of a few seconds are normal at the default 2 rps.
		rateLimitWaits = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "beachwatch_rate_limit_delay_seconds",
			Help:    "Time spent waiting on the per-host request limiter.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15},
		}, []string{"host"})
		buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beachwatch_build_info",
			Help: "Constant 1, labeled by version.",
		}, []string{"version"})
	})
}

// SanitizeSite reduces a URL (with or without a scheme) to a lowercase host
// name suitable as a label value, or "unknown".
func SanitizeSite(rawURL string) string {
	if rawURL == "" {
		return unknownHostLabel
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return unknownHostLabel
	}
	return strings.ToLower(u.Hostname())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one status API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	apiRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	apiLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records time spent waiting for a request token.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitWaits.WithLabelValues(host).Observe(duration.Seconds())
}

// SetBuildInfo publishes the running version.
func SetBuildInfo(version string) {
	Init()
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
