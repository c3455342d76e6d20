// Package detector decides when a page fetched over plain HTTP needs a
// headless browser instead, and wraps two fetchers around that decision.
package detector

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/beachwatch-crawler/internal/crawler"
)

// DefaultBodyLengthThreshold is the body size under which script-heavy pages
// are promoted.
const DefaultBodyLengthThreshold = 2048

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
	// RequiredMarkers, when set, promote any page that contains none of them.
	RequiredMarkers []string
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int, required ...string) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyLengthThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold, RequiredMarkers: required}
}

var spaMarkers = []string{
	"__next",
	`id="root"`,
	`id="app"`,
	"data-reactroot",
}

// ShouldPromote reports whether body looks like a shell that only renders
// with JavaScript.
func (h *Heuristic) ShouldPromote(body string) bool {
	if strings.TrimSpace(body) == "" {
		return true
	}
	if len(h.RequiredMarkers) > 0 && !containsAny(body, h.RequiredMarkers) {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	return containsAny(body, spaMarkers)
}

func containsAny(body string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

func scriptDensityHigh(body string) bool {
	lower := strings.ToLower(body)
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Malformed tag; the rest of the document counts as script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		nextSearch := total
		if relativeEnd != -1 {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}
		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	return scriptCoverage > 0 && scriptCoverage*100/total >= 25
}

// Fetcher probes every URL with a cheap fetcher and re-fetches it with the
// headless one when the heuristic says the probe body is not usable.
type Fetcher struct {
	probe     crawler.Fetcher
	headless  crawler.Fetcher
	heuristic *Heuristic
	logger    *zap.Logger
}

// NewFetcher builds a promoting fetcher. A nil headless fetcher disables
// promotion.
func NewFetcher(probe, headless crawler.Fetcher, h *Heuristic, logger *zap.Logger) *Fetcher {
	if h == nil {
		h = NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{probe: probe, headless: headless, heuristic: h, logger: logger}
}

// Fetch implements crawler.Fetcher. Probe errors are returned as-is; they are
// the retry loop's business, not a reason to launch a browser.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	body, err := f.probe.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	if f.headless == nil || !f.heuristic.ShouldPromote(body) {
		return body, nil
	}
	promotions.Inc()
	f.logger.Debug("promoting fetch to headless", zap.String("url", url), zap.Int("probe_bytes", len(body)))
	return f.headless.Fetch(ctx, url)
}
