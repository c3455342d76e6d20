package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
	"github.com/JakeFAU/beachwatch-crawler/internal/extract"
)

// PageObserver is told about every page appended to the table.
type PageObserver func(ref beach.BeachRef, rec beach.Record, fallbacks int, dur time.Duration)

// BuildOptions carries the collaborators BuildTable needs besides the fetcher.
type BuildOptions struct {
	Clock    Clock
	Logger   *zap.Logger
	OnPage   PageObserver
	Sentinel func(label string)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// BuildTable fetches up to limit refs (all of them when limit <= 0), extracts
// spec from each page and appends one row per page in ref order. A page that
// cannot be fetched aborts the build; the rows gathered so far are returned
// alongside the error, already joined, but callers must not persist them.
func BuildTable(
	ctx context.Context,
	fetcher Fetcher,
	spec beach.FieldSpec,
	refs []beach.BeachRef,
	limit int,
	opts BuildOptions,
) (*beach.Table, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("field spec: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	n := len(refs)
	if limit > 0 && limit < n {
		n = limit
	}
	table := beach.NewTable(spec)
	for i, ref := range refs[:n] {
		start := time.Now()
		html, err := fetcher.Fetch(ctx, ref.URL)
		if err != nil {
			return table, fmt.Errorf("fetch beach %d/%d (%s): %w", i+1, n, ref.URL, err)
		}
		fields, err := extract.FieldsFromHTML(html, spec)
		if err != nil {
			return table, fmt.Errorf("parse beach %s: %w", ref.URL, err)
		}
		rec := beach.Record{
			RetrievedAt: clock.Now(),
			Region:      ref.Region,
			Values:      make([]beach.Value, len(fields)),
		}
		fallbacks := 0
		for j, f := range fields {
			rec.Values[j] = f.Value
			if f.Fallback {
				fallbacks++
				fieldSentinels.WithLabelValues(f.Label).Inc()
				if opts.Sentinel != nil {
					opts.Sentinel(f.Label)
				}
			}
		}
		if err := table.Append(rec); err != nil {
			return table, fmt.Errorf("append row for %s: %w", ref.URL, err)
		}
		if fallbacks > 0 {
			logger.Debug("fields fell back to selector",
				zap.String("url", ref.URL),
				zap.Int("fallbacks", fallbacks),
			)
		}
		if opts.OnPage != nil {
			opts.OnPage(ref, rec, fallbacks, time.Since(start))
		}
	}
	tableRows.Set(float64(table.Len()))
	return table, nil
}
