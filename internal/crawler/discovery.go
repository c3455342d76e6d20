package crawler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
	"github.com/JakeFAU/beachwatch-crawler/internal/extract"
)

// Link filters used against the Beachwatch site.
const (
	DefaultRegionFilter = "beachmapp/Beaches"
	DefaultBeachFilter  = "/beachmapp/Beach"
)

// DiscoveryConfig describes the two-level crawl from the listing page.
type DiscoveryConfig struct {
	BaseURL      string
	RegionFilter string
	BeachFilter  string
	StripPath    string
	Bypass       bool
}

// Discover fetches the listing page, then each region page, and returns every
// beach link as (region, url) in region-then-document order. Any fetch failure
// aborts discovery; partial results are not returned.
func Discover(ctx context.Context, fetcher Fetcher, cfg DiscoveryConfig, logger *zap.Logger) ([]beach.BeachRef, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Bypass {
		return []beach.BeachRef{{Region: "", URL: cfg.BaseURL}}, nil
	}
	if cfg.RegionFilter == "" {
		cfg.RegionFilter = DefaultRegionFilter
	}
	if cfg.BeachFilter == "" {
		cfg.BeachFilter = DefaultBeachFilter
	}
	opts := extract.LinkOptions{StripPath: cfg.StripPath}

	baseHTML, err := fetcher.Fetch(ctx, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("discover regions: %w", err)
	}
	regionURLs, err := extract.Links(baseHTML, cfg.BaseURL, cfg.RegionFilter, opts)
	if err != nil {
		return nil, fmt.Errorf("extract region links from %s: %w", cfg.BaseURL, err)
	}
	logger.Info("regions discovered", zap.String("url", cfg.BaseURL), zap.Int("regions", len(regionURLs)))

	var refs []beach.BeachRef
	for _, regionURL := range regionURLs {
		region := RegionName(regionURL)
		regionHTML, err := fetcher.Fetch(ctx, regionURL)
		if err != nil {
			return nil, fmt.Errorf("discover beaches in %s: %w", region, err)
		}
		beachURLs, err := extract.Links(regionHTML, cfg.BaseURL, cfg.BeachFilter, opts)
		if err != nil {
			return nil, fmt.Errorf("extract beach links from %s: %w", regionURL, err)
		}
		logger.Debug("region crawled",
			zap.String("region", region),
			zap.String("url", regionURL),
			zap.Int("beaches", len(beachURLs)),
		)
		for _, u := range beachURLs {
			refs = append(refs, beach.BeachRef{Region: region, URL: u})
		}
	}
	return refs, nil
}

// RegionName is the text after the last "/" of a region URL.
func RegionName(regionURL string) string {
	return regionURL[strings.LastIndex(regionURL, "/")+1:]
}
