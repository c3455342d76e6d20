package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultStripPath is removed from the base URL before hrefs are appended.
// The site's hrefs are root-relative and already start with it.
const DefaultStripPath = "/beachmapp"

// LinkOptions controls how matching hrefs become absolute URLs.
type LinkOptions struct {
	// StripPath is removed (every occurrence) from the base URL before the raw
	// href is appended. Empty means the base URL is used as-is.
	StripPath string
	// Bypass skips parsing and returns the base URL alone.
	Bypass bool
}

// DefaultLinkOptions returns the options used against the live site.
func DefaultLinkOptions() LinkOptions {
	return LinkOptions{StripPath: DefaultStripPath}
}

// Links returns every <a href> in document order whose href contains
// pathFilter, joined onto baseURL by plain concatenation. Duplicates are kept.
func Links(html, baseURL, pathFilter string, opts LinkOptions) ([]string, error) {
	if opts.Bypass {
		return []string{baseURL}, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return LinksFromDocument(doc, baseURL, pathFilter, opts), nil
}

// LinksFromDocument is Links for an already parsed document.
func LinksFromDocument(doc *goquery.Document, baseURL, pathFilter string, opts LinkOptions) []string {
	if opts.Bypass {
		return []string{baseURL}
	}
	prefix := baseURL
	if opts.StripPath != "" {
		prefix = strings.ReplaceAll(baseURL, opts.StripPath, "")
	}
	var out []string
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if strings.Contains(href, pathFilter) {
			out = append(out, prefix+href)
		}
	})
	return out
}
