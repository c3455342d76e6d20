package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
)

const testBase = "https://www.environment.nsw.gov.au/beachmapp"

const listingPage = `<html><body>
	<a href="/beachmapp/Beaches/Sydney">Sydney</a>
	<a href="/beachmapp/Beaches/Hunter">Hunter</a>
	<a href="/contact">Contact</a>
</body></html>`

const sydneyPage = `<html><body>
	<a href="/beachmapp/Beach/bondi">Bondi</a>
	<a href="/beachmapp/Beach/manly">Manly</a>
</body></html>`

const hunterPage = `<html><body>
	<a href="/beachmapp/Beach/merewether">Merewether</a>
</body></html>`

func beachPage(name, status string, alerts ...string) string {
	html := `<html><body><span class="navbar-title-text">` + name + `</span>` +
		`<div class="beach-timelapse-panel">Updated 5 minutes ago</div>` +
		`<div class="bw-status-text">` + status + `</div>`
	for _, a := range alerts {
		html += `<div class="bw-alert-text">` + a + `</div>`
	}
	return html + `</body></html>`
}

func sitePages() map[string]string {
	return map[string]string{
		testBase:                       listingPage,
		testBase + "/Beaches/Sydney":   sydneyPage,
		testBase + "/Beaches/Hunter":   hunterPage,
		testBase + "/Beach/bondi":      beachPage("Bondi Beach", "Open", "Shark sighted", "Closed"),
		testBase + "/Beach/manly":      beachPage("Manly Beach", "Likely"),
		testBase + "/Beach/merewether": beachPage("Merewether Beach", "Unlikely"),
	}
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	fail  map[string]error
	calls []string
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages, fail: map[string]error{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.fail[url]; ok {
		return "", err
	}
	body, ok := f.pages[url]
	if !ok {
		return "", &FetchError{URL: url, StatusCode: 404, Err: errors.New("not found")}
	}
	return body, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(time.Second)
	return now
}

type fakeSink struct {
	name   string
	dest   string
	err    error
	tables []*beach.Table
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Persist(_ context.Context, table *beach.Table) (string, error) {
	s.tables = append(s.tables, table)
	if s.err != nil {
		return s.dest, s.err
	}
	return s.dest, nil
}

type fakeIDs struct {
	id  string
	err error
}

func (g fakeIDs) NewID() (string, error) { return g.id, g.err }

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []any
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return fmt.Sprintf("msg-%d", len(p.topics)), nil
}
