// Package scrape fetches search-result pages and extracts structured broker
// data from them with per-site extractors.
package scrape

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/broker-verify/internal/model"
	"github.com/sells-group/broker-verify/internal/resilience"
)

const defaultMaxConcurrent = 5

// Scraper turns search results into ScrapedBrokerData.
type Scraper struct {
	fetcher       *Fetcher
	registry      *Registry
	generic       Extractor
	matcher       *PathMatcher
	breakers      *resilience.Breakers
	maxConcurrent int
	respectRobots bool
	now           func() time.Time

	robotsMu sync.Mutex
	robots   map[string][]string
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithFetcher replaces the page fetcher.
func WithFetcher(f *Fetcher) Option {
	return func(s *Scraper) { s.fetcher = f }
}

// WithRegistry replaces the extractor registry.
func WithRegistry(r *Registry) Option {
	return func(s *Scraper) { s.registry = r }
}

// WithPathMatcher sets which URLs are never fetched.
func WithPathMatcher(m *PathMatcher) Option {
	return func(s *Scraper) { s.matcher = m }
}

// WithBreakers sets the per-domain circuit breakers.
func WithBreakers(b *resilience.Breakers) Option {
	return func(s *Scraper) { s.breakers = b }
}

// WithMaxConcurrent bounds ScrapeMultiple fan-out.
func WithMaxConcurrent(n int) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithRobots makes the scraper honour robots.txt before fetching.
func WithRobots(respect bool) Option {
	return func(s *Scraper) { s.respectRobots = respect }
}

// New creates a Scraper with the built-in extractors.
func New(opts ...Option) *Scraper {
	s := &Scraper{
		fetcher:       NewFetcher(defaultFetchTimeout),
		registry:      NewRegistry(),
		generic:       genericExtractor{},
		matcher:       NewPathMatcher(nil),
		breakers:      resilience.NewBreakers(resilience.DefaultBreakerConfig()),
		maxConcurrent: defaultMaxConcurrent,
		now:           time.Now,
		robots:        make(map[string][]string),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Registry exposes the extractor registry for adding sites.
func (s *Scraper) Registry() *Registry { return s.registry }

// BreakerStates snapshots the per-domain circuit breakers.
func (s *Scraper) BreakerStates() map[string]resilience.CircuitState {
	return s.breakers.States()
}

// ScrapeBrokerInfo fetches result.Link and extracts broker data. It never
// fails: any error yields a zero-confidence result carrying the snippet.
func (s *Scraper) ScrapeBrokerInfo(ctx context.Context, result model.SearchResult, brokerName string) model.ScrapedBrokerData {
	domain := model.HostDomain(result.Link)
	log := zap.L().With(zap.String("url", result.Link), zap.String("domain", domain))

	data, err := s.scrape(ctx, result, brokerName, domain)
	if err != nil {
		log.Warn("scrape: page skipped", zap.Error(err))
		data = model.ScrapedBrokerData{Summary: result.Snippet}
	}

	data.RequestedName = brokerName
	data.SourceURL = result.Link
	data.Domain = domain
	data.ScrapedAt = s.now().UTC()
	return data
}

func (s *Scraper) scrape(ctx context.Context, result model.SearchResult, brokerName, domain string) (data model.ScrapedBrokerData, err error) {
	if s.matcher.IsExcluded(result.Link) {
		return data, eris.Errorf("scrape: url excluded by path matcher: %s", result.Link)
	}
	if s.respectRobots && !s.CheckRobotsPermission(ctx, result.Link) {
		return data, eris.Errorf("scrape: disallowed by robots.txt: %s", result.Link)
	}

	page, err := resilience.Execute(ctx, s.breakers.Get(domain), func(ctx context.Context) (*Page, error) {
		return s.fetcher.Fetch(ctx, result.Link)
	})
	if err != nil {
		return data, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return data, eris.Wrap(err, "scrape: parse html")
	}

	ext, ok := s.registry.Lookup(domain)
	if !ok {
		ext = s.generic
	}

	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("scrape: extractor %q panicked: %v", ext.Domain(), r)
		}
	}()
	return ext.Extract(doc, page, Target{Result: result, BrokerName: brokerName}), nil
}

// ScrapeMultiple scrapes results concurrently and keeps only those with
// positive confidence, in input order.
func (s *Scraper) ScrapeMultiple(ctx context.Context, results []model.SearchResult, brokerName string) []model.ScrapedBrokerData {
	scraped := make([]model.ScrapedBrokerData, len(results))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for i, r := range results {
		g.Go(func() error {
			scraped[i] = s.ScrapeBrokerInfo(gctx, r, brokerName)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.ScrapedBrokerData, 0, len(scraped))
	for _, d := range scraped {
		if d.Confidence > 0 {
			out = append(out, d)
		}
	}
	return out
}
