// Package search runs paced, cached and retried web searches for broker
// information.
package search

import (
	"context"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/broker-verify/internal/cache"
	"github.com/sells-group/broker-verify/internal/model"
	"github.com/sells-group/broker-verify/internal/resilience"
	"github.com/sells-group/broker-verify/pkg/serpapi"
)

const (
	defaultNum          = 10
	defaultMinInterval  = time.Second
	defaultCacheTTL     = 24 * time.Hour
	defaultCacheEntries = 100
)

// ErrNoAPIKey is reported when no search client is configured.
var ErrNoAPIKey = eris.New("search: no API key configured")

// Query is one search request.
type Query struct {
	Text     string
	Site     string
	Num      int
	Language string
	Location string
	NoCache  bool
}

func (q Query) num() int {
	if q.Num <= 0 {
		return defaultNum
	}
	return q.Num
}

func (q Query) cacheKey() string {
	site := q.Site
	if site == "" {
		site = "all"
	}
	return fmt.Sprintf("search:%s_%s_%d", q.Text, site, q.num())
}

// Stats reports engine activity.
type Stats struct {
	RequestCount    int64     `json:"request_count"`
	LastRequestTime time.Time `json:"last_request_time"`
	CacheSize       int       `json:"cache_size"`
}

// Engine wraps a search client with pacing, caching and retries.
type Engine struct {
	client   serpapi.Client
	cache    cache.Cache
	cacheTTL time.Duration
	limiter  *rate.Limiter
	retry    resilience.RetryConfig

	requests    atomic.Int64
	lastRequest atomic.Int64
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache sets the response cache.
func WithCache(c cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithCacheTTL sets how long responses are reused.
func WithCacheTTL(d time.Duration) Option {
	return func(e *Engine) { e.cacheTTL = d }
}

// WithMinInterval sets the minimum delay between outbound requests. Zero
// disables pacing.
func WithMinInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d <= 0 {
			e.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		e.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(e *Engine) { e.retry = cfg }
}

// NewEngine creates an Engine. A nil client yields empty responses with
// ErrNoAPIKey set, so callers can run without search credentials.
func NewEngine(client serpapi.Client, opts ...Option) *Engine {
	e := &Engine{
		client:   client,
		cache:    cache.NewMemory(defaultCacheEntries),
		cacheTTL: defaultCacheTTL,
		limiter:  rate.NewLimiter(rate.Every(defaultMinInterval), 1),
		retry: resilience.RetryConfig{
			MaxAttempts: 3,
			Backoff:     resilience.LinearBackoff(time.Second),
			ShouldRetry: func(error) bool { return true },
			OnRetry:     resilience.RetryLogger("serpapi", "search"),
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Search runs q. It never fails: errors are reported in the response's
// Error field with an empty result set.
func (e *Engine) Search(ctx context.Context, q Query) *model.SearchResponse {
	start := e.now()
	log := zap.L().With(zap.String("query", q.Text), zap.String("site", q.Site))

	if e.client == nil {
		log.Warn("search: no API key configured, skipping web search")
		return &model.SearchResponse{Query: q.Text, Results: []model.SearchResult{}, Error: ErrNoAPIKey.Error()}
	}

	key := q.cacheKey()
	if !q.NoCache {
		cached, ok, err := cache.GetJSON[model.SearchResponse](ctx, e.cache, key)
		if err != nil {
			log.Debug("search: cache read failed", zap.Error(err))
		} else if ok {
			cached.Cached = true
			return &cached
		}
	}

	params := serpapi.Params{
		Query:    q.Text,
		Site:     q.Site,
		Num:      q.num(),
		Language: q.Language,
		Location: q.Location,
	}
	raw, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*serpapi.Response, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "search: wait for request slot")
		}
		e.lastRequest.Store(e.now().UnixNano())
		e.requests.Add(1)
		return e.client.Search(ctx, params)
	})
	if err != nil {
		log.Error("search: failed", zap.Error(err))
		return &model.SearchResponse{
			Query:      q.Text,
			Results:    []model.SearchResult{},
			Error:      err.Error(),
			SearchTime: e.now().Sub(start),
		}
	}

	resp := &model.SearchResponse{
		Query:        q.Text,
		Results:      parseResults(raw.OrganicResults),
		TotalResults: raw.SearchInformation.TotalResults,
		SearchTime:   e.now().Sub(start),
	}
	if !q.NoCache {
		if err := cache.SetJSON(ctx, e.cache, key, resp, e.cacheTTL); err != nil {
			log.Debug("search: cache write failed", zap.Error(err))
		}
	}
	log.Info("search: completed", zap.Int("results", len(resp.Results)))
	return resp
}

func parseResults(organic []serpapi.OrganicResult) []model.SearchResult {
	out := make([]model.SearchResult, 0, len(organic))
	for i, r := range organic {
		pos := r.Position
		if pos == 0 {
			pos = i + 1
		}
		out = append(out, model.SearchResult{
			Title:    r.Title,
			Link:     r.Link,
			Snippet:  r.Snippet,
			Position: pos,
			Source:   model.HostDomain(r.Link),
			Date:     r.Date,
			Favicon:  r.Favicon,
		})
	}
	return out
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// BrokerQueries expands the query templates for one kind of broker
// information.
func BrokerQueries(brokerName, infoType string, year int) []string {
	n := nonAlnum.ReplaceAllString(brokerName, "")
	switch infoType {
	case "regulation":
		return []string{
			n + " broker regulation license",
			n + " FCA ASIC CySEC license",
			fmt.Sprintf("%s regulatory status %d", n, year),
		}
	case "spreads":
		return []string{
			n + " spreads commission fees",
			n + " EUR/USD spread",
			fmt.Sprintf("%s trading costs %d", n, year),
		}
	case "deposit":
		return []string{
			n + " minimum deposit requirement",
			n + " account opening deposit",
			n + " deposit methods",
		}
	case "platforms":
		return []string{
			n + " trading platforms MT4 MT5",
			n + " platform features",
			n + " cTrader web platform",
		}
	case "review":
		return []string{
			fmt.Sprintf("%s broker review %d", n, year),
			n + " customer reviews rating",
			n + " pros cons analysis",
		}
	}
	return []string{n + " broker " + infoType}
}

const brokerInfoLimit = 10

// SearchBrokerInfo runs the templated queries for infoType in order and
// returns up to 10 deduplicated results.
func (e *Engine) SearchBrokerInfo(ctx context.Context, brokerName, infoType string) *model.SearchResponse {
	var all []model.SearchResult
	var elapsed time.Duration
	var lastErr string
	for _, q := range BrokerQueries(brokerName, infoType, e.now().Year()) {
		resp := e.Search(ctx, Query{Text: q, Num: 5})
		elapsed += resp.SearchTime
		if resp.Error != "" {
			lastErr = resp.Error
		}
		all = append(all, resp.Results...)
		if len(all) >= brokerInfoLimit {
			break
		}
	}

	results := dedupe(all)
	if len(results) > brokerInfoLimit {
		results = results[:brokerInfoLimit]
	}
	out := &model.SearchResponse{
		Query:      brokerName + " " + infoType,
		Results:    results,
		SearchTime: elapsed,
	}
	if len(results) == 0 {
		out.Error = lastErr
	}
	return out
}

// ReliableSites are the industry sites searched by SearchReliableSources.
var ReliableSites = []string{
	"forexpeacearmy.com",
	"fxempire.com",
	"babypips.com",
	"dailyfx.com",
	"investopedia.com",
	"financemagnates.com",
}

const reliableSitesQueried = 3

// SearchReliableSources runs query restricted to the first three reliable
// sites, three results each.
func (e *Engine) SearchReliableSources(ctx context.Context, query string) *model.SearchResponse {
	var all []model.SearchResult
	var elapsed time.Duration
	var lastErr string
	for _, site := range ReliableSites[:reliableSitesQueried] {
		resp := e.Search(ctx, Query{Text: query, Site: site, Num: 3})
		elapsed += resp.SearchTime
		if resp.Error != "" {
			lastErr = resp.Error
		}
		for _, r := range resp.Results {
			r.Source = site
			all = append(all, r)
		}
	}

	out := &model.SearchResponse{
		Query:      query,
		Results:    dedupe(all),
		SearchTime: elapsed,
	}
	if len(out.Results) == 0 {
		out.Error = lastErr
	}
	return out
}

func dedupe(results []model.SearchResult) []model.SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		key := r.Title + "\x00" + r.Link
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Stats returns request and cache counters.
func (e *Engine) Stats(ctx context.Context) Stats {
	size, err := e.cache.Len(ctx)
	if err != nil {
		zap.L().Debug("search: cache size unavailable", zap.Error(err))
	}
	var last time.Time
	if ns := e.lastRequest.Load(); ns > 0 {
		last = time.Unix(0, ns).UTC()
	}
	return Stats{
		RequestCount:    e.requests.Load(),
		LastRequestTime: last,
		CacheSize:       size,
	}
}

// ClearCache drops all cached responses.
func (e *Engine) ClearCache(ctx context.Context) error {
	if err := e.cache.Clear(ctx); err != nil {
		return eris.Wrap(err, "search: clear cache")
	}
	return nil
}
