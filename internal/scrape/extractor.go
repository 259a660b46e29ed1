package scrape

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/broker-verify/internal/model"
)

// Target is the search hit being scraped and the broker it should describe.
type Target struct {
	Result     model.SearchResult
	BrokerName string
}

// Extractor pulls broker data out of one site's pages. Extract sets the data
// fields and Confidence; the scraper fills in source and timing metadata.
type Extractor interface {
	Domain() string
	Extract(doc *goquery.Document, page *Page, target Target) model.ScrapedBrokerData
}

// Registry maps domains to extractors.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry returns a registry with the built-in site extractors.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register(forexPeaceArmy{})
	r.Register(fxEmpire{})
	r.Register(babyPips{})
	r.Register(dailyFX{})
	return r
}

// Register adds or replaces the extractor for e.Domain().
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[strings.ToLower(e.Domain())] = e
}

// Lookup returns the extractor for domain or one of its parent domains.
func (r *Registry) Lookup(domain string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	domain = strings.ToLower(domain)
	for domain != "" {
		if e, ok := r.extractors[domain]; ok {
			return e, true
		}
		i := strings.IndexByte(domain, '.')
		if i < 0 {
			break
		}
		domain = domain[i+1:]
	}
	return nil, false
}

// Domains lists the registered domains.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.extractors))
	for d := range r.extractors {
		out = append(out, d)
	}
	return out
}

func firstText(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func listTexts(doc *goquery.Document, selector string) []string {
	var out []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if t := collapseSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

func capConfidence(c float64) float64 {
	if c > 1 {
		return 1
	}
	return c
}
