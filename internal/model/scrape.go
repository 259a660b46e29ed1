package model

import "time"

// SpreadQuote is a single instrument spread scraped from a page.
type SpreadQuote struct {
	Pair   string  `json:"pair"`
	Spread float64 `json:"spread"`
}

// ScrapedBrokerData is the structured data extracted from one web page.
// Confidence is 0 when the page was unreachable, blocked, or irrelevant.
type ScrapedBrokerData struct {
	// BrokerName is the name the page itself reports, empty when no
	// extractor read one.
	BrokerName    string        `json:"broker_name,omitempty"`
	RequestedName string        `json:"requested_name,omitempty"`
	Regulation    []string      `json:"regulation,omitempty"`
	MinDeposit    *float64      `json:"min_deposit,omitempty"`
	Spreads       []SpreadQuote `json:"spreads,omitempty"`
	Rating        *float64      `json:"rating,omitempty"`
	Pros          []string      `json:"pros,omitempty"`
	Cons          []string      `json:"cons,omitempty"`
	Summary       string        `json:"summary,omitempty"`
	Platforms     []string      `json:"platforms,omitempty"`
	Features      []string      `json:"features,omitempty"`
	FoundingYear  *int          `json:"founding_year,omitempty"`
	Headquarters  string        `json:"headquarters,omitempty"`
	Confidence    float64       `json:"confidence"`
	SourceURL     string        `json:"source_url"`
	Domain        string        `json:"domain"`
	ScrapedAt     time.Time     `json:"scraped_at"`
}

// Spread returns the scraped spread for pair, matching case-insensitively
// and ignoring the separator ("EUR/USD" == "eurusd").
func (d ScrapedBrokerData) Spread(pair string) (float64, bool) {
	want := normalizePair(pair)
	for _, s := range d.Spreads {
		if normalizePair(s.Pair) == want {
			return s.Spread, true
		}
	}
	return 0, false
}

func normalizePair(p string) string {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		}
	}
	return string(out)
}
