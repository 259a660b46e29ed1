package model

import (
	"net/url"
	"strings"
	"time"
)

// SearchResult is one organic result returned by the search API.
type SearchResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
	Source   string `json:"source"`
	Date     string `json:"date,omitempty"`
	Favicon  string `json:"favicon,omitempty"`
}

// SearchResponse wraps the results of one query. A non-empty Error means
// the query degraded to an empty result set; callers treat it as valid.
type SearchResponse struct {
	Query        string         `json:"query"`
	Results      []SearchResult `json:"results"`
	TotalResults int64          `json:"total_results"`
	SearchTime   time.Duration  `json:"search_time"`
	Cached       bool           `json:"cached"`
	Error        string         `json:"error,omitempty"`
}

// HostDomain returns the lowercased host of link without a leading "www.".
// Unparseable links are returned unchanged.
func HostDomain(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Hostname() == "" {
		return link
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
