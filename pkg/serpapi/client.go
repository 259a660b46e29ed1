package serpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/broker-verify/internal/resilience"
)

const (
	defaultBaseURL   = "https://serpapi.com"
	defaultUserAgent = "Broker-Analysis-Tool/1.0"
	defaultNum       = 10
	defaultLanguage  = "en"
	defaultLocation  = "us"
)

// Client performs SerpAPI Google searches.
type Client interface {
	Search(ctx context.Context, params Params) (*Response, error)
}

// Params are the search inputs. Zero values fall back to 10 results, "en"
// and "us".
type Params struct {
	Query    string
	Site     string
	Num      int
	Language string
	Location string
}

// Response is the subset of the SerpAPI payload the engine consumes.
type Response struct {
	OrganicResults    []OrganicResult   `json:"organic_results"`
	SearchInformation SearchInformation `json:"search_information"`
	Error             string            `json:"error,omitempty"`
}

// OrganicResult is one organic Google result.
type OrganicResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Date     string `json:"date,omitempty"`
	Favicon  string `json:"favicon,omitempty"`
}

// SearchInformation carries result totals.
type SearchInformation struct {
	TotalResults int64 `json:"total_results"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

type httpClient struct {
	apiKey    string
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates a SerpAPI client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// query builds the q parameter, appending a site restriction when set.
func (p Params) query() string {
	if p.Site == "" {
		return p.Query
	}
	return p.Query + " site:" + p.Site
}

func (c *httpClient) Search(ctx context.Context, params Params) (*Response, error) {
	num := params.Num
	if num <= 0 {
		num = defaultNum
	}
	lang := params.Language
	if lang == "" {
		lang = defaultLanguage
	}
	loc := params.Location
	if loc == "" {
		loc = defaultLocation
	}

	q := url.Values{}
	q.Set("engine", "google")
	q.Set("api_key", c.apiKey)
	q.Set("q", params.query())
	q.Set("num", strconv.Itoa(num))
	q.Set("hl", lang)
	q.Set("gl", loc)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: read response")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("serpapi: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var result Response
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "serpapi: unmarshal response")
	}
	if result.Error != "" {
		return nil, eris.Errorf("serpapi: %s", result.Error)
	}

	return &result, nil
}
