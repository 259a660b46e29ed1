package scrape

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/broker-verify/internal/resilience"
)

const (
	// BrowserUserAgent is sent with every page request.
	BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	defaultFetchTimeout = 15 * time.Second
	maxBodyBytes        = 1 << 20
)

// ErrBlocked is returned when a page is an anti-bot interstitial.
var ErrBlocked = eris.New("scrape: blocked")

// Page is a fetched HTML document decoded to UTF-8.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Fetcher downloads pages with browser-like headers.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a Fetcher with a per-request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: BrowserUserAgent,
	}
}

// Fetch downloads targetURL. 4xx pages are returned for extraction; 5xx
// responses and anti-bot pages are errors.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "scrape: read body")
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		statusErr := eris.Errorf("scrape: status %d", resp.StatusCode)
		if blocked, kind := DetectBlock(resp, raw); blocked {
			return nil, eris.Wrapf(ErrBlocked, "scrape: %s (status %d)", kind, resp.StatusCode)
		}
		return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
	}

	if blocked, kind := DetectBlock(resp, raw); blocked {
		return nil, eris.Wrapf(ErrBlocked, "scrape: %s", kind)
	}

	body, err := decodeCharset(raw, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	return &Page{URL: targetURL, StatusCode: resp.StatusCode, Body: body}, nil
}

// decodeCharset converts body to UTF-8 using the Content-Type charset.
func decodeCharset(body []byte, contentType string) ([]byte, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body, nil
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return body, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return body, nil
	}
	out, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: decode %s", charset)
	}
	return out, nil
}
