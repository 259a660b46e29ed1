package scrape

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	robotsTimeout = 5 * time.Second
	robotsMaxBody = 512 * 1024
	// AgentToken identifies this crawler in robots.txt groups.
	AgentToken = "broker-analysis"
)

// parseRobots returns the Disallow paths that apply to "*" or to agents whose
// name contains token.
func parseRobots(r io.Reader, token string) []string {
	var (
		disallow []string
		agent    string
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.ToLower(strings.TrimSpace(sc.Text()))
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "user-agent":
			agent = value
		case "disallow":
			if value != "" && (agent == "*" || strings.Contains(agent, token)) {
				disallow = append(disallow, value)
			}
		}
	}
	return disallow
}

func pathAllowed(disallow []string, u *url.URL) bool {
	p := strings.ToLower(u.EscapedPath())
	if p == "" {
		p = "/"
	}
	for _, d := range disallow {
		if d == "/" || strings.HasPrefix(p, d) {
			return false
		}
	}
	return true
}

// CheckRobotsPermission reports whether robots.txt on the target host allows
// fetching rawURL. Any failure to read robots.txt counts as permission.
func (s *Scraper) CheckRobotsPermission(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	host := strings.ToLower(u.Host)
	s.robotsMu.Lock()
	rules, cached := s.robots[host]
	s.robotsMu.Unlock()

	if !cached {
		rules = s.fetchRobots(ctx, u)
		s.robotsMu.Lock()
		s.robots[host] = rules
		s.robotsMu.Unlock()
	}
	return pathAllowed(rules, u)
}

func (s *Scraper) fetchRobots(ctx context.Context, u *url.URL) []string {
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	robotsURL := scheme + "://" + u.Host + "/robots.txt"

	ctx, cancel := context.WithTimeout(ctx, robotsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", s.fetcher.userAgent)

	resp, err := s.fetcher.client.Do(req)
	if err != nil {
		zap.L().Debug("scrape: robots.txt unavailable", zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil
	}
	return parseRobots(io.LimitReader(resp.Body, robotsMaxBody), AgentToken)
}
