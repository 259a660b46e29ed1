package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns skip links that never hold broker HTML.
var defaultExcludePatterns = []string{
	"*.pdf",
	"*.zip",
	"*.doc",
	"*.docx",
	"*.xls",
	"*.xlsx",
	"*.csv",
	"*.jpg",
	"*.jpeg",
	"*.png",
	"*.gif",
	"*.mp4",
}

// PathMatcher filters URLs by glob-style path patterns. "/dir/*" matches any
// depth under /dir and "*.ext" matches the extension anywhere in the path.
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher from glob patterns (e.g. "/login/*",
// "*.pdf"). Falls back to the non-HTML defaults if none are provided.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	return &PathMatcher{patterns: patterns}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded checks whether a URL matches any exclude pattern. Unparseable
// URLs are excluded.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	urlPath := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchSegmented(strings.ToLower(pattern), urlPath) {
			return true
		}
	}
	return false
}

func matchSegmented(pattern, urlPath string) bool {
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(urlPath, pattern[1:])
	}

	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}

	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	return false
}
