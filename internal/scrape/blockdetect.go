package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot response detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
	BlockDenied     BlockType = "access_denied"
)

// interstitialMaxBytes bounds the size of a page treated as a challenge
// interstitial. Full review pages often embed captcha widgets in comment forms.
const interstitialMaxBytes = 16 * 1024

// DetectBlock checks an HTTP response for signs of anti-bot protection.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" {
			return true, BlockCloudflare
		}
		if strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return true, BlockCloudflare
	}

	interstitial := len(body) < interstitialMaxBytes || resp.StatusCode >= http.StatusBadRequest
	if interstitial && (strings.Contains(lower, "captcha") || strings.Contains(lower, "are you a robot")) {
		return true, BlockCaptcha
	}

	if resp.StatusCode == http.StatusForbidden && strings.Contains(lower, "access denied") {
		return true, BlockDenied
	}

	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, "meta http-equiv=\"refresh\"") {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
