package scrape

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock(t *testing.T) {
	bigReview := "<html><body>" + strings.Repeat("Pepperstone offers tight spreads. ", 1000) +
		"<div class=\"g-recaptcha\"></div></body></html>"

	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   BlockType
	}{
		{"cloudflare ray header", 403, http.Header{"Cf-Ray": {"abc123"}}, "", BlockCloudflare},
		{"cloudflare server", 503, http.Header{"Server": {"Cloudflare"}}, "", BlockCloudflare},
		{"challenge page", 200, http.Header{}, "<title>Just a moment</title>Checking your browser before accessing", BlockCloudflare},
		{"captcha interstitial", 200, http.Header{}, "<html><body>Please complete the reCAPTCHA to continue</body></html>", BlockCaptcha},
		{"captcha widget on full page", 200, http.Header{}, bigReview, BlockNone},
		{"access denied", 403, http.Header{}, "<h1>Access Denied</h1>", BlockDenied},
		{"js shell", 200, http.Header{}, "<html><noscript>Enable JavaScript to continue</noscript></html>", BlockJSShell},
		{"meta refresh", 200, http.Header{}, `<meta http-equiv="refresh" content="0;url=/x">`, BlockJSShell},
		{"clean page", 200, http.Header{}, "<html><body>IC Markets review: raw spreads from 0.0 pips.</body></html>", BlockNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: tt.header}
			blocked, bt := DetectBlock(resp, []byte(tt.body))
			assert.Equal(t, tt.want != BlockNone, blocked)
			assert.Equal(t, tt.want, bt)
		})
	}
}

func TestDetectBlock_NilResponse(t *testing.T) {
	blocked, bt := DetectBlock(nil, nil)
	assert.False(t, blocked)
	assert.Equal(t, BlockNone, bt)
}
