package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/broker-verify/internal/resilience"
)

func TestFetch_SendsBrowserHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, BrowserUserAgent, r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Accept"), "text/html")
		assert.Equal(t, "en-US,en;q=0.5", r.Header.Get("Accept-Language"))
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	page, err := NewFetcher(time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, string(page.Body), "ok")
}

func TestFetch_ClientErrorStillReturnsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<html><body>Not here</body></html>"))
	}))
	defer srv.Close()

	page, err := NewFetcher(time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, page.StatusCode)
}

func TestFetch_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewFetcher(time.Second).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestFetch_Blocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cf-Ray", "123")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewFetcher(time.Second).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlocked))
}

func TestFetch_DecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		_, _ = w.Write([]byte("<html><body>Caf\xe9 broker</body></html>"))
	}))
	defer srv.Close()

	page, err := NewFetcher(time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, string(page.Body), "Café broker")
}

func TestFetch_CapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 2*maxBodyBytes)))
	}))
	defer srv.Close()

	page, err := NewFetcher(time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, page.Body, maxBodyBytes)
}

func TestDecodeCharset_Passthrough(t *testing.T) {
	body := []byte("plain")
	out, err := decodeCharset(body, "")
	require.NoError(t, err)
	assert.Equal(t, body, out)

	out, err = decodeCharset(body, "text/html; charset=x-unknown-thing")
	require.NoError(t, err)
	assert.Equal(t, body, out)
}
