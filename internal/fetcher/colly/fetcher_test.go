package collyfetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
)

const urlset = `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"><url><loc>https://x/a</loc></url></urlset>`

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gz := gzipped(t, urlset)
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != "coverage-agent" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(urlset))
	})
	mux.HandleFunc("/archive/sitemap-2024.gz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(gz)
	})
	mux.HandleFunc("/slow.xml", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte(urlset))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second})

	body, err := f.Fetch(context.Background(), srv.URL+"/sitemap.xml")
	require.NoError(t, err)
	require.Equal(t, urlset, string(body))

	// revisiting the same URL is allowed
	_, err = f.Fetch(context.Background(), srv.URL+"/sitemap.xml")
	require.NoError(t, err)
}

func TestFetchDecompressesGzipPayload(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second})

	body, err := f.Fetch(context.Background(), srv.URL+"/archive/sitemap-2024.gz")
	require.NoError(t, err)
	require.Equal(t, urlset, string(body))
}

func TestFetchHTTPStatusError(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second})

	_, err := f.Fetch(context.Background(), srv.URL+"/missing.xml")
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, crawler.FetchHTTPStatus, fetchErr.Kind)
	require.Equal(t, http.StatusNotFound, fetchErr.StatusCode)

	other := New(Config{UserAgent: "someone-else", Timeout: time.Second})
	_, err = other.Fetch(context.Background(), srv.URL+"/sitemap.xml")
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{UserAgent: "coverage-agent", Timeout: 50 * time.Millisecond})

	_, err := f.Fetch(context.Background(), srv.URL+"/slow.xml")
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, crawler.FetchTimeout, fetchErr.Kind)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, srv.URL+"/slow.xml")
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), addr+"/sitemap.xml")
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, crawler.FetchNetwork, fetchErr.Kind)
}

type denyLimiter struct{}

func (denyLimiter) Wait(context.Context, string) error {
	return context.DeadlineExceeded
}

func TestFetchHonorsLimiter(t *testing.T) {
	t.Parallel()

	f := New(Config{Limiter: denyLimiter{}})
	_, err := f.Fetch(context.Background(), "https://unused.invalid/sitemap.xml")
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, crawler.FetchTimeout, fetchErr.Kind)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	var result outcome
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &result)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("body")})
	require.Equal(t, http.StatusOK, result.status)
	require.Equal(t, "body", string(result.body))

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("boom"))
	require.Equal(t, http.StatusBadGateway, result.status)
	require.EqualError(t, result.err, "boom")
}

func TestMaybeGunzip(t *testing.T) {
	t.Parallel()

	plain, err := maybeGunzip([]byte("plain"))
	require.NoError(t, err)
	require.Equal(t, "plain", string(plain))

	_, err = maybeGunzip([]byte{0x1f, 0x8b, 0x00})
	require.Error(t, err)
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
