package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, sitemapFetchesTotal)
	require.NotNil(t, sitemapNodesTotal)
	require.NotNil(t, crawlerRecordsTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserveHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(sitemapFetchesTotal.WithLabelValues("metrics-test.example", "ok"))
	ObserveFetch("https://metrics-test.example/sitemap.xml", "ok", 128, 20*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(sitemapFetchesTotal.WithLabelValues("metrics-test.example", "ok")))
	require.Equal(t, 128.0, testutil.ToFloat64(sitemapBytesTotal.WithLabelValues("metrics-test.example")))

	ObserveNode("metrics-test", "pruned")
	ObserveNode("metrics-test", "pruned")
	require.Equal(t, 2.0, testutil.ToFloat64(sitemapNodesTotal.WithLabelValues("metrics-test", "pruned")))

	ObserveRecord("metrics-test", "women")
	require.Equal(t, 1.0, testutil.ToFloat64(crawlerRecordsTotal.WithLabelValues("metrics-test", "women")))

	ObserveRun("metrics-test", "succeeded")
	require.Equal(t, 1.0, testutil.ToFloat64(crawlerRunsTotal.WithLabelValues("metrics-test", "succeeded")))
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
