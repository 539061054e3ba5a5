package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/aggregate"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/classifier"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/clock/system"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/dates"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/profile"
)

const base = "https://news.example"

type countingFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	calls   map[string]int
	onFetch func(url string)
}

func newCountingFetcher(bodies map[string]string) *countingFetcher {
	return &countingFetcher{bodies: bodies, calls: make(map[string]int)}
}

func (f *countingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	body, ok := f.bodies[url]
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	if !ok {
		return nil, &crawler.FetchError{URL: url, Kind: crawler.FetchHTTPStatus, StatusCode: 404}
	}
	return []byte(body), nil
}

func (f *countingFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *countingFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func index(children ...string) string {
	body := `<?xml version="1.0" encoding="UTF-8"?><sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	for _, c := range children {
		body += "<sitemap><loc>" + c + "</loc></sitemap>"
	}
	return body + "</sitemapindex>"
}

func urlset(urls ...string) string {
	body := `<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	for _, u := range urls {
		body += "<url><loc>" + u + "</loc></url>"
	}
	return body + "</urlset>"
}

func testProfile() profile.Profile {
	return profile.Profile{
		ID:                    "test",
		Scope:                 profile.ScopeLexical,
		DefaultCategory:       profile.DefaultMen,
		Women:                 []string{"frauen", "frauen-bundesliga"},
		Men:                   []string{"bundesliga"},
		ExcludeDisambiguation: []string{"spielerfrau"},
		Sport:                 []string{"fussball"},
		ExcludedOtherSports:   []string{"handball"},
	}
}

func testResolver(t *testing.T) *dates.Resolver {
	t.Helper()
	r, err := dates.NewResolver(dates.Config{
		Sitemap: []dates.ExtractorSpec{{
			Kind:    dates.KindRegexp,
			Pattern: `/(?P<year>\d{4})-(?P<month>\d{2})\.xml`,
		}},
	})
	require.NoError(t, err)
	return r
}

func newScheduler(t *testing.T, cfg Config, fetcher crawler.Fetcher, sink crawler.RecordSink) *Scheduler {
	t.Helper()
	if cfg.Outlet == "" {
		cfg.Outlet = "test"
	}
	if cfg.Window == (dates.Window{}) {
		cfg.Window = dates.Window{Start: 2020, End: 2025}
	}
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	s, err := New(cfg, fetcher, classifier.New(testProfile()), testResolver(t), sink,
		WithClock(system.Fixed{At: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}),
		WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)
	return s
}

func root() []crawler.CrawlTarget {
	return []crawler.CrawlTarget{{URL: base + "/sitemap.xml"}}
}

func TestRunScenarioPrunesOutOfWindowChild(t *testing.T) {
	t.Parallel()

	fetcher := newCountingFetcher(map[string]string{
		base + "/sitemap.xml": index(base+"/2024-01.xml", base+"/1990-01.xml"),
		base + "/2024-01.xml": urlset(base + "/sport/fussball/bundesliga-dortmund-gewinnt"),
		base + "/1990-01.xml": urlset(base + "/sport/fussball/bundesliga-1990"),
	})
	agg := aggregate.New()
	s := newScheduler(t, Config{}, fetcher, agg)

	summary, err := s.Run(context.Background(), root())
	require.NoError(t, err)

	require.Zero(t, fetcher.count(base+"/1990-01.xml"))
	require.Equal(t, 1, fetcher.count(base+"/2024-01.xml"))
	require.Equal(t, aggregate.Counts{Women: 0, Men: 1, Total: 1}, agg.Counts(2024))
	require.Equal(t, []aggregate.YearSummary{{Year: 2024, Men: 1, Total: 1, WomenShare: 0}}, agg.Summaries())

	require.Equal(t, 2, summary.SitemapsAttempted)
	require.Equal(t, 1, summary.SitemapsPruned)
	require.Equal(t, 1, summary.Entries)
	require.Equal(t, 1, summary.InScope)
	require.Equal(t, 1, summary.Records)
	require.Equal(t, "test", summary.Outlet)
	require.Equal(t, base+"/sitemap.xml", summary.RootSitemap)
	require.False(t, summary.Canceled)
	require.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), summary.StartedAt)
}

func TestRunRecordsCarryResolvedDates(t *testing.T) {
	t.Parallel()

	fetcher := newCountingFetcher(map[string]string{
		base + "/sitemap.xml": index(base + "/2024-03.xml"),
		base + "/2024-03.xml": `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>` + base + `/sport/fussball/frauen-bundesliga-wolfsburg</loc><lastmod>2023-11-30T10:00:00Z</lastmod></url>
<url><loc>` + base + `/sport/fussball/frauen-bundesliga-und-handball</loc></url>
<url><loc>` + base + `/politik/wahl</loc></url>
<url><loc>` + base + `/sport/fussball/bundesliga-alt</loc><lastmod>2001-01-01</lastmod></url>
</urlset>`,
	})
	var records []crawler.ClassifiedRecord
	sink := crawler.RecordSinkFunc(func(_ context.Context, r crawler.ClassifiedRecord) error {
		records = append(records, r)
		return nil
	})
	s := newScheduler(t, Config{}, fetcher, sink)

	summary, err := s.Run(context.Background(), root())
	require.NoError(t, err)
	require.Equal(t, []crawler.ClassifiedRecord{{
		Year:         2023,
		Month:        11,
		LastModified: "2023-11-30T10:00:00Z",
		URL:          base + "/sport/fussball/frauen-bundesliga-wolfsburg",
		Category:     crawler.CategoryWomen,
	}}, records)
	require.Equal(t, 4, summary.Entries)
	require.Equal(t, 2, summary.InScope)
	require.Equal(t, 1, summary.YearFiltered)
	require.Equal(t, 1, summary.Records)
}

func TestRunContinuesPastMalformedAndFailedSiblings(t *testing.T) {
	t.Parallel()

	fetcher := newCountingFetcher(map[string]string{
		base + "/sitemap.xml": index(base+"/2024-01.xml", base+"/2024-02.xml", base+"/2024-03.xml"),
		base + "/2024-01.xml": `<urlset><url><loc>x</loc></urlx></urlset>`,
		base + "/2024-03.xml": urlset(base + "/sport/fussball/bundesliga-spieltag"),
	})
	agg := aggregate.New()
	s := newScheduler(t, Config{}, fetcher, agg)

	summary, err := s.Run(context.Background(), root())
	require.NoError(t, err)
	require.Equal(t, 4, summary.SitemapsAttempted)
	require.Equal(t, 1, summary.SitemapsUnrecognized)
	require.Equal(t, 1, summary.SitemapsFailed)
	require.Equal(t, 1, summary.Records)
	require.Equal(t, 1, agg.Counts(2024).Men)
}

func TestRunFetchesEachSitemapOnce(t *testing.T) {
	t.Parallel()

	fetcher := newCountingFetcher(map[string]string{
		base + "/sitemap.xml":   index(base+"/a/2024-01.xml", base+"/a/2024-01.xml", base+"/b.xml"),
		base + "/b.xml":         index(base+"/sitemap.xml", "https://NEWS.example/a/2024-01.xml"),
		base + "/a/2024-01.xml": urlset(base + "/sport/fussball/bundesliga-a"),
	})
	s := newScheduler(t, Config{}, fetcher, aggregate.New())

	summary, err := s.Run(context.Background(), root())
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.count(base+"/a/2024-01.xml"))
	require.Equal(t, 1, fetcher.count(base+"/sitemap.xml"))
	require.Equal(t, 3, fetcher.total())
	require.Equal(t, 3, summary.SitemapsDuplicate)
	require.Equal(t, 1, summary.Records)
}

func TestRunAppliesChildFilter(t *testing.T) {
	t.Parallel()

	fetcher := newCountingFetcher(map[string]string{
		base + "/sitemap.xml":                  index(base+"/sitemaps/article/2024-01.xml", base+"/sitemaps/videos/2024-01.xml"),
		base + "/sitemaps/article/2024-01.xml": urlset(base + "/sport/fussball/bundesliga-a"),
	})
	s := newScheduler(t, Config{ChildMustContain: "/sitemaps/article/"}, fetcher, aggregate.New())

	summary, err := s.Run(context.Background(), root())
	require.NoError(t, err)
	require.Equal(t, 1, summary.SitemapsFiltered)
	require.Zero(t, fetcher.count(base+"/sitemaps/videos/2024-01.xml"))
	require.Equal(t, 1, summary.Records)
}

func TestRunPrunesOnChildLastmod(t *testing.T) {
	t.Parallel()

	fetcher := newCountingFetcher(map[string]string{
		base + "/sitemap.xml": `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<sitemap><loc>` + base + `/old.xml</loc><lastmod>2009-05-01</lastmod></sitemap>
<sitemap><loc>` + base + `/new.xml</loc><lastmod>2024-05-01</lastmod></sitemap>
</sitemapindex>`,
		base + "/new.xml": urlset(),
	})
	s := newScheduler(t, Config{}, fetcher, aggregate.New())

	summary, err := s.Run(context.Background(), root())
	require.NoError(t, err)
	require.Equal(t, 1, summary.SitemapsPruned)
	require.Zero(t, fetcher.count(base+"/old.xml"))
	require.Equal(t, 1, fetcher.count(base+"/new.xml"))
}

func TestRunHonorsMaxSitemaps(t *testing.T) {
	t.Parallel()

	fetcher := newCountingFetcher(map[string]string{
		base + "/sitemap.xml": index(base+"/2024-01.xml", base+"/2024-02.xml", base+"/2024-03.xml"),
		base + "/2024-01.xml": urlset(),
		base + "/2024-02.xml": urlset(),
		base + "/2024-03.xml": urlset(),
	})
	s := newScheduler(t, Config{Workers: 1, MaxSitemaps: 2}, fetcher, aggregate.New())

	summary, err := s.Run(context.Background(), root())
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.total())
	require.Equal(t, 2, summary.SitemapsAttempted)
	require.Equal(t, 2, summary.SitemapsSkipped)
	require.False(t, summary.Canceled)
}

func TestRunStopsDispatchingOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := newCountingFetcher(map[string]string{
		base + "/sitemap.xml": index(base+"/2024-01.xml", base+"/2024-02.xml"),
		base + "/2024-01.xml": urlset(base + "/sport/fussball/bundesliga-a"),
		base + "/2024-02.xml": urlset(base + "/sport/fussball/bundesliga-b"),
	})
	fetcher.onFetch = func(url string) {
		if url == base+"/sitemap.xml" {
			cancel()
		}
	}
	s := newScheduler(t, Config{}, fetcher, aggregate.New())

	summary, err := s.Run(ctx, root())
	require.NoError(t, err)
	require.True(t, summary.Canceled)
	require.Equal(t, 1, fetcher.total())
	require.Equal(t, 1, summary.SitemapsAttempted)
	require.Equal(t, 2, summary.SitemapsSkipped)
	require.Zero(t, summary.Records)
}

func TestRunReturnsSinkErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	fetcher := newCountingFetcher(map[string]string{
		base + "/sitemap.xml": index(base + "/2024-01.xml"),
		base + "/2024-01.xml": urlset(base+"/sport/fussball/bundesliga-a", base+"/sport/fussball/bundesliga-b"),
	})
	calls := 0
	sink := crawler.RecordSinkFunc(func(context.Context, crawler.ClassifiedRecord) error {
		calls++
		return boom
	})
	s := newScheduler(t, Config{}, fetcher, sink)

	summary, err := s.Run(context.Background(), root())
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
	require.Zero(t, summary.Records)
}

func TestRunWithoutRootsIsConfigError(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, Config{}, newCountingFetcher(nil), aggregate.New())
	_, err := s.Run(context.Background(), nil)

	var cfgErr *crawler.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.ErrorIs(t, err, crawler.ErrNoRootSitemap)
}

func TestRunTemplateRootsUseOwnHints(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{}
	var roots []crawler.CrawlTarget
	for month := 1; month <= 3; month++ {
		u := fmt.Sprintf("%s/articles/%d_%02d.xml", base, 2024, month)
		bodies[u] = urlset(fmt.Sprintf("%s/sport/fussball/bundesliga-%d", base, month))
		roots = append(roots, crawler.CrawlTarget{URL: u, Hint: crawler.YearMonth{Year: 2024, Month: month}})
	}
	agg := aggregate.New()
	s := newScheduler(t, Config{Workers: 1, QueueDepth: 2}, newCountingFetcher(bodies), agg)

	summary, err := s.Run(context.Background(), roots)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Records)
	require.Equal(t, aggregate.Counts{Men: 3, Total: 3}, agg.Counts(2024))
}

func TestRunUnloadableRootIsConfigError(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		bodies map[string]string
		cause  any
	}{
		"missing":      {bodies: nil, cause: new(*crawler.FetchError)},
		"not_xml":      {bodies: map[string]string{root()[0].URL: "<html>maintenance</html>"}, cause: new(*crawler.ParseError)},
		"wrong_format": {bodies: map[string]string{root()[0].URL: "<rss><channel/></rss>"}, cause: new(*crawler.ParseError)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			agg := aggregate.New()
			s := newScheduler(t, Config{}, newCountingFetcher(tc.bodies), agg)
			summary, err := s.Run(context.Background(), []crawler.CrawlTarget{{URL: root()[0].URL}})

			var cfgErr *crawler.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, "root", cfgErr.Field)
			require.ErrorIs(t, err, crawler.ErrNoRootSitemap)
			require.ErrorAs(t, err, tc.cause)
			require.Equal(t, 1, summary.SitemapsAttempted)
			require.Zero(t, summary.Records)
			require.Empty(t, agg.Summaries())
		})
	}
}

func TestRunTemplateRootsTolerateMissingMonths(t *testing.T) {
	t.Parallel()

	good := fmt.Sprintf("%s/articles/%d_%02d.xml", base, 2024, 2)
	bodies := map[string]string{good: urlset(base + "/sport/fussball/bundesliga-a")}
	roots := []crawler.CrawlTarget{
		{URL: fmt.Sprintf("%s/articles/%d_%02d.xml", base, 2024, 1), Hint: crawler.YearMonth{Year: 2024, Month: 1}},
		{URL: good, Hint: crawler.YearMonth{Year: 2024, Month: 2}},
	}
	s := newScheduler(t, Config{Workers: 1}, newCountingFetcher(bodies), aggregate.New())

	summary, err := s.Run(context.Background(), roots)
	require.NoError(t, err)
	require.Equal(t, 1, summary.SitemapsFailed)
	require.Equal(t, 1, summary.Records)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := Config{Window: dates.Window{Start: 2020, End: 2021}, Workers: 1}
	require.NoError(t, valid.Validate())

	cases := map[string]Config{
		"window":       {Window: dates.Window{Start: 2022, End: 2021}, Workers: 1},
		"workers":      {Window: valid.Window},
		"queue_depth":  {Window: valid.Window, Workers: 1, QueueDepth: -1},
		"max_sitemaps": {Window: valid.Window, Workers: 1, MaxSitemaps: -1},
		"delay":        {Window: valid.Window, Workers: 1, Delay: -time.Second},
	}
	for field, cfg := range cases {
		err := cfg.Validate()
		var cfgErr *crawler.ConfigError
		require.ErrorAs(t, err, &cfgErr, field)
		require.Equal(t, field, cfgErr.Field)
	}
}
