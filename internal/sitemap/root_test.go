package sitemap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/dates"
)

type stubFetcher struct {
	bodies map[string]string
	calls  []string
}

func (s *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	s.calls = append(s.calls, url)
	body, ok := s.bodies[url]
	if !ok {
		return nil, &crawler.FetchError{URL: url, Kind: crawler.FetchHTTPStatus, StatusCode: 404}
	}
	return []byte(body), nil
}

const spiegelRobots = `User-agent: *
Disallow: /intern/
Sitemap: https://www.spiegel.de/sitemaps/videos/sitemap.xml
Sitemap: https://www.spiegel.de/sitemaps/news-de.xml
Sitemap: https://www.spiegel.de/sitemap.xml
`

func spiegelRules() []PreferenceRule {
	return []PreferenceRule{
		{Match: MatchSuffix, Value: "www.spiegel.de/sitemap.xml"},
		{Match: MatchSuffix, Value: "/sitemap.xml", Exclude: []string{"/sitemaps/videos/"}},
		{Match: MatchContains, Value: "news-de.xml"},
		{Match: MatchFirst},
	}
}

func TestRobotsSitemaps(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{bodies: map[string]string{"https://www.spiegel.de/robots.txt": spiegelRobots}}
	got, err := RobotsSitemaps(context.Background(), fetcher, "https://www.spiegel.de/robots.txt")
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://www.spiegel.de/sitemaps/videos/sitemap.xml",
		"https://www.spiegel.de/sitemaps/news-de.xml",
		"https://www.spiegel.de/sitemap.xml",
	}, got)
}

func TestChooseRootPreferenceOrder(t *testing.T) {
	t.Parallel()

	candidates := []string{
		"https://www.spiegel.de/sitemaps/videos/sitemap.xml",
		"https://www.spiegel.de/sitemaps/news-de.xml",
		"https://www.spiegel.de/sitemap.xml",
	}
	root, ok := ChooseRoot(candidates, spiegelRules())
	require.True(t, ok)
	require.Equal(t, "https://www.spiegel.de/sitemap.xml", root)

	root, ok = ChooseRoot(candidates[:2], spiegelRules())
	require.True(t, ok)
	require.Equal(t, "https://www.spiegel.de/sitemaps/news-de.xml", root, "video sitemap is excluded")

	root, ok = ChooseRoot(candidates[:1], spiegelRules())
	require.True(t, ok)
	require.Equal(t, candidates[0], root, "first is the fallback when listed")

	_, ok = ChooseRoot(candidates[:1], spiegelRules()[:3])
	require.False(t, ok, "no fallback unless listed")

	root, ok = ChooseRoot([]string{"https://a/x.xml/"}, []PreferenceRule{{Match: MatchExact, Value: "https://a/x.xml"}})
	require.True(t, ok)
	require.Equal(t, "https://a/x.xml/", root)

	_, ok = ChooseRoot(nil, nil)
	require.False(t, ok)
}

func TestRootResolverModes(t *testing.T) {
	t.Parallel()

	window := dates.Window{Start: 2023, End: 2024}
	fetcher := &stubFetcher{bodies: map[string]string{"https://www.spiegel.de/robots.txt": spiegelRobots}}
	resolver := NewRootResolver(fetcher, nil)
	ctx := context.Background()

	targets, err := resolver.Resolve(ctx, RootConfig{Mode: RootDirect, URL: "https://www.watson.ch/sitemap.xml"}, window)
	require.NoError(t, err)
	require.Equal(t, []crawler.CrawlTarget{{URL: "https://www.watson.ch/sitemap.xml"}}, targets)

	targets, err = resolver.Resolve(ctx, RootConfig{
		Mode:      RootRobots,
		RobotsURL: "https://www.spiegel.de/robots.txt",
		Prefer:    spiegelRules(),
	}, window)
	require.NoError(t, err)
	require.Equal(t, "https://www.spiegel.de/sitemap.xml", targets[0].URL)

	targets, err = resolver.Resolve(ctx, RootConfig{
		Mode:     RootTemplate,
		Template: "https://www.srf.ch/sitemaps/aron/articles/{year}_{month}.xml",
	}, window)
	require.NoError(t, err)
	require.Len(t, targets, 24)
	require.Equal(t, "https://www.srf.ch/sitemaps/aron/articles/2023_01.xml", targets[0].URL)
	require.Equal(t, crawler.YearMonth{Year: 2024, Month: 12}, targets[23].Hint)
}

func TestRootResolverFailuresAreConfigErrors(t *testing.T) {
	t.Parallel()

	window := dates.Window{Start: 2023, End: 2024}
	resolver := NewRootResolver(&stubFetcher{bodies: map[string]string{
		"https://empty.example/robots.txt": "User-agent: *\nDisallow:\n",
	}}, nil)
	ctx := context.Background()

	cases := []RootConfig{
		{Mode: RootRobots, RobotsURL: "https://missing.example/robots.txt"},
		{Mode: RootRobots, RobotsURL: "https://empty.example/robots.txt"},
	}
	for _, cfg := range cases {
		_, err := resolver.Resolve(ctx, cfg, window)
		var cfgErr *crawler.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		require.True(t, errors.Is(err, crawler.ErrNoRootSitemap))
	}

	_, err := resolver.Resolve(ctx, RootConfig{Mode: RootDirect}, window)
	var cfgErr *crawler.ConfigError
	require.ErrorAs(t, err, &cfgErr)

	_, err = resolver.Resolve(ctx, RootConfig{Mode: "ftp"}, window)
	require.ErrorAs(t, err, &cfgErr)
}

func TestExpandTemplateYearly(t *testing.T) {
	t.Parallel()

	targets := ExpandTemplate("https://x/{year}.xml", dates.Window{Start: 2020, End: 2021})
	require.Equal(t, []crawler.CrawlTarget{
		{URL: "https://x/2020.xml", Hint: crawler.YearMonth{Year: 2020}},
		{URL: "https://x/2021.xml", Hint: crawler.YearMonth{Year: 2021}},
	}, targets)
	require.Nil(t, ExpandTemplate("https://x/{year}.xml", dates.Window{Start: 2022, End: 2021}))
}
