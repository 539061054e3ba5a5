package sitemap

import (
	"context"
	"fmt"

	"github.com/temoto/robotstxt"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
)

// RobotsSitemaps fetches robotsURL and returns its Sitemap: directives in
// file order.
func RobotsSitemaps(ctx context.Context, fetcher crawler.Fetcher, robotsURL string) ([]string, error) {
	body, err := fetcher.Fetch(ctx, robotsURL)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, &crawler.ParseError{URL: robotsURL, Err: err}
	}
	return data.Sitemaps, nil
}
