package crawler

import (
	"fmt"
	"time"
)

// DocumentKind tags the variant held by a Document.
type DocumentKind string

// Supported sitemap document variants.
const (
	KindIndex        DocumentKind = "index"
	KindURLSet       DocumentKind = "urlset"
	KindUnrecognized DocumentKind = "unrecognized"
)

// SitemapNode is a single <sitemap> or <url> entry. LastModified holds the raw
// lastmod text and is empty when the element was absent.
type SitemapNode struct {
	URL          string
	LastModified string
}

// Document is a parsed sitemap: an index of child sitemaps, a urlset of leaf
// entries, or an unrecognized body that contributes zero entries.
type Document struct {
	Kind  DocumentKind
	Nodes []SitemapNode
}

// Children returns the child sitemap references of an index document.
func (d Document) Children() []SitemapNode {
	if d.Kind != KindIndex {
		return nil
	}
	return d.Nodes
}

// Entries returns the leaf entries of a urlset document.
func (d Document) Entries() []SitemapNode {
	if d.Kind != KindURLSet {
		return nil
	}
	return d.Nodes
}

// YearMonth is a resolved (year, month) pair. Zero values mean unknown.
type YearMonth struct {
	Year  int
	Month int
}

// Known reports whether a year was resolved.
func (ym YearMonth) Known() bool {
	return ym.Year > 0
}

// String renders the pair as YYYY-MM, YYYY or "unknown".
func (ym YearMonth) String() string {
	switch {
	case !ym.Known():
		return "unknown"
	case ym.Month == 0:
		return fmt.Sprintf("%04d", ym.Year)
	default:
		return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
	}
}

// CrawlTarget is a sitemap URL queued for fetching. Hint carries the year/month
// derived from the sitemap's own filename or query, or inherited from its parent.
type CrawlTarget struct {
	URL   string
	Hint  YearMonth
	Depth int
}

// Category is the content category assigned to an in-scope URL.
type Category string

// Supported categories.
const (
	CategoryWomen Category = "women"
	CategoryMen   Category = "men"
)

// ParseCategory converts a textual category into a Category.
func ParseCategory(raw string) (Category, error) {
	switch Category(raw) {
	case CategoryWomen:
		return CategoryWomen, nil
	case CategoryMen:
		return CategoryMen, nil
	default:
		return "", fmt.Errorf("unknown category %q", raw)
	}
}

// ClassifiedRecord is an in-scope, in-window URL with its category. Month is 0
// when no month could be resolved.
type ClassifiedRecord struct {
	Year         int      `json:"year"`
	Month        int      `json:"month,omitempty"`
	LastModified string   `json:"lastmod"`
	URL          string   `json:"url"`
	Category     Category `json:"category"`
}

// Summary aggregates per-node outcomes of a run. Per-node failures surface
// only here.
type Summary struct {
	RunID                string    `json:"run_id"`
	Outlet               string    `json:"outlet"`
	RootSitemap          string    `json:"root_sitemap"`
	StartedAt            time.Time `json:"started_at"`
	FinishedAt           time.Time `json:"finished_at"`
	SitemapsAttempted    int       `json:"sitemaps_attempted"`
	SitemapsFailed       int       `json:"sitemaps_failed"`
	SitemapsUnrecognized int       `json:"sitemaps_unrecognized"`
	SitemapsPruned       int       `json:"sitemaps_pruned"`
	SitemapsFiltered     int       `json:"sitemaps_filtered"`
	SitemapsDuplicate    int       `json:"sitemaps_duplicate"`
	SitemapsSkipped      int       `json:"sitemaps_skipped"`
	Entries              int       `json:"entries"`
	InScope              int       `json:"in_scope"`
	YearFiltered         int       `json:"year_filtered"`
	Records              int       `json:"records"`
	Canceled             bool      `json:"canceled"`
}
