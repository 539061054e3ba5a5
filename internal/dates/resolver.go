package dates

import (
	"fmt"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
)

// Config lists the extractors an outlet uses for article URLs and for sitemap
// filenames, plus whether lastmod may prune child sitemaps.
type Config struct {
	URL            []ExtractorSpec `yaml:"url"`
	Sitemap        []ExtractorSpec `yaml:"sitemap"`
	PruneOnLastmod *bool           `yaml:"prune_on_lastmod"`
}

// Window is the inclusive year range of a run.
type Window struct {
	Start int
	End   int
}

// Contains reports whether year lies in the window.
func (w Window) Contains(year int) bool {
	return year >= w.Start && year <= w.End
}

// Validate rejects empty or inverted windows.
func (w Window) Validate() error {
	if w.Start <= 0 || w.End <= 0 {
		return fmt.Errorf("window years must be > 0")
	}
	if w.Start > w.End {
		return fmt.Errorf("window start %d after end %d", w.Start, w.End)
	}
	return nil
}

// Resolver assigns a YearMonth to sitemap entries. It is immutable.
type Resolver struct {
	url            []Extractor
	sitemap        []Extractor
	pruneOnLastmod bool
}

// NewResolver compiles cfg into a Resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	r := &Resolver{pruneOnLastmod: true}
	if cfg.PruneOnLastmod != nil {
		r.pruneOnLastmod = *cfg.PruneOnLastmod
	}
	for _, spec := range cfg.URL {
		ex, err := NewExtractor(spec)
		if err != nil {
			return nil, fmt.Errorf("url extractor: %w", err)
		}
		r.url = append(r.url, ex)
	}
	for _, spec := range cfg.Sitemap {
		ex, err := NewExtractor(spec)
		if err != nil {
			return nil, fmt.Errorf("sitemap extractor: %w", err)
		}
		r.sitemap = append(r.sitemap, ex)
	}
	return r, nil
}

// PruneOnLastmod reports whether child lastmod values may prune sitemaps.
func (r *Resolver) PruneOnLastmod() bool {
	return r.pruneOnLastmod
}

// Resolve returns the entry's year/month: lastmod first, then the URL
// extractors, then the hint of the sitemap the entry came from. The zero
// value means unresolved.
func (r *Resolver) Resolve(node crawler.SitemapNode, hint crawler.YearMonth) crawler.YearMonth {
	if ym, ok := FromLastmod(node.LastModified); ok {
		return ym
	}
	for _, ex := range r.url {
		if ym, ok := ex.Extract(node.URL); ok {
			return ym
		}
	}
	return hint
}

// Hint derives a year/month from a sitemap's own filename or query.
func (r *Resolver) Hint(sitemapURL string) crawler.YearMonth {
	for _, ex := range r.sitemap {
		if ym, ok := ex.Extract(sitemapURL); ok {
			return ym
		}
	}
	return crawler.YearMonth{}
}

// SitemapHint is the pruning hint for a child sitemap: its filename hint,
// then its lastmod when usingLastmod is set.
func (r *Resolver) SitemapHint(sitemapURL, lastmod string, usingLastmod bool) crawler.YearMonth {
	if ym := r.Hint(sitemapURL); ym.Known() {
		return ym
	}
	if usingLastmod {
		if ym, ok := FromLastmod(lastmod); ok {
			return ym
		}
	}
	return crawler.YearMonth{}
}
