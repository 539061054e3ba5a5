package sitemap

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/dates"
)

// RootMode selects how the root sitemap of an outlet is located.
type RootMode string

// Supported root modes.
const (
	RootDirect   RootMode = "direct"
	RootRobots   RootMode = "robots"
	RootTemplate RootMode = "template"
)

// Preference rule match kinds.
const (
	MatchExact    = "exact"
	MatchSuffix   = "suffix"
	MatchContains = "contains"
	MatchFirst    = "first"
)

// PreferenceRule picks a root among robots.txt Sitemap: directives.
type PreferenceRule struct {
	Match   string   `yaml:"match"`
	Value   string   `yaml:"value,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// RootConfig describes where an outlet's sitemap tree starts.
type RootConfig struct {
	Mode      RootMode         `yaml:"mode"`
	URL       string           `yaml:"url,omitempty"`
	RobotsURL string           `yaml:"robots_url,omitempty"`
	Prefer    []PreferenceRule `yaml:"prefer,omitempty"`
	Template  string           `yaml:"template,omitempty"`
}

// Validate checks that the fields required by the mode are present.
func (c RootConfig) Validate() error {
	switch c.Mode {
	case RootDirect:
		if c.URL == "" {
			return errors.New("root.url is required for direct mode")
		}
	case RootRobots:
		if c.RobotsURL == "" {
			return errors.New("root.robots_url is required for robots mode")
		}
		for i, rule := range c.Prefer {
			switch rule.Match {
			case MatchExact, MatchSuffix, MatchContains:
				if rule.Value == "" {
					return fmt.Errorf("root.prefer[%d] requires a value", i)
				}
			case MatchFirst:
			default:
				return fmt.Errorf("root.prefer[%d]: unknown match %q", i, rule.Match)
			}
		}
	case RootTemplate:
		if !strings.Contains(c.Template, "{year}") {
			return errors.New("root.template must contain {year}")
		}
	default:
		return fmt.Errorf("unknown root mode %q", c.Mode)
	}
	return nil
}

// Describe renders the configured root for logs and summaries.
func (c RootConfig) Describe() string {
	switch c.Mode {
	case RootRobots:
		return c.RobotsURL
	case RootTemplate:
		return c.Template
	default:
		return c.URL
	}
}

// RootResolver turns a RootConfig into the initial crawl targets.
type RootResolver struct {
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// NewRootResolver wires a resolver to the fetcher used for robots.txt.
func NewRootResolver(fetcher crawler.Fetcher, logger *zap.Logger) *RootResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RootResolver{fetcher: fetcher, logger: logger}
}

// Resolve returns the root targets. Any failure to locate a root is reported
// as a *crawler.ConfigError wrapping crawler.ErrNoRootSitemap.
func (r *RootResolver) Resolve(ctx context.Context, cfg RootConfig, window dates.Window) ([]crawler.CrawlTarget, error) {
	if err := cfg.Validate(); err != nil {
		return nil, crawler.NewConfigError("root", err)
	}
	switch cfg.Mode {
	case RootDirect:
		return []crawler.CrawlTarget{{URL: strings.TrimSpace(cfg.URL)}}, nil
	case RootTemplate:
		targets := ExpandTemplate(cfg.Template, window)
		if len(targets) == 0 {
			return nil, crawler.NewConfigError("root", crawler.ErrNoRootSitemap)
		}
		return targets, nil
	default:
		candidates, err := RobotsSitemaps(ctx, r.fetcher, cfg.RobotsURL)
		if err != nil {
			return nil, crawler.NewConfigError("root", fmt.Errorf("%w: %w", crawler.ErrNoRootSitemap, err))
		}
		r.logger.Debug("robots sitemaps",
			zap.String("robots_url", cfg.RobotsURL),
			zap.Strings("candidates", candidates),
		)
		root, ok := ChooseRoot(candidates, cfg.Prefer)
		if !ok {
			return nil, crawler.NewConfigError("root", crawler.ErrNoRootSitemap)
		}
		return []crawler.CrawlTarget{{URL: root}}, nil
	}
}

// ChooseRoot applies rules in order, returning the first candidate matched by
// the earliest rule. Without rules the first candidate wins.
func ChooseRoot(candidates []string, rules []PreferenceRule) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	if len(rules) == 0 {
		return strings.TrimSpace(candidates[0]), true
	}
	for _, rule := range rules {
		for _, candidate := range candidates {
			candidate = strings.TrimSpace(candidate)
			if candidate != "" && rule.matches(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func (p PreferenceRule) matches(candidate string) bool {
	for _, ex := range p.Exclude {
		if ex != "" && strings.Contains(candidate, ex) {
			return false
		}
	}
	trimmed := strings.TrimRight(candidate, "/")
	switch p.Match {
	case MatchExact:
		return trimmed == strings.TrimRight(p.Value, "/")
	case MatchSuffix:
		return strings.HasSuffix(trimmed, p.Value)
	case MatchContains:
		return strings.Contains(candidate, p.Value)
	case MatchFirst:
		return true
	default:
		return false
	}
}

// ExpandTemplate renders a monthly sitemap template for every month of the
// window. {year} is replaced by the year and {month} by the zero-padded month;
// a template without {month} yields one target per year.
func ExpandTemplate(tmpl string, window dates.Window) []crawler.CrawlTarget {
	if window.Validate() != nil {
		return nil
	}
	monthly := strings.Contains(tmpl, "{month}")
	var targets []crawler.CrawlTarget
	for year := window.Start; year <= window.End; year++ {
		if !monthly {
			url := strings.ReplaceAll(tmpl, "{year}", strconv.Itoa(year))
			targets = append(targets, crawler.CrawlTarget{URL: url, Hint: crawler.YearMonth{Year: year}})
			continue
		}
		for month := 1; month <= 12; month++ {
			url := strings.NewReplacer(
				"{year}", strconv.Itoa(year),
				"{month}", fmt.Sprintf("%02d", month),
			).Replace(tmpl)
			targets = append(targets, crawler.CrawlTarget{
				URL:  url,
				Hint: crawler.YearMonth{Year: year, Month: month},
			})
		}
	}
	return targets
}
