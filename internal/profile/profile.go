// Package profile loads the per-outlet rule profiles and the shared player
// lists from YAML data. Profiles are immutable once loaded.
package profile

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/dates"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/sitemap"
)

// ScopeMode selects how relevance is established.
type ScopeMode string

// Supported scope modes.
const (
	// ScopeLexical requires a rule to fire for a URL to be in scope.
	ScopeLexical ScopeMode = "lexical"
	// ScopePath treats every URL under RequiredPath as in scope.
	ScopePath ScopeMode = "path"
)

// DefaultPolicy decides what happens to in-scope URLs no rule categorized.
type DefaultPolicy string

// Supported default policies.
const (
	DefaultMen   DefaultPolicy = "men"
	DefaultWomen DefaultPolicy = "women"
	DefaultDrop  DefaultPolicy = "drop"
)

// ParseDefaultPolicy validates a textual policy.
func ParseDefaultPolicy(raw string) (DefaultPolicy, error) {
	switch p := DefaultPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case DefaultMen, DefaultWomen, DefaultDrop:
		return p, nil
	default:
		return "", fmt.Errorf("unknown default category policy %q", raw)
	}
}

// EffectivePolicy returns the first non-empty override, parsed, or the
// profile's own policy when every override is empty.
func (p Profile) EffectivePolicy(overrides ...string) (DefaultPolicy, error) {
	for _, raw := range overrides {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		return ParseDefaultPolicy(raw)
	}
	return p.DefaultCategory, nil
}

// Category returns the category assigned by the policy, false for drop.
func (p DefaultPolicy) Category() (crawler.Category, bool) {
	switch p {
	case DefaultMen:
		return crawler.CategoryMen, true
	case DefaultWomen:
		return crawler.CategoryWomen, true
	default:
		return "", false
	}
}

// Profile is the immutable rule configuration of one outlet. Term lists hold
// terms as they appear in URLs ("frauen-bundesliga"); the classifier
// normalizes them through the outlet tokenizer.
type Profile struct {
	ID                    string             `yaml:"id"`
	Name                  string             `yaml:"name"`
	Root                  sitemap.RootConfig `yaml:"root"`
	ChildMustContain      string             `yaml:"child_must_contain"`
	RequiredPath          string             `yaml:"required_path"`
	Scope                 ScopeMode          `yaml:"scope"`
	DefaultCategory       DefaultPolicy      `yaml:"default_category"`
	Fold                  map[string]string  `yaml:"fold"`
	SharedLists           bool               `yaml:"shared_lists"`
	Women                 []string           `yaml:"women"`
	Men                   []string           `yaml:"men"`
	ExcludeDisambiguation []string           `yaml:"exclude_disambiguation"`
	Sport                 []string           `yaml:"sport"`
	WomenSportHints       []string           `yaml:"women_sport_hints"`
	ExcludedOtherSports   []string           `yaml:"excluded_other_sports"`
	Dates                 dates.Config       `yaml:"dates"`
	MaxSitemaps           int                `yaml:"max_sitemaps"`
	Delay                 time.Duration      `yaml:"delay"`
}

// Validate checks a profile before it is registered.
func (p Profile) Validate() error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if err := p.Root.Validate(); err != nil {
		return err
	}
	switch p.Scope {
	case ScopeLexical:
	case ScopePath:
		if p.RequiredPath == "" {
			return errors.New("scope path requires required_path")
		}
	default:
		return fmt.Errorf("unknown scope %q", p.Scope)
	}
	if _, err := ParseDefaultPolicy(string(p.DefaultCategory)); err != nil {
		return err
	}
	if len(p.Women) == 0 && len(p.Men) == 0 {
		return errors.New("at least one women or men term is required")
	}
	if p.MaxSitemaps < 0 {
		return errors.New("max_sitemaps must be >= 0")
	}
	if p.Delay < 0 {
		return errors.New("delay must be >= 0")
	}
	if _, err := dates.NewResolver(p.Dates); err != nil {
		return err
	}
	return nil
}

// clone returns a deep copy so callers cannot mutate registered profiles.
func (p Profile) clone() Profile {
	out := p
	out.Women = slices.Clone(p.Women)
	out.Men = slices.Clone(p.Men)
	out.ExcludeDisambiguation = slices.Clone(p.ExcludeDisambiguation)
	out.Sport = slices.Clone(p.Sport)
	out.WomenSportHints = slices.Clone(p.WomenSportHints)
	out.ExcludedOtherSports = slices.Clone(p.ExcludedOtherSports)
	out.Root.Prefer = slices.Clone(p.Root.Prefer)
	out.Dates.URL = slices.Clone(p.Dates.URL)
	out.Dates.Sitemap = slices.Clone(p.Dates.Sitemap)
	if p.Fold != nil {
		out.Fold = make(map[string]string, len(p.Fold))
		for k, v := range p.Fold {
			out.Fold[k] = v
		}
	}
	return out
}

// SharedLists are cross-outlet term lists merged into profiles that opt in.
type SharedLists struct {
	WomenPlayers          []string `yaml:"women_players"`
	MenPlayers            []string `yaml:"men_players"`
	ExcludeDisambiguation []string `yaml:"exclude_disambiguation"`
}

func mergeTerms(base, extra []string) []string {
	out := slices.Clone(base)
	for _, term := range extra {
		if !slices.Contains(out, term) {
			out = append(out, term)
		}
	}
	return out
}
