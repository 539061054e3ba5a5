// Package classifier decides whether a URL is in scope for an outlet and which
// category it belongs to.
package classifier

import (
	"strings"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/profile"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/tokenize"
)

// Rule names the decision step that produced a Decision.
type Rule string

// Decision steps, in evaluation order.
const (
	RuleRequiredPath   Rule = "required_path"
	RuleExcludedSport  Rule = "excluded_sport"
	RuleMen            Rule = "men"
	RuleDisambiguation Rule = "disambiguation"
	RuleWomen          Rule = "women"
	RuleDefault        Rule = "default"
	RuleNoMatch        Rule = "no_match"
)

type termSet uint8

const (
	setWomen termSet = 1 << iota
	setMen
	setDisambiguation
	setSport
	setWomenHint
	setExcludedSport
)

// Decision is the outcome of classifying one URL.
type Decision struct {
	InScope  bool
	Category crawler.Category
	Rule     Rule
	Matched  []string
}

// Option customizes a Classifier.
type Option func(*Classifier)

// WithDefaultPolicy overrides the profile's default category policy.
func WithDefaultPolicy(policy profile.DefaultPolicy) Option {
	return func(c *Classifier) {
		if policy != "" {
			c.policy = policy
		}
	}
}

// Classifier evaluates the rules of one profile. It is immutable and safe for
// concurrent use.
type Classifier struct {
	tokenizer    *tokenize.Tokenizer
	terms        map[string]termSet
	maxTermLen   int
	requiredPath string
	scope        profile.ScopeMode
	policy       profile.DefaultPolicy
}

// New compiles p into a Classifier. Terms are normalized with the outlet's
// fold table so that they compare equal to URL tokens.
func New(p profile.Profile, opts ...Option) *Classifier {
	c := &Classifier{
		tokenizer:    tokenize.New(p.Fold),
		terms:        make(map[string]termSet),
		requiredPath: p.RequiredPath,
		scope:        p.Scope,
		policy:       p.DefaultCategory,
	}
	c.add(p.Women, setWomen)
	c.add(p.Men, setMen)
	c.add(p.ExcludeDisambiguation, setDisambiguation)
	c.add(p.Sport, setSport)
	c.add(p.WomenSportHints, setWomenHint)
	c.add(p.ExcludedOtherSports, setExcludedSport)
	for _, opt := range opts {
		opt(c)
	}
	if c.policy == "" {
		c.policy = profile.DefaultMen
	}
	return c
}

func (c *Classifier) add(terms []string, set termSet) {
	for _, term := range terms {
		seq := c.tokenizer.Normalize(term)
		if len(seq) == 0 {
			continue
		}
		c.terms[strings.Join(seq, " ")] |= set
		if len(seq) > c.maxTermLen {
			c.maxTermLen = len(seq)
		}
	}
}

// match scans the URL tokens left to right. At each position the longest
// term starting there claims its tokens, so "frauen-bundesliga" is not also
// read as "bundesliga".
func (c *Classifier) match(seq []string) (termSet, []string) {
	var hits termSet
	var matched []string
	for i := 0; i < len(seq); {
		longest := 0
		var found termSet
		for n := min(c.maxTermLen, len(seq)-i); n > 0; n-- {
			if set, ok := c.terms[strings.Join(seq[i:i+n], " ")]; ok {
				longest, found = n, set
				break
			}
		}
		if longest == 0 {
			i++
			continue
		}
		hits |= found
		matched = append(matched, strings.Join(seq[i:i+longest], "-"))
		i += longest
	}
	return hits, matched
}

// Classify applies the decision rules in order; the first that fires wins.
func (c *Classifier) Classify(rawURL string) Decision {
	if c.requiredPath != "" && !strings.Contains(rawURL, c.requiredPath) {
		return Decision{Rule: RuleRequiredPath}
	}

	hits, matched := c.match(c.tokenizer.Normalize(rawURL))
	switch {
	case hits&setExcludedSport != 0:
		return Decision{Rule: RuleExcludedSport, Matched: matched}
	case hits&setMen != 0:
		return Decision{InScope: true, Category: crawler.CategoryMen, Rule: RuleMen, Matched: matched}
	case hits&setDisambiguation != 0:
		return Decision{InScope: true, Category: crawler.CategoryMen, Rule: RuleDisambiguation, Matched: matched}
	case hits&setWomen != 0 && c.hasSportContext(hits):
		return Decision{InScope: true, Category: crawler.CategoryWomen, Rule: RuleWomen, Matched: matched}
	}

	if c.scope != profile.ScopePath {
		return Decision{Rule: RuleNoMatch, Matched: matched}
	}
	category, ok := c.policy.Category()
	if !ok {
		return Decision{Rule: RuleDefault, Matched: matched}
	}
	return Decision{InScope: true, Category: category, Rule: RuleDefault, Matched: matched}
}

func (c *Classifier) hasSportContext(hits termSet) bool {
	if hits&(setSport|setWomenHint) != 0 {
		return true
	}
	return c.scope == profile.ScopePath
}

// IsInScope reports whether rawURL is relevant for the outlet.
func (c *Classifier) IsInScope(rawURL string) bool {
	return c.Classify(rawURL).InScope
}

// Category returns the category of rawURL, false when it is out of scope.
func (c *Classifier) Category(rawURL string) (crawler.Category, bool) {
	d := c.Classify(rawURL)
	return d.Category, d.InScope
}
