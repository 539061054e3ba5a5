// Package tokenize turns URLs into normalized token sequences used by the
// classifier. Tokenization is pure and deterministic.
package tokenize

import (
	"net/url"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokenizer normalizes URLs into Tokens. It is immutable and safe for
// concurrent use.
type Tokenizer struct {
	fold *strings.Replacer
}

// New constructs a Tokenizer with an outlet-specific fold table applied after
// lowercasing (for example "å" -> "aa"). Longer keys win over shorter ones.
func New(fold map[string]string) *Tokenizer {
	lowered := make(map[string]string, len(fold))
	for k, v := range fold {
		if k == "" {
			continue
		}
		lowered[strings.ToLower(k)] = strings.ToLower(v)
	}
	if len(lowered) == 0 {
		return &Tokenizer{}
	}
	keys := make([]string, 0, len(lowered))
	for k := range lowered {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, lowered[k])
	}
	return &Tokenizer{fold: strings.NewReplacer(pairs...)}
}

// Tokenize percent-decodes raw, lowercases it, applies the fold table, strips
// combining marks and splits on every run of non-alphanumeric characters.
func (t *Tokenizer) Tokenize(raw string) Tokens {
	return newTokens(t.Normalize(raw))
}

// Normalize returns the tokens of raw in order, including duplicates.
func (t *Tokenizer) Normalize(raw string) []string {
	text := raw
	if decoded, err := url.PathUnescape(raw); err == nil {
		text = decoded
	}
	text = strings.ToLower(text)
	if t != nil && t.fold != nil {
		text = t.fold.Replace(text)
	}
	text = stripMarks(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func stripMarks(s string) string {
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(chain, s)
	if err != nil {
		return s
	}
	return out
}

// Tokens is the result of tokenizing one URL: an ordered sequence plus the
// set view used for membership tests.
type Tokens struct {
	seq []string
	set map[string]struct{}
}

func newTokens(seq []string) Tokens {
	set := make(map[string]struct{}, len(seq))
	for _, tok := range seq {
		set[tok] = struct{}{}
	}
	return Tokens{seq: seq, set: set}
}

// Has reports whether tok is present.
func (t Tokens) Has(tok string) bool {
	_, ok := t.set[tok]
	return ok
}

// Sequence returns the tokens in URL order.
func (t Tokens) Sequence() []string {
	out := make([]string, len(t.seq))
	copy(out, t.seq)
	return out
}

// Set returns the distinct tokens sorted alphabetically.
func (t Tokens) Set() []string {
	out := make([]string, 0, len(t.set))
	for tok := range t.set {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of distinct tokens.
func (t Tokens) Len() int {
	return len(t.set)
}

// Equal reports whether both values hold the same token set.
func (t Tokens) Equal(other Tokens) bool {
	if len(t.set) != len(other.set) {
		return false
	}
	for tok := range t.set {
		if _, ok := other.set[tok]; !ok {
			return false
		}
	}
	return true
}
