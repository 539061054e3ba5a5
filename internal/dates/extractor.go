// Package dates resolves the (year, month) of sitemap entries from lastmod
// timestamps, article URLs and sitemap filenames.
package dates

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
)

// Extractor kinds selectable from profile data.
const (
	KindPathYearMonth   = "path_year_month"
	KindCompactDate     = "compact_date"
	KindPathYearSegment = "path_year_segment"
	KindDashMonth       = "dash_month"
	KindSitemapMonth    = "sitemap_month"
	KindQueryDate       = "query_date"
	KindRegexp          = "regexp"
)

// ExtractorSpec selects and parameterizes an Extractor.
type ExtractorSpec struct {
	Kind    string `yaml:"kind"`
	Pattern string `yaml:"pattern,omitempty"`
	Param   string `yaml:"param,omitempty"`
}

// Extractor pulls a year and optional month out of a URL.
type Extractor interface {
	Extract(rawURL string) (crawler.YearMonth, bool)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(rawURL string) (crawler.YearMonth, bool)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(rawURL string) (crawler.YearMonth, bool) {
	return f(rawURL)
}

var (
	pathYearMonthRe = regexp.MustCompile(`/(19\d{2}|20\d{2})/(\d{2})/`)
	compactDateRe   = regexp.MustCompile(`(19\d{2}|20\d{2})(\d{2})(\d{2})`)
	dashMonthRe     = regexp.MustCompile(`/(19\d{2}|20\d{2})-(\d{2})-[^/]*\.xml`)
	sitemapMonthRe  = regexp.MustCompile(`sitemap-(19\d{2}|20\d{2})-(\d{2})`)
)

// NewExtractor builds the Extractor described by spec.
func NewExtractor(spec ExtractorSpec) (Extractor, error) {
	switch spec.Kind {
	case KindPathYearMonth:
		return ExtractorFunc(func(rawURL string) (crawler.YearMonth, bool) {
			return firstMatch(pathYearMonthRe, rawURL, false)
		}), nil
	case KindCompactDate:
		return ExtractorFunc(func(rawURL string) (crawler.YearMonth, bool) {
			return firstMatch(compactDateRe, rawURL, true)
		}), nil
	case KindPathYearSegment:
		return ExtractorFunc(yearFromPathSegment), nil
	case KindDashMonth:
		return ExtractorFunc(func(rawURL string) (crawler.YearMonth, bool) {
			return firstMatch(dashMonthRe, rawURL, false)
		}), nil
	case KindSitemapMonth:
		return ExtractorFunc(func(rawURL string) (crawler.YearMonth, bool) {
			return firstMatch(sitemapMonthRe, rawURL, false)
		}), nil
	case KindQueryDate:
		param := spec.Param
		if param == "" {
			param = "date"
		}
		return ExtractorFunc(func(rawURL string) (crawler.YearMonth, bool) {
			return fromQuery(rawURL, param)
		}), nil
	case KindRegexp:
		return newRegexpExtractor(spec.Pattern)
	default:
		return nil, fmt.Errorf("unknown date extractor kind %q", spec.Kind)
	}
}

// firstMatch returns the first match of re whose month is valid. With
// strictMonth unset, a match with an invalid month still yields its year.
func firstMatch(re *regexp.Regexp, rawURL string, strictMonth bool) (crawler.YearMonth, bool) {
	for _, m := range re.FindAllStringSubmatch(rawURL, -1) {
		year, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		month, _ := strconv.Atoi(m[2])
		if !validMonth(month) {
			if strictMonth {
				continue
			}
			month = 0
		}
		if strictMonth && len(m) > 3 {
			day, _ := strconv.Atoi(m[3])
			if day < 1 || day > 31 {
				continue
			}
		}
		return crawler.YearMonth{Year: year, Month: month}, true
	}
	return crawler.YearMonth{}, false
}

func yearFromPathSegment(rawURL string) (crawler.YearMonth, bool) {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	for _, part := range strings.Split(path, "/") {
		if len(part) != 4 || !allDigits(part) {
			continue
		}
		year, _ := strconv.Atoi(part)
		if year > 1900 && year < 2100 {
			return crawler.YearMonth{Year: year}, true
		}
	}
	return crawler.YearMonth{}, false
}

func fromQuery(rawURL, param string) (crawler.YearMonth, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return crawler.YearMonth{}, false
	}
	val := u.Query().Get(param)
	if len(val) != 6 || !allDigits(val) {
		return crawler.YearMonth{}, false
	}
	year, _ := strconv.Atoi(val[:4])
	month, _ := strconv.Atoi(val[4:])
	if !validMonth(month) {
		month = 0
	}
	return crawler.YearMonth{Year: year, Month: month}, true
}

type regexpExtractor struct {
	re    *regexp.Regexp
	year  int
	month int
}

func newRegexpExtractor(pattern string) (Extractor, error) {
	if pattern == "" {
		return nil, fmt.Errorf("regexp extractor requires a pattern")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile date pattern: %w", err)
	}
	ex := &regexpExtractor{re: re, year: re.SubexpIndex("year"), month: re.SubexpIndex("month")}
	if ex.year < 0 {
		return nil, fmt.Errorf("date pattern %q has no (?P<year>...) group", pattern)
	}
	return ex, nil
}

func (e *regexpExtractor) Extract(rawURL string) (crawler.YearMonth, bool) {
	m := e.re.FindStringSubmatch(rawURL)
	if m == nil {
		return crawler.YearMonth{}, false
	}
	year, err := strconv.Atoi(m[e.year])
	if err != nil || year <= 0 {
		return crawler.YearMonth{}, false
	}
	ym := crawler.YearMonth{Year: year}
	if e.month >= 0 {
		if month, err := strconv.Atoi(m[e.month]); err == nil && validMonth(month) {
			ym.Month = month
		}
	}
	return ym, true
}

// FromLastmod reads the ISO-8601 prefix of a lastmod value: the year from
// characters 0-3 and, when present and valid, the month from characters 5-6.
func FromLastmod(lastmod string) (crawler.YearMonth, bool) {
	lastmod = strings.TrimSpace(lastmod)
	if len(lastmod) < 4 || !allDigits(lastmod[:4]) {
		return crawler.YearMonth{}, false
	}
	year, _ := strconv.Atoi(lastmod[:4])
	if year == 0 {
		return crawler.YearMonth{}, false
	}
	ym := crawler.YearMonth{Year: year}
	if len(lastmod) >= 7 && allDigits(lastmod[5:7]) {
		if month, _ := strconv.Atoi(lastmod[5:7]); validMonth(month) {
			ym.Month = month
		}
	}
	return ym, true
}

func validMonth(month int) bool {
	return month >= 1 && month <= 12
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
