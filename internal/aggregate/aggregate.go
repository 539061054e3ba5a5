// Package aggregate reduces classified records to per-year category counts.
package aggregate

import (
	"context"
	"math"
	"sort"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
)

// Counts are the category totals of one year. Women + Men == Total.
type Counts struct {
	Women int `json:"women"`
	Men   int `json:"men"`
	Total int `json:"total"`
}

// YearSummary is a finalized row with the women's share of the year.
type YearSummary struct {
	Year       int     `json:"year"`
	Women      int     `json:"women"`
	Men        int     `json:"men"`
	Total      int     `json:"total"`
	WomenShare float64 `json:"women_share"`
}

// Aggregator accumulates YearCounts. It is owned by a single goroutine and
// implements crawler.RecordSink.
type Aggregator struct {
	years map[int]*Counts
}

// New constructs an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{years: make(map[int]*Counts)}
}

// Add counts one record.
func (a *Aggregator) Add(record crawler.ClassifiedRecord) {
	if record.Category != crawler.CategoryWomen && record.Category != crawler.CategoryMen {
		return
	}
	c, ok := a.years[record.Year]
	if !ok {
		c = &Counts{}
		a.years[record.Year] = c
	}
	if record.Category == crawler.CategoryWomen {
		c.Women++
	} else {
		c.Men++
	}
	c.Total++
}

// Consume implements crawler.RecordSink.
func (a *Aggregator) Consume(_ context.Context, record crawler.ClassifiedRecord) error {
	a.Add(record)
	return nil
}

// Counts returns the raw counts for year.
func (a *Aggregator) Counts(year int) Counts {
	if c, ok := a.years[year]; ok {
		return *c
	}
	return Counts{}
}

// Summaries finalizes the counts in ascending year order.
func (a *Aggregator) Summaries() []YearSummary {
	years := make([]int, 0, len(a.years))
	for y := range a.years {
		years = append(years, y)
	}
	sort.Ints(years)

	out := make([]YearSummary, 0, len(years))
	for _, y := range years {
		c := a.years[y]
		out = append(out, YearSummary{
			Year:       y,
			Women:      c.Women,
			Men:        c.Men,
			Total:      c.Total,
			WomenShare: Share(c.Women, c.Total),
		})
	}
	return out
}

// Share returns women/total rounded to four decimals, or 0 when total is 0.
func Share(women, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(women)/float64(total)*10000) / 10000
}
