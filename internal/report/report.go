// Package report renders run results as CSV files and hands them to blob stores.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/aggregate"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/dates"
)

const contentType = "text/csv; charset=utf-8"

var (
	urlsHeader   = []string{"year", "month", "lastmod", "category", "url"}
	countsHeader = []string{"year", "women", "men", "total", "women_share"}
)

// FileNames returns the URL and counts report names for a run.
func FileNames(outlet string, window dates.Window) (urls, counts string) {
	return fmt.Sprintf("%s_urls_%d_%d.csv", outlet, window.Start, window.End),
		fmt.Sprintf("%s_counts_%d_%d.csv", outlet, window.Start, window.End)
}

// SortRecords orders records by year, month and URL.
func SortRecords(records []crawler.ClassifiedRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.URL < b.URL
	})
}

// WriteURLs writes the URL report. Unknown months are written as empty cells.
func WriteURLs(w io.Writer, records []crawler.ClassifiedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(urlsHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		month := ""
		if r.Month > 0 {
			month = strconv.Itoa(r.Month)
		}
		row := []string{strconv.Itoa(r.Year), month, r.LastModified, string(r.Category), r.URL}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteCounts writes the per-year counts report.
func WriteCounts(w io.Writer, rows []aggregate.YearSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(countsHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		row := []string{
			strconv.Itoa(r.Year),
			strconv.Itoa(r.Women),
			strconv.Itoa(r.Men),
			strconv.Itoa(r.Total),
			strconv.FormatFloat(r.WomenShare, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Config controls report output.
type Config struct {
	Prefix string
	Sort   bool
}

// Writer renders both reports and stores them in every configured blob store.
type Writer struct {
	stores []crawler.BlobStore
	cfg    Config
	logger *zap.Logger
}

// NewWriter constructs a Writer.
func NewWriter(cfg Config, logger *zap.Logger, stores ...crawler.BlobStore) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{stores: stores, cfg: cfg, logger: logger}
}

// Write renders the reports and returns the URIs of every stored object.
func (w *Writer) Write(
	ctx context.Context,
	outlet string,
	window dates.Window,
	records []crawler.ClassifiedRecord,
	rows []aggregate.YearSummary,
) ([]string, error) {
	if w.cfg.Sort {
		records = append([]crawler.ClassifiedRecord(nil), records...)
		SortRecords(records)
	}

	var urlsBuf, countsBuf bytes.Buffer
	if err := WriteURLs(&urlsBuf, records); err != nil {
		return nil, fmt.Errorf("render urls report: %w", err)
	}
	if err := WriteCounts(&countsBuf, rows); err != nil {
		return nil, fmt.Errorf("render counts report: %w", err)
	}

	urlsName, countsName := FileNames(outlet, window)
	files := []struct {
		name string
		data []byte
	}{
		{urlsName, urlsBuf.Bytes()},
		{countsName, countsBuf.Bytes()},
	}

	var uris []string
	for _, store := range w.stores {
		for _, f := range files {
			uri, err := store.PutObject(ctx, w.objectPath(f.name), contentType, bytes.NewReader(f.data))
			if err != nil {
				return uris, fmt.Errorf("store %s: %w", f.name, err)
			}
			w.logger.Info("report written", zap.String("uri", uri), zap.Int("bytes", len(f.data)))
			uris = append(uris, uri)
		}
	}
	return uris, nil
}

func (w *Writer) objectPath(name string) string {
	prefix := strings.Trim(w.cfg.Prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
