// Package postgres provides Postgres-backed persistence implementations. The
// tables it writes are defined in schema.sql; RecordStore.EnsureSchema applies
// that file for a configured table name.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/aggregate"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RecordStoreConfig controls the Postgres connection pool used for crawl results.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RecordStore writes classified records, per-year counts and run summaries.
// Counts go to <table>_counts and summaries to <table>_runs.
type RecordStore struct {
	pool  execCloser
	table string
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided config.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool execCloser, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: pool, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Sink returns a crawler.RecordSink that stamps every record with runID and outlet.
func (s *RecordStore) Sink(runID uuid.UUID, outlet string) crawler.RecordSink {
	return crawler.RecordSinkFunc(func(ctx context.Context, record crawler.ClassifiedRecord) error {
		return s.InsertRecord(ctx, runID, outlet, record)
	})
}

// InsertRecord inserts one classified record. A URL is stored at most once per run.
func (s *RecordStore) InsertRecord(
	ctx context.Context,
	runID uuid.UUID,
	outlet string,
	record crawler.ClassifiedRecord,
) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	outlet,
	year,
	month,
	lastmod,
	url,
	category
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
ON CONFLICT (run_id, url) DO NOTHING`, s.table)

	var month *int
	if record.Month > 0 {
		month = &record.Month
	}
	args := []any{
		runID,
		outlet,
		record.Year,
		month,
		record.LastModified,
		record.URL,
		string(record.Category),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// SaveCounts upserts the finalized per-year rows of a run.
func (s *RecordStore) SaveCounts(
	ctx context.Context,
	runID uuid.UUID,
	outlet string,
	rows []aggregate.YearSummary,
) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s_counts (run_id, outlet, year, women, men, total, women_share)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (run_id, year) DO UPDATE
SET women = EXCLUDED.women, men = EXCLUDED.men, total = EXCLUDED.total, women_share = EXCLUDED.women_share`, s.table)
	for _, row := range rows {
		if _, err := s.pool.Exec(ctx, query, runID, outlet, row.Year, row.Women, row.Men, row.Total, row.WomenShare); err != nil {
			return fmt.Errorf("upsert counts for %d: %w", row.Year, err)
		}
	}
	return nil
}

// SaveRun records the summary of a finished run.
func (s *RecordStore) SaveRun(ctx context.Context, runID uuid.UUID, summary crawler.Summary, runErr error) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	status := "succeeded"
	var errText *string
	switch {
	case runErr != nil:
		status = "failed"
		msg := runErr.Error()
		errText = &msg
	case summary.Canceled:
		status = "canceled"
	}
	query := fmt.Sprintf(`
INSERT INTO %s_runs (
	run_id,
	outlet,
	root_sitemap,
	started_at,
	finished_at,
	status,
	error_text,
	sitemaps_attempted,
	sitemaps_failed,
	sitemaps_pruned,
	entries,
	records
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (run_id) DO UPDATE
SET finished_at = EXCLUDED.finished_at, status = EXCLUDED.status, error_text = EXCLUDED.error_text`, s.table)
	args := []any{
		runID,
		summary.Outlet,
		summary.RootSitemap,
		summary.StartedAt,
		summary.FinishedAt,
		status,
		errText,
		summary.SitemapsAttempted,
		summary.SitemapsFailed,
		summary.SitemapsPruned,
		summary.Entries,
		summary.Records,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}
