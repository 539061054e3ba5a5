// Package scheduler walks an outlet's sitemap tree breadth-first with a
// bounded worker pool and streams classified records to a sink.
//
// A single coordinator goroutine owns the frontier, the seen-set and the run
// summary. Workers only fetch and parse; every decision about children and
// entries is taken by the coordinator, so sinks are called from one goroutine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/classifier"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/clock/system"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/dates"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/dispatcher"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/metrics"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/queue/memory"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/worker"
)

const sampleRecords = 5

// Node outcomes reported to metrics.
const (
	outcomeFetched      = "fetched"
	outcomeFailed       = "failed"
	outcomeUnrecognized = "unrecognized"
	outcomePruned       = "pruned"
	outcomeFiltered     = "filtered"
	outcomeDuplicate    = "duplicate"
	outcomeSkipped      = "skipped"
)

// Config controls one crawl run.
type Config struct {
	Outlet           string
	Window           dates.Window
	Workers          int
	QueueDepth       int
	Delay            time.Duration
	MaxSitemaps      int
	ChildMustContain string
}

// Validate checks the run configuration.
func (c Config) Validate() error {
	if err := c.Window.Validate(); err != nil {
		return crawler.NewConfigError("window", err)
	}
	if c.Workers <= 0 {
		return crawler.NewConfigError("workers", errors.New("must be > 0"))
	}
	if c.QueueDepth < 0 {
		return crawler.NewConfigError("queue_depth", errors.New("must be >= 0"))
	}
	if c.MaxSitemaps < 0 {
		return crawler.NewConfigError("max_sitemaps", errors.New("must be >= 0"))
	}
	if c.Delay < 0 {
		return crawler.NewConfigError("delay", errors.New("must be >= 0"))
	}
	return nil
}

// Scheduler runs crawls for one outlet.
type Scheduler struct {
	cfg        Config
	fetcher    crawler.Fetcher
	classifier *classifier.Classifier
	resolver   *dates.Resolver
	sink       crawler.RecordSink
	clock      crawler.Clock
	logger     *zap.Logger
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the clock used to stamp the run summary.
func WithClock(clock crawler.Clock) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a Scheduler.
func New(
	cfg Config,
	fetcher crawler.Fetcher,
	cls *classifier.Classifier,
	resolver *dates.Resolver,
	sink crawler.RecordSink,
	opts ...Option,
) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil || cls == nil || resolver == nil || sink == nil {
		return nil, errors.New("scheduler: fetcher, classifier, resolver and sink are required")
	}
	s := &Scheduler{
		cfg:        cfg,
		fetcher:    fetcher,
		classifier: cls,
		resolver:   resolver,
		sink:       sink,
		clock:      system.New(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scheduler").With(zap.String("outlet", cfg.Outlet))
	return s, nil
}

// run is the coordinator state of a single Run call.
type run struct {
	summary  crawler.Summary
	seen     *crawler.SeenSet
	frontier []crawler.CrawlTarget
	sinkErr  error

	// Depth-0 outcomes. A run in which every fetched root failed has no root.
	rootsLoaded int
	rootErr     error
}

// Run crawls from roots until the frontier is exhausted, the MaxSitemaps cap
// is reached or ctx is canceled. Fetch and parse failures are counted in the
// returned summary, except at the roots: when no root could be fetched and
// parsed the run fails with a *crawler.ConfigError wrapping
// crawler.ErrNoRootSitemap. The only other runtime error is a failing record
// sink, which stops dispatching and is returned after in-flight work drains.
func (s *Scheduler) Run(ctx context.Context, roots []crawler.CrawlTarget) (crawler.Summary, error) {
	if len(roots) == 0 {
		return crawler.Summary{}, crawler.NewConfigError("root", crawler.ErrNoRootSitemap)
	}

	r := &run{
		summary: crawler.Summary{
			Outlet:      s.cfg.Outlet,
			RootSitemap: roots[0].URL,
			StartedAt:   s.clock.Now(),
		},
		seen: crawler.NewSeenSet(),
	}
	for _, root := range roots {
		if hint := s.resolver.Hint(root.URL); hint.Known() {
			root.Hint = hint
		}
		s.admit(r, root, root.Hint)
	}

	limit := s.cfg.Workers + s.cfg.QueueDepth
	queue := memory.NewQueue(limit)
	results := make(chan worker.Result, limit)
	workers := make([]*worker.Worker, 0, s.cfg.Workers)
	for i := range s.cfg.Workers {
		workers = append(workers, worker.New(i, queue, s.fetcher, crawler.NewPacer(s.cfg.Delay), results, s.logger))
	}
	dispatch := dispatcher.New(queue, workers)
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	s.logger.Info("crawl started",
		zap.String("root", r.summary.RootSitemap),
		zap.Int("roots", len(roots)),
		zap.Int("start_year", s.cfg.Window.Start),
		zap.Int("end_year", s.cfg.Window.End),
		zap.Int("workers", s.cfg.Workers),
	)

	// The queue holds at most inflight targets and inflight < limit before
	// each Enqueue, so Enqueue never blocks.
	enqueueCtx := context.WithoutCancel(ctx)
	inflight, dispatched := 0, 0
	var enqueueErr error
	for {
		for inflight < limit && len(r.frontier) > 0 && r.sinkErr == nil && enqueueErr == nil && ctx.Err() == nil {
			if s.cfg.MaxSitemaps > 0 && dispatched >= s.cfg.MaxSitemaps {
				break
			}
			target := r.frontier[0]
			r.frontier = r.frontier[1:]
			if err := dispatch.Enqueue(enqueueCtx, target); err != nil {
				enqueueErr = err
				r.frontier = append(r.frontier, target)
				break
			}
			inflight++
			dispatched++
		}
		if inflight == 0 {
			break
		}
		res := <-results
		inflight--
		if r.sinkErr != nil {
			continue
		}
		s.handle(ctx, r, res)
	}

	dispatch.Close()
	<-done

	if len(r.frontier) > 0 {
		r.summary.SitemapsSkipped += len(r.frontier)
		for range r.frontier {
			metrics.ObserveNode(s.cfg.Outlet, outcomeSkipped)
		}
		if ctx.Err() == nil && r.sinkErr == nil && enqueueErr == nil {
			s.logger.Warn("max sitemaps reached", zap.Int("max_sitemaps", s.cfg.MaxSitemaps), zap.Int("skipped", len(r.frontier)))
		}
	}
	r.summary.Canceled = ctx.Err() != nil
	r.summary.FinishedAt = s.clock.Now()

	s.logger.Info("crawl finished",
		zap.Int("sitemaps_attempted", r.summary.SitemapsAttempted),
		zap.Int("sitemaps_failed", r.summary.SitemapsFailed),
		zap.Int("sitemaps_pruned", r.summary.SitemapsPruned),
		zap.Int("entries", r.summary.Entries),
		zap.Int("in_scope", r.summary.InScope),
		zap.Int("year_filtered", r.summary.YearFiltered),
		zap.Int("records", r.summary.Records),
		zap.Bool("canceled", r.summary.Canceled),
	)

	switch {
	case r.sinkErr != nil:
		return r.summary, fmt.Errorf("record sink: %w", r.sinkErr)
	case r.rootsLoaded == 0 && r.rootErr != nil && !r.summary.Canceled:
		s.logger.Error("no root sitemap could be loaded", zap.Error(r.rootErr))
		return r.summary, crawler.NewConfigError("root", fmt.Errorf("%w: %w", crawler.ErrNoRootSitemap, r.rootErr))
	case enqueueErr != nil:
		return r.summary, enqueueErr
	}
	return r.summary, nil
}

// admit applies the child filter, pruning and dedup to a sitemap reference
// and pushes it onto the frontier when it survives.
func (s *Scheduler) admit(r *run, target crawler.CrawlTarget, lastmodHint crawler.YearMonth) {
	if s.cfg.ChildMustContain != "" && target.Depth > 0 && !strings.Contains(target.URL, s.cfg.ChildMustContain) {
		r.summary.SitemapsFiltered++
		metrics.ObserveNode(s.cfg.Outlet, outcomeFiltered)
		return
	}
	if lastmodHint.Known() && !s.cfg.Window.Contains(lastmodHint.Year) {
		r.summary.SitemapsPruned++
		metrics.ObserveNode(s.cfg.Outlet, outcomePruned)
		s.logger.Debug("sitemap pruned", zap.String("url", target.URL), zap.String("hint", lastmodHint.String()))
		return
	}
	if !r.seen.MarkIfNew(target.URL) {
		r.summary.SitemapsDuplicate++
		metrics.ObserveNode(s.cfg.Outlet, outcomeDuplicate)
		return
	}
	r.frontier = append(r.frontier, target)
}

func (s *Scheduler) handle(ctx context.Context, r *run, res worker.Result) {
	if res.Skipped {
		r.summary.SitemapsSkipped++
		metrics.ObserveNode(s.cfg.Outlet, outcomeSkipped)
		return
	}
	r.summary.SitemapsAttempted++
	if res.Err != nil {
		r.summary.SitemapsFailed++
		metrics.ObserveNode(s.cfg.Outlet, outcomeFailed)
		s.logger.Warn("sitemap fetch failed", zap.String("url", res.Target.URL), zap.Error(res.Err))
		if res.Target.Depth == 0 {
			r.rootErr = res.Err
		}
		return
	}
	if res.Target.Depth == 0 && res.Document.Kind != crawler.KindUnrecognized {
		r.rootsLoaded++
	}

	switch res.Document.Kind {
	case crawler.KindIndex:
		metrics.ObserveNode(s.cfg.Outlet, outcomeFetched)
		s.expand(r, res.Target, res.Document.Children())
	case crawler.KindURLSet:
		metrics.ObserveNode(s.cfg.Outlet, outcomeFetched)
		s.emit(ctx, r, res.Target, res.Document.Entries())
	default:
		r.summary.SitemapsUnrecognized++
		metrics.ObserveNode(s.cfg.Outlet, outcomeUnrecognized)
		s.logger.Warn("sitemap unrecognized", zap.String("url", res.Target.URL), zap.Error(res.ParseErr))
		if res.Target.Depth == 0 {
			r.rootErr = res.ParseErr
			if r.rootErr == nil {
				r.rootErr = fmt.Errorf("%s is not a sitemap", res.Target.URL)
			}
		}
	}
}

func (s *Scheduler) expand(r *run, parent crawler.CrawlTarget, children []crawler.SitemapNode) {
	for _, child := range children {
		pruneHint := s.resolver.SitemapHint(child.URL, child.LastModified, s.resolver.PruneOnLastmod())
		hint := s.resolver.Hint(child.URL)
		if !hint.Known() {
			hint = parent.Hint
		}
		s.admit(r, crawler.CrawlTarget{URL: child.URL, Hint: hint, Depth: parent.Depth + 1}, pruneHint)
	}
}

func (s *Scheduler) emit(ctx context.Context, r *run, target crawler.CrawlTarget, entries []crawler.SitemapNode) {
	// Records from fetches that completed after cancellation are still emitted.
	sinkCtx := context.WithoutCancel(ctx)
	for _, entry := range entries {
		r.summary.Entries++
		decision := s.classifier.Classify(entry.URL)
		if !decision.InScope {
			continue
		}
		r.summary.InScope++

		ym := s.resolver.Resolve(entry, target.Hint)
		if !ym.Known() || !s.cfg.Window.Contains(ym.Year) {
			r.summary.YearFiltered++
			continue
		}

		record := crawler.ClassifiedRecord{
			Year:         ym.Year,
			Month:        ym.Month,
			LastModified: entry.LastModified,
			URL:          entry.URL,
			Category:     decision.Category,
		}
		if err := s.sink.Consume(sinkCtx, record); err != nil {
			r.sinkErr = err
			s.logger.Error("record sink failed", zap.String("url", entry.URL), zap.Error(err))
			return
		}
		r.summary.Records++
		metrics.ObserveRecord(s.cfg.Outlet, string(record.Category))
		if r.summary.Records <= sampleRecords {
			s.logger.Debug("record sample",
				zap.String("url", record.URL),
				zap.String("category", string(record.Category)),
				zap.String("rule", string(decision.Rule)),
				zap.String("date", ym.String()),
			)
		}
	}
}
