// Package worker implements the sitemap fetch loop run by each crawl worker.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/metrics"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/sitemap"
)

// Result is what a worker reports back for each dequeued target. Exactly one
// of Skipped, Err or a parsed Document is meaningful.
type Result struct {
	Target   crawler.CrawlTarget
	Document crawler.Document
	Err      error
	ParseErr error
	Skipped  bool
	Bytes    int
}

// Worker consumes crawl targets, fetches and parses them, and reports results.
type Worker struct {
	queue   crawler.Queue
	fetcher crawler.Fetcher
	pacer   *crawler.Pacer
	results chan<- Result
	logger  *zap.Logger
}

// New constructs a Worker.
func New(
	index int,
	queue crawler.Queue,
	fetcher crawler.Fetcher,
	pacer *crawler.Pacer,
	results chan<- Result,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pacer == nil {
		pacer = crawler.NewPacer(0)
	}
	return &Worker{
		queue:   queue,
		fetcher: fetcher,
		pacer:   pacer,
		results: results,
		logger:  logger.Named("worker").With(zap.Int("index", index)),
	}
}

// Run blocks, consuming targets until the queue is closed and drained. Once
// ctx is canceled every remaining target is reported as skipped so the
// coordinator can account for it.
func (w *Worker) Run(ctx context.Context) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	queueCtx := context.WithoutCancel(ctx)
	for {
		target, err := w.queue.Dequeue(queueCtx)
		if err != nil {
			if errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			return
		}
		w.logger.Debug("dequeued sitemap", zap.String("url", target.URL), zap.Int("depth", target.Depth))
		w.results <- w.process(ctx, target)
	}
}

func (w *Worker) process(ctx context.Context, target crawler.CrawlTarget) Result {
	if ctx.Err() != nil {
		return Result{Target: target, Skipped: true}
	}
	if err := w.pacer.Wait(ctx); err != nil {
		return Result{Target: target, Skipped: true}
	}

	// An in-flight fetch is allowed to finish after cancellation.
	body, err := w.fetcher.Fetch(context.WithoutCancel(ctx), target.URL)
	w.pacer.Done()
	if err != nil {
		return Result{Target: target, Err: err}
	}

	doc, parseErr := sitemap.ParseStrict(body)
	var pe *crawler.ParseError
	if errors.As(parseErr, &pe) {
		pe.URL = target.URL
	}
	return Result{Target: target, Document: doc, ParseErr: parseErr, Bytes: len(body)}
}
