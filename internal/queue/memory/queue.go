// Package memory provides the in-process crawl target queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan crawler.CrawlTarget
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan crawler.CrawlTarget, capacity),
	}
}

// Enqueue pushes a target into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, target crawler.CrawlTarget) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- target:
		return nil
	}
}

// Dequeue pops the next target, respecting context cancellation. It returns
// crawler.ErrQueueClosed once the queue is closed and drained.
func (q *Queue) Dequeue(ctx context.Context) (crawler.CrawlTarget, error) {
	select {
	case <-ctx.Done():
		return crawler.CrawlTarget{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case target, ok := <-q.ch:
		if !ok {
			return crawler.CrawlTarget{}, crawler.ErrQueueClosed
		}
		return target, nil
	}
}

// Len reports the number of buffered targets.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
