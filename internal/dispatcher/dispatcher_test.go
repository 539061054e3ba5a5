package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/queue/memory"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/worker"
)

type staticFetcher struct{}

func (staticFetcher) Fetch(context.Context, string) ([]byte, error) {
	return []byte(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"></urlset>`), nil
}

// TestDispatcherRunDrainsQueue ensures workers process every target and Run
// returns once the queue is closed.
func TestDispatcherRunDrainsQueue(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	results := make(chan worker.Result, 4)
	workers := []*worker.Worker{
		worker.New(0, q, staticFetcher{}, nil, results, zap.NewNop()),
		worker.New(1, q, staticFetcher{}, nil, results, zap.NewNop()),
	}
	dispatch := New(q, workers)

	done := make(chan struct{})
	go func() {
		dispatch.Run(context.Background())
		close(done)
	}()

	for _, u := range []string{"a", "b", "c"} {
		require.NoError(t, dispatch.Enqueue(context.Background(), crawler.CrawlTarget{URL: u}))
	}
	seen := map[string]bool{}
	for range 3 {
		select {
		case res := <-results:
			require.Equal(t, crawler.KindURLSet, res.Document.Kind)
			seen[res.Target.URL] = true
		case <-time.After(time.Second):
			t.Fatal("missing worker result")
		}
	}
	require.Len(t, seen, 3)

	dispatch.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after queue close")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	dispatch := New(&errorQueue{err: errors.New("boom")}, nil)

	err := dispatch.Enqueue(context.Background(), crawler.CrawlTarget{URL: "x"})
	require.EqualError(t, err, "queue enqueue: boom")
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, crawler.CrawlTarget) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (crawler.CrawlTarget, error) {
	return crawler.CrawlTarget{}, crawler.ErrQueueClosed
}

func (q *errorQueue) Close() {}
