package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a sitemap or robots.txt body. Implementations return a
// *FetchError on failure and hand back decompressed bytes for gzip payloads.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RecordSink consumes classified records as the scheduler emits them. It is
// called from a single goroutine.
type RecordSink interface {
	Consume(ctx context.Context, record ClassifiedRecord) error
}

// RecordSinkFunc adapts a function to RecordSink.
type RecordSinkFunc func(ctx context.Context, record ClassifiedRecord) error

// Consume implements RecordSink.
func (f RecordSinkFunc) Consume(ctx context.Context, record ClassifiedRecord) error {
	return f(ctx, record)
}

// MultiSink forwards every record to each sink in order and stops at the
// first error.
func MultiSink(sinks ...RecordSink) RecordSink {
	return RecordSinkFunc(func(ctx context.Context, record ClassifiedRecord) error {
		for _, sink := range sinks {
			if err := sink.Consume(ctx, record); err != nil {
				return err
			}
		}
		return nil
	})
}

// BlobStore writes report artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Queue buffers crawl targets between the scheduler and its workers.
type Queue interface {
	Enqueue(ctx context.Context, target CrawlTarget) error
	Dequeue(ctx context.Context) (CrawlTarget, error)
	Close()
}
