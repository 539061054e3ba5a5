package crawler

import (
	"context"
	"sync"
	"time"
)

// SeenSet tracks sitemap URLs already queued so each is fetched at most once.
// It is owned by the scheduler coordinator and is not safe for concurrent use.
type SeenSet struct {
	seen map[string]struct{}
}

// NewSeenSet constructs an empty SeenSet.
func NewSeenSet() *SeenSet {
	return &SeenSet{seen: make(map[string]struct{})}
}

// MarkIfNew normalizes rawURL, stores it if it has not been seen before and
// returns true. Unparseable URLs fall back to the trimmed raw text as key.
func (s *SeenSet) MarkIfNew(rawURL string) bool {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		key = rawURL
	}
	if key == "" {
		return false
	}
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Len reports how many distinct URLs were marked.
func (s *SeenSet) Len() int {
	return len(s.seen)
}

// Pacer enforces a minimum delay between the completion of one request and
// the start of the next. Each worker owns one pacer.
type Pacer struct {
	mu    sync.Mutex
	delay time.Duration
	last  time.Time
	now   func() time.Time
}

// NewPacer constructs a pacer with the given delay. A non-positive delay
// disables pacing.
func NewPacer(delay time.Duration) *Pacer {
	return &Pacer{delay: delay, now: time.Now}
}

// Wait blocks until the delay since the last completion has elapsed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if p.delay <= 0 || last.IsZero() {
		return ctx.Err()
	}
	remaining := p.delay - p.now().Sub(last)
	if remaining <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Done records the completion of a request.
func (p *Pacer) Done() {
	p.mu.Lock()
	p.last = p.now()
	p.mu.Unlock()
}
