package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
)

// RecordStore keeps classified records in arrival order. It implements
// crawler.RecordSink and is safe to read while a run is still writing.
type RecordStore struct {
	mu      sync.RWMutex
	records []crawler.ClassifiedRecord
}

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{}
}

// Consume implements crawler.RecordSink.
func (s *RecordStore) Consume(_ context.Context, record crawler.ClassifiedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Records returns a snapshot of the stored records.
func (s *RecordStore) Records() []crawler.ClassifiedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.ClassifiedRecord(nil), s.records...)
}

// Len reports the number of stored records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
