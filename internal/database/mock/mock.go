// Package mock provides in-memory implementations of the database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/database"
)

// MockRecordStore is an in-memory database.RecordStore.
type MockRecordStore struct {
	mu      sync.RWMutex
	records []attendance.Record

	// Error injection
	SaveError  error
	ListError  error
	GetError   error
	CountError error
}

// NewMockRecordStore creates an empty mock record store.
func NewMockRecordStore() *MockRecordStore {
	return &MockRecordStore{}
}

// SaveRecord appends a copy of rec.
func (m *MockRecordStore) SaveRecord(_ context.Context, rec *attendance.Record) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	cp := *rec
	cp.FirstWindow = slices.Clone(rec.FirstWindow)
	cp.SecondWindow = slices.Clone(rec.SecondWindow)
	cp.Verified = slices.Clone(rec.Verified)
	cp.Normalize()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, cp)
	return nil
}

// ListRecords returns matching records newest first.
func (m *MockRecordStore) ListRecords(_ context.Context, filter database.RecordFilter) ([]attendance.Record, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	filter = filter.Normalize()

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []attendance.Record{}
	for i := len(m.records) - 1; i >= 0; i-- {
		rec := m.records[i]
		if filter.Date != "" && rec.Date != filter.Date {
			continue
		}
		if filter.Subject != "" && rec.Subject != filter.Subject {
			continue
		}
		out = append(out, rec)
	}
	slices.SortStableFunc(out, func(a, b attendance.Record) int {
		return b.CapturedAt.Compare(a.CapturedAt)
	})
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetRecord returns the latest run of the class, or nil, nil when there is none.
func (m *MockRecordStore) GetRecord(_ context.Context, date, period, subject string) (*attendance.Record, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *attendance.Record
	for i := range m.records {
		rec := m.records[i]
		if rec.Date != date || rec.Period != period || rec.Subject != subject {
			continue
		}
		if latest == nil || !rec.CapturedAt.Before(latest.CapturedAt) {
			latest = &rec
		}
	}
	return latest, nil
}

func (m *MockRecordStore) CountRecords(_ context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// MockGalleryCache is an in-memory database.GalleryCache.
type MockGalleryCache struct {
	mu         sync.RWMutex
	embeddings map[string]database.StoredEmbedding

	// Error injection
	LookupError error
	StoreError  error

	Lookups int
	Stores  int
}

func NewMockGalleryCache() *MockGalleryCache {
	return &MockGalleryCache{embeddings: make(map[string]database.StoredEmbedding)}
}

func (m *MockGalleryCache) LookupEmbedding(_ context.Context, hash string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lookups++
	if m.LookupError != nil {
		return nil, false, m.LookupError
	}
	emb, ok := m.embeddings[hash]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(emb.Embedding), true, nil
}

func (m *MockGalleryCache) StoreEmbedding(_ context.Context, hash, identity, path string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stores++
	if m.StoreError != nil {
		return m.StoreError
	}
	m.embeddings[hash] = database.StoredEmbedding{
		Hash:      hash,
		Identity:  identity,
		Path:      path,
		Embedding: slices.Clone(embedding),
	}
	return nil
}

func (m *MockGalleryCache) CountEmbeddings(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.embeddings), nil
}

// Stats returns the lookup and store call counts.
func (m *MockGalleryCache) Stats() (lookups, stores int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Lookups, m.Stores
}

var (
	_ database.RecordStore  = (*MockRecordStore)(nil)
	_ database.GalleryCache = (*MockGalleryCache)(nil)
)
