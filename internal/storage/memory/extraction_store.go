package memory

import (
	"context"
	"sort"
	"sync"

	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
)

// ExtractionStore is an in-memory implementation of storage.ExtractionStore.
type ExtractionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ExtractionRecord // keyed by run_id
}

// NewExtractionStore creates a new in-memory extraction store.
func NewExtractionStore() *ExtractionStore {
	return &ExtractionStore{
		data: make(map[string]*domain.ExtractionRecord),
	}
}

// Insert adds a new record. Returns ErrDuplicateKey if run_id exists.
func (s *ExtractionStore) Insert(_ context.Context, rec *domain.ExtractionRecord) error {
	if rec == nil || rec.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[rec.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *rec
	s.data[rec.RunID] = &cp
	return nil
}

// GetByDate retrieves all records for a trade date, newest first.
func (s *ExtractionStore) GetByDate(_ context.Context, date string) ([]*domain.ExtractionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExtractionRecord
	for _, rec := range s.data {
		if rec.Date == date {
			cp := *rec
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].GeneratedAt.After(result[j].GeneratedAt)
	})

	return result, nil
}

var _ storage.ExtractionStore = (*ExtractionStore)(nil)
