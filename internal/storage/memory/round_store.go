package memory

import (
	"context"
	"sort"
	"sync"

	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
)

// RoundStore is an in-memory implementation of storage.RoundStore.
type RoundStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Round // keyed by identity key
}

// NewRoundStore creates a new in-memory round store.
func NewRoundStore() *RoundStore {
	return &RoundStore{
		data: make(map[string]*domain.Round),
	}
}

// Insert adds a newly committed round. Returns ErrDuplicateKey if exists.
func (s *RoundStore) Insert(_ context.Context, r *domain.Round) error {
	if r == nil || r.Date == "" || r.Ticker == "" {
		return storage.ErrInvalidInput
	}

	key := r.Identity().Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *r
	s.data[key] = &cp
	return nil
}

// GetByIdentity retrieves a round. Returns ErrNotFound if not exists.
func (s *RoundStore) GetByIdentity(_ context.Context, id domain.RoundIdentity) (*domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[id.Key()]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// GetByDate retrieves all rounds for a trade date, ordered by ticker.
func (s *RoundStore) GetByDate(_ context.Context, date string) ([]*domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Round
	for _, r := range s.data {
		if r.Date == date {
			cp := *r
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Ticker < result[j].Ticker
	})

	return result, nil
}

// SetRevealed writes the reveal-phase fields and moves the round to
// StateRevealed.
func (s *RoundStore) SetRevealed(_ context.Context, r *domain.Round) error {
	if r == nil || r.Date == "" || r.Ticker == "" {
		return storage.ErrInvalidInput
	}

	key := r.Identity().Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.data[key]
	if !exists {
		return storage.ErrNotFound
	}
	if stored.State == domain.StateRevealed {
		return storage.ErrInvalidTransition
	}

	cp := *r
	cp.State = domain.StateRevealed
	s.data[key] = &cp
	return nil
}

// SetRejected moves the round to StateRejected.
func (s *RoundStore) SetRejected(_ context.Context, id domain.RoundIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.data[id.Key()]
	if !exists {
		return storage.ErrNotFound
	}
	if stored.State == domain.StateRevealed {
		return storage.ErrInvalidTransition
	}

	stored.State = domain.StateRejected
	return nil
}

var _ storage.RoundStore = (*RoundStore)(nil)
