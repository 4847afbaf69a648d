package memory

import (
	"context"
	"sync"

	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
)

// EntropyLog is an in-memory implementation of storage.EntropyLog.
// Entries are held in append order and never reordered.
type EntropyLog struct {
	mu      sync.RWMutex
	entries []*domain.EntropyEntry
	byKey   map[string]struct{} // identity keys already appended
}

// NewEntropyLog creates a new in-memory entropy log.
func NewEntropyLog() *EntropyLog {
	return &EntropyLog{
		byKey: make(map[string]struct{}),
	}
}

// Append adds one entry. Returns ErrDuplicateKey if an entry already exists
// for the same (date, ticker) identity.
func (l *EntropyLog) Append(_ context.Context, e *domain.EntropyEntry) error {
	if e == nil || e.Date == "" || e.Ticker == "" {
		return storage.ErrInvalidInput
	}

	key := e.Identity().Key()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byKey[key]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *e
	l.entries = append(l.entries, &cp)
	l.byKey[key] = struct{}{}
	return nil
}

// LastN returns the most recent n entries in log order, oldest first.
func (l *EntropyLog) LastN(_ context.Context, n int) ([]*domain.EntropyEntry, error) {
	if n < 0 {
		return nil, storage.ErrInvalidInput
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	start := len(l.entries) - n
	if start < 0 {
		start = 0
	}

	result := make([]*domain.EntropyEntry, 0, len(l.entries)-start)
	for _, e := range l.entries[start:] {
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

// All returns the full log in log order, oldest first.
func (l *EntropyLog) All(_ context.Context) ([]*domain.EntropyEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*domain.EntropyEntry, 0, len(l.entries))
	for _, e := range l.entries {
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

// Count returns the number of entries.
func (l *EntropyLog) Count(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

var _ storage.EntropyLog = (*EntropyLog)(nil)
