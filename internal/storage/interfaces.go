package storage

import (
	"context"

	"market-entropy-lab/internal/domain"
)

// RoundStore provides access to commit/reveal round storage.
// Commit fields are immutable after Insert; reveal fields are written once.
type RoundStore interface {
	// Insert adds a newly committed round. Returns ErrDuplicateKey if a
	// round already exists for the same (date, ticker) identity.
	Insert(ctx context.Context, r *domain.Round) error

	// GetByIdentity retrieves a round. Returns ErrNotFound if not exists.
	GetByIdentity(ctx context.Context, id domain.RoundIdentity) (*domain.Round, error)

	// GetByDate retrieves all rounds for a trade date, ordered by ticker.
	GetByDate(ctx context.Context, date string) ([]*domain.Round, error)

	// SetRevealed writes the reveal-phase fields and moves the round to
	// StateRevealed. Returns ErrInvalidTransition if the stored round is
	// already revealed.
	SetRevealed(ctx context.Context, r *domain.Round) error

	// SetRejected moves the round to StateRejected. A rejected round keeps
	// its commit fields and never gains reveal fields.
	SetRejected(ctx context.Context, id domain.RoundIdentity) error
}

// EntropyLog is the ordered, append-only symbol history. Order is append
// order and is never rewritten. At most one entry exists per round identity,
// which makes reveal idempotent at the log level.
type EntropyLog interface {
	// Append adds one entry. Returns ErrDuplicateKey if an entry already
	// exists for the same (date, ticker) identity.
	Append(ctx context.Context, e *domain.EntropyEntry) error

	// LastN returns the most recent n entries in log order, oldest first.
	// A log shorter than n returns everything it has.
	LastN(ctx context.Context, n int) ([]*domain.EntropyEntry, error)

	// All returns the full log in log order, oldest first.
	All(ctx context.Context) ([]*domain.EntropyEntry, error)

	// Count returns the number of entries.
	Count(ctx context.Context) (int, error)
}

// ExtractionStore persists extraction run artifacts.
type ExtractionStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, rec *domain.ExtractionRecord) error

	// GetByDate retrieves all records for a trade date, newest first.
	GetByDate(ctx context.Context, date string) ([]*domain.ExtractionRecord, error)
}
