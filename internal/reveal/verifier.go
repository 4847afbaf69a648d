// Package reveal verifies commitments after market close. It reconstructs
// the commit-time payload byte-for-byte from archived fields (plus a freshly
// re-observed commit-bar price when one is supplied), recomputes the hash,
// and accepts only on exact equality. Only accepted rounds produce a symbol
// and reach the entropy log.
package reveal

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"market-entropy-lab/internal/commitment"
	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
	"market-entropy-lab/internal/symbol"
)

// Reveal errors.
var (
	// ErrMissingCommitRound is returned when no committed round exists for
	// the identity.
	ErrMissingCommitRound = errors.New("no committed round for identity")

	// ErrCommitmentMismatch is returned when the recomputed hash disagrees
	// with the archived commitment. The round becomes rejected and
	// contributes nothing to the entropy log.
	ErrCommitmentMismatch = errors.New("commitment hash mismatch")

	// ErrAlreadyRevealed is returned when a revealed round is re-invoked
	// with different reveal inputs. Re-invocation with identical inputs is
	// idempotent and succeeds.
	ErrAlreadyRevealed = errors.New("round already revealed with different inputs")
)

// Observation carries the post-close data a reveal consumes. PCommitCheck,
// when non-nil, is a freshly re-observed commit-bar price used to rebuild
// the payload instead of the archived snapshot; verification then proves the
// archived commitment was made against the observable market record.
type Observation struct {
	PReveal      decimal.Decimal // today's close
	PrevClose    decimal.Decimal // previous trading day's close
	PCommitCheck *decimal.Decimal
}

// Config configures a Verifier.
type Config struct {
	Rounds   storage.RoundStore
	Log      storage.EntropyLog
	Provider string           // data provider tag recorded in log entries
	Now      func() time.Time // nil means time.Now
}

// Verifier runs the reveal state machine. Reveals are serialized: the store
// append and the state transition must land together, and the reference
// deployment is a single-process batch run.
type Verifier struct {
	mu       sync.Mutex
	rounds   storage.RoundStore
	log      storage.EntropyLog
	provider string
	now      func() time.Time
}

// NewVerifier creates a reveal verifier.
func NewVerifier(cfg Config) *Verifier {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		rounds:   cfg.Rounds,
		log:      cfg.Log,
		provider: cfg.Provider,
		now:      now,
	}
}

// Reveal verifies the archived commitment for the identity and, on success,
// computes the outcome fields, moves the round to revealed, and appends its
// symbol to the entropy log exactly once.
//
// Idempotence: a revealed round re-invoked with identical inputs returns the
// stored round unchanged. A rejected round re-invoked with identical inputs
// rejects again; corrected inputs are a new attempt and may verify.
func (v *Verifier) Reveal(ctx context.Context, id domain.RoundIdentity, obs Observation) (*domain.Round, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	r, err := v.rounds.GetByIdentity(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMissingCommitRound, id)
		}
		return nil, fmt.Errorf("load round: %w", err)
	}

	if r.State == domain.StateRevealed {
		if r.PReveal.Equal(obs.PReveal) && r.PrevClose.Equal(obs.PrevClose) {
			// Re-issue the append so a torn write heals on retry. The
			// duplicate-key return is the common case here.
			if err := v.log.Append(ctx, entryFromRound(r)); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				return nil, fmt.Errorf("append entropy entry: %w", err)
			}
			return r, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRevealed, id)
	}

	pCommit := r.PCommit
	if obs.PCommitCheck != nil {
		pCommit = *obs.PCommitCheck
	}

	recomputed, err := commitment.HashRound(r, pCommit)
	if err != nil {
		return nil, fmt.Errorf("recompute commit hash: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(recomputed), []byte(r.CommitHash)) != 1 {
		if rejErr := v.rounds.SetRejected(ctx, id); rejErr != nil && !errors.Is(rejErr, storage.ErrInvalidTransition) {
			return nil, fmt.Errorf("mark round rejected: %v (after %w)", rejErr, ErrCommitmentMismatch)
		}
		return nil, fmt.Errorf("%w: %s", ErrCommitmentMismatch, id)
	}

	// Accepted. Outcome resolves ties to "no rise" by the strictly-greater
	// convention; delta sign does the same.
	outcome := 0
	if obs.PReveal.GreaterThan(obs.PrevClose) {
		outcome = 1
	}
	delta := obs.PReveal.Sub(pCommit)
	sym := symbol.Encode(r.Prediction, outcome, delta)

	r.PCommit = pCommit
	r.PReveal = obs.PReveal
	r.PrevClose = obs.PrevClose
	r.Outcome = outcome
	r.Tie = obs.PReveal.Equal(obs.PrevClose)
	r.Delta = delta
	r.SignBit = sym.SignBit()
	r.MagQ = sym.MagQ()
	r.Symbol = sym
	r.Provider = v.provider
	r.RevealedAt = v.now().UTC().Truncate(time.Second)
	r.State = domain.StateRevealed

	// The log row lands before the state transition: a round must never be
	// revealed without its symbol in the log. A failure between the two
	// leaves the round committed with a log row already present, and the
	// retry's duplicate append is tolerated.
	if err := v.log.Append(ctx, entryFromRound(r)); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return nil, fmt.Errorf("append entropy entry: %w", err)
	}

	if err := v.rounds.SetRevealed(ctx, r); err != nil {
		return nil, fmt.Errorf("mark round revealed: %w", err)
	}

	return r, nil
}

// entryFromRound builds the replayable entropy log row for a revealed round.
func entryFromRound(r *domain.Round) *domain.EntropyEntry {
	return &domain.EntropyEntry{
		Date:       r.Date,
		Ticker:     r.Ticker,
		Prediction: r.Prediction,
		Outcome:    r.Outcome,
		SymbolBits: fmt.Sprintf("%d%d", r.Prediction, r.Outcome),
		CommitHash: r.CommitHash,
		Context:    r.Context,
		Salt:       r.Salt,
		PrevClose:  r.PrevClose,
		PReveal:    r.PReveal,
		Provider:   r.Provider,
		Tie:        r.Tie,
		PCommit:    r.PCommit,
		CommitBar:  r.CommitBarTS,
		Delta:      r.Delta,
		SignBit:    r.SignBit,
		MagQ:       r.MagQ,
		Symbol:     r.Symbol,
		AppendedAt: r.RevealedAt,
	}
}
