package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RoundState is the lifecycle state of a commit/reveal round.
type RoundState string

// Round lifecycle states. A round is created as committed, and moves to
// revealed only after its commitment hash has been independently re-derived
// and matched. A failed verification moves it to rejected.
const (
	StateCommitted RoundState = "committed"
	StateRevealed  RoundState = "revealed"
	StateRejected  RoundState = "rejected"
)

// RoundIdentity uniquely identifies one commit/reveal cycle:
// one ticker on one trade date. At most one accepted commitment
// may exist per identity.
type RoundIdentity struct {
	Date   string // trade date, ISO-8601 (YYYY-MM-DD)
	Ticker string // instrument symbol, e.g. "SPY"
}

// Key returns the canonical composite key for the identity.
func (id RoundIdentity) Key() string {
	return fmt.Sprintf("%s|%s", id.Date, id.Ticker)
}

func (id RoundIdentity) String() string { return id.Key() }

// Round represents one commit/reveal cycle for one ticker on one date.
// Commit-phase fields are immutable once written; reveal-phase fields are
// written exactly once, on successful verification.
type Round struct {
	// Identity
	Date   string // trade date, ISO-8601
	Ticker string // instrument symbol

	State RoundState

	// Commit phase
	Prediction  int             // 0 = down/flat, 1 = up
	PCommit     decimal.Decimal // commit-bar price snapshot
	CommitBarTS string          // commit bar timestamp, ISO-8601, exchange-local zone
	CommittedAt time.Time       // commit wall time, UTC
	Salt        string          // hex, 16 bytes = 32 hex chars
	Context     string          // date|ticker|exchange|close
	CommitHash  string          // hex, SHA-256 of the canonical payload

	// Reveal phase (zero-valued until State == StateRevealed)
	PReveal    decimal.Decimal // today's close
	PrevClose  decimal.Decimal // previous trading day's close
	Outcome    int             // 1 iff p_reveal > prev_close
	Tie        bool            // p_reveal == prev_close
	Delta      decimal.Decimal // p_reveal - p_commit
	SignBit    int             // 1 iff delta > 0
	MagQ       int             // min(floor(|delta|*100), 255)
	Symbol     Symbol          // [prediction, outcome, sign_bit, mag_q]
	Provider   string          // price data provider identifier
	RevealedAt time.Time       // reveal wall time, UTC
}

// Identity returns the round's (date, ticker) identity.
func (r *Round) Identity() RoundIdentity {
	return RoundIdentity{Date: r.Date, Ticker: r.Ticker}
}

// PublicRound is the projection of a round that is safe to publish before
// reveal. The prediction, price snapshot, and salt stay private; only the
// binding hash and the bar timestamp it covers go out.
type PublicRound struct {
	Date        string
	Ticker      string
	CommitHash  string
	CommitBarTS string
	CommittedAt time.Time
}

// Public returns the publishable projection of the round. Withholding the
// remaining fields until reveal is the caller's responsibility; the round
// itself carries no secrecy mechanism beyond this projection.
func (r *Round) Public() PublicRound {
	return PublicRound{
		Date:        r.Date,
		Ticker:      r.Ticker,
		CommitHash:  r.CommitHash,
		CommitBarTS: r.CommitBarTS,
		CommittedAt: r.CommittedAt,
	}
}
