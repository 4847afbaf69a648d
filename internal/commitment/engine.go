// Package commitment builds binding commitments over predictions and
// pre-close price snapshots. A commitment hash published before market close
// pins the prediction without disclosing it; the reveal path later
// reconstructs the exact payload and checks the hash.
package commitment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"market-entropy-lab/internal/canonical"
	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
)

// Commitment errors.
var (
	// ErrDuplicateRound is returned when a commitment already exists for
	// the (date, ticker) identity. First writer wins; no state changes.
	ErrDuplicateRound = errors.New("round already committed for identity")

	// ErrInvalidPrediction is returned when the prediction is not 0 or 1.
	ErrInvalidPrediction = errors.New("prediction must be 0 or 1")

	// ErrInvalidPrice is returned when the commit price is not positive.
	ErrInvalidPrice = errors.New("commit price must be positive")
)

// CommitTimeLayout is the pinned serialization of the UTC commit timestamp
// inside the canonical payload.
const CommitTimeLayout = time.RFC3339

// CommitInput carries everything the engine needs for one commitment.
// The price snapshot comes from an external data feed; the engine holds no
// fetching logic of its own.
type CommitInput struct {
	Ticker      string
	Date        string          // trade date, ISO-8601
	Prediction  int             // 0 or 1
	PCommit     decimal.Decimal // pre-close bar price
	CommitBarTS string          // bar timestamp, exchange-local ISO-8601
}

// Config configures a commitment Engine.
type Config struct {
	Rounds          storage.RoundStore
	Salts           SaltDeriver
	Exchanges       map[string]string // ticker -> exchange, e.g. "AAPL" -> "NASDAQ"
	DefaultExchange string            // used when a ticker has no mapping
	Now             func() time.Time  // nil means time.Now
}

// Engine produces committed rounds.
type Engine struct {
	rounds          storage.RoundStore
	salts           SaltDeriver
	exchanges       map[string]string
	defaultExchange string
	now             func() time.Time
}

// NewEngine creates a commitment engine.
func NewEngine(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		rounds:          cfg.Rounds,
		salts:           cfg.Salts,
		exchanges:       cfg.Exchanges,
		defaultExchange: cfg.DefaultExchange,
		now:             now,
	}
}

// Context returns the per-round context string `date|ticker|exchange|close`.
func (e *Engine) Context(date, ticker string) string {
	exchange := e.defaultExchange
	if ex, ok := e.exchanges[ticker]; ok {
		exchange = ex
	}
	return fmt.Sprintf("%s|%s|%s|close", date, ticker, exchange)
}

// Commit derives the salt and context, builds the canonical payload, hashes
// it, and persists the round in committed state. Only the Public projection
// of the returned round is meant for publication before reveal.
func (e *Engine) Commit(ctx context.Context, in CommitInput) (*domain.Round, error) {
	if in.Prediction != 0 && in.Prediction != 1 {
		return nil, ErrInvalidPrediction
	}
	if !in.PCommit.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if in.Ticker == "" || in.Date == "" || in.CommitBarTS == "" {
		return nil, fmt.Errorf("%w: ticker, date and commit bar timestamp are required", storage.ErrInvalidInput)
	}

	roundCtx := e.Context(in.Date, in.Ticker)
	salt := e.salts.Derive(roundCtx)
	committedAt := e.now().UTC().Truncate(time.Second)

	r := &domain.Round{
		Date:        in.Date,
		Ticker:      in.Ticker,
		State:       domain.StateCommitted,
		Prediction:  in.Prediction,
		PCommit:     in.PCommit,
		CommitBarTS: in.CommitBarTS,
		CommittedAt: committedAt,
		Salt:        hex.EncodeToString(salt),
		Context:     roundCtx,
	}

	hash, err := HashRound(r, r.PCommit)
	if err != nil {
		return nil, fmt.Errorf("hash commit payload: %w", err)
	}
	r.CommitHash = hash

	if err := e.rounds.Insert(ctx, r); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRound, r.Identity())
		}
		return nil, fmt.Errorf("insert round: %w", err)
	}

	return r, nil
}

// PayloadFor reconstructs the canonical commit payload for a round, with the
// given commit price. The reveal path passes a freshly re-observed price
// here; commit passes the snapshot it was handed.
func PayloadFor(r *domain.Round, pCommit decimal.Decimal) canonical.Payload {
	return canonical.Payload{
		Ticker:        r.Ticker,
		Prediction:    r.Prediction,
		PCommit:       pCommit,
		CommitBarTS:   r.CommitBarTS,
		CommitTimeUTC: r.CommittedAt.UTC().Format(CommitTimeLayout),
		Salt:          r.Salt,
		Context:       r.Context,
	}
}

// HashRound computes the hex SHA-256 commitment hash of a round's canonical
// payload, using the given commit price.
func HashRound(r *domain.Round, pCommit decimal.Decimal) (string, error) {
	payload, err := canonical.Encode(PayloadFor(r, pCommit))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
