package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
)

// RoundStore implements storage.RoundStore using PostgreSQL.
//
// Prices are stored as their pinned fixed-point strings, never as floats;
// the archive must reproduce the committed byte sequence exactly.
type RoundStore struct {
	pool *Pool
}

// NewRoundStore creates a new RoundStore.
func NewRoundStore(pool *Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RoundStore = (*RoundStore)(nil)

// Insert adds a newly committed round. Returns ErrDuplicateKey if a round
// already exists for the (date, ticker) identity.
func (s *RoundStore) Insert(ctx context.Context, r *domain.Round) error {
	if r == nil || r.Date == "" || r.Ticker == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO rounds (
			date, ticker, state, prediction, p_commit, commit_bar_ts,
			committed_at, salt, context, commit_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		r.Date,
		r.Ticker,
		string(r.State),
		r.Prediction,
		r.PCommit.String(),
		r.CommitBarTS,
		r.CommittedAt,
		r.Salt,
		r.Context,
		r.CommitHash,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

const roundColumns = `
	date, ticker, state, prediction, p_commit, commit_bar_ts,
	committed_at, salt, context, commit_hash,
	p_reveal, prev_close, outcome, tie, delta, sign_bit, mag_q,
	symbol, provider, revealed_at
`

// GetByIdentity retrieves a round. Returns ErrNotFound if not exists.
func (s *RoundStore) GetByIdentity(ctx context.Context, id domain.RoundIdentity) (*domain.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE date = $1 AND ticker = $2`

	row := s.pool.QueryRow(ctx, query, id.Date, id.Ticker)
	r, err := scanRound(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get round by identity: %w", err)
	}
	return r, nil
}

// GetByDate retrieves all rounds for a trade date, ordered by ticker.
func (s *RoundStore) GetByDate(ctx context.Context, date string) ([]*domain.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE date = $1 ORDER BY ticker ASC`

	rows, err := s.pool.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("get rounds by date: %w", err)
	}
	defer rows.Close()

	var result []*domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// SetRevealed writes the reveal-phase fields and moves the round to
// StateRevealed. Returns ErrInvalidTransition if already revealed.
func (s *RoundStore) SetRevealed(ctx context.Context, r *domain.Round) error {
	if r == nil || r.Date == "" || r.Ticker == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE rounds SET
			state = $3, p_commit = $4, p_reveal = $5, prev_close = $6,
			outcome = $7, tie = $8, delta = $9, sign_bit = $10, mag_q = $11,
			symbol = $12, provider = $13, revealed_at = $14
		WHERE date = $1 AND ticker = $2 AND state <> $3
	`

	tag, err := s.pool.Exec(ctx, query,
		r.Date,
		r.Ticker,
		string(domain.StateRevealed),
		r.PCommit.String(),
		r.PReveal.String(),
		r.PrevClose.String(),
		r.Outcome,
		r.Tie,
		r.Delta.String(),
		r.SignBit,
		r.MagQ,
		r.Symbol.Hex(),
		r.Provider,
		r.RevealedAt,
	)
	if err != nil {
		return fmt.Errorf("set round revealed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, r.Identity())
	}
	return nil
}

// SetRejected moves the round to StateRejected. Refuses on revealed rounds.
func (s *RoundStore) SetRejected(ctx context.Context, id domain.RoundIdentity) error {
	query := `
		UPDATE rounds SET state = $3
		WHERE date = $1 AND ticker = $2 AND state <> $4
	`

	tag, err := s.pool.Exec(ctx, query,
		id.Date, id.Ticker, string(domain.StateRejected), string(domain.StateRevealed))
	if err != nil {
		return fmt.Errorf("set round rejected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

// transitionError distinguishes a missing round from a completed one after
// a guarded update matched nothing.
func (s *RoundStore) transitionError(ctx context.Context, id domain.RoundIdentity) error {
	var state string
	err := s.pool.QueryRow(ctx, `SELECT state FROM rounds WHERE date = $1 AND ticker = $2`,
		id.Date, id.Ticker).Scan(&state)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("probe round state: %w", err)
	}
	return storage.ErrInvalidTransition
}

// scanRound scans a single row into a Round.
func scanRound(row pgx.Row) (*domain.Round, error) {
	var (
		r            domain.Round
		state        string
		pCommitStr   string
		pRevealStr   *string
		prevCloseStr *string
		deltaStr     *string
		outcome      *int
		tie          *bool
		signBit      *int
		magQ         *int
		symbolHex    *string
		provider     *string
		revealedAt   *time.Time
	)

	err := row.Scan(
		&r.Date, &r.Ticker, &state, &r.Prediction, &pCommitStr, &r.CommitBarTS,
		&r.CommittedAt, &r.Salt, &r.Context, &r.CommitHash,
		&pRevealStr, &prevCloseStr, &outcome, &tie, &deltaStr, &signBit, &magQ,
		&symbolHex, &provider, &revealedAt,
	)
	if err != nil {
		return nil, err
	}

	r.State = domain.RoundState(state)
	if r.PCommit, err = decimal.NewFromString(pCommitStr); err != nil {
		return nil, fmt.Errorf("parse p_commit: %w", err)
	}

	if pRevealStr != nil {
		if r.PReveal, err = decimal.NewFromString(*pRevealStr); err != nil {
			return nil, fmt.Errorf("parse p_reveal: %w", err)
		}
	}
	if prevCloseStr != nil {
		if r.PrevClose, err = decimal.NewFromString(*prevCloseStr); err != nil {
			return nil, fmt.Errorf("parse prev_close: %w", err)
		}
	}
	if deltaStr != nil {
		if r.Delta, err = decimal.NewFromString(*deltaStr); err != nil {
			return nil, fmt.Errorf("parse delta: %w", err)
		}
	}
	if outcome != nil {
		r.Outcome = *outcome
	}
	if tie != nil {
		r.Tie = *tie
	}
	if signBit != nil {
		r.SignBit = *signBit
	}
	if magQ != nil {
		r.MagQ = *magQ
	}
	if symbolHex != nil && *symbolHex != "" {
		if r.Symbol, err = domain.ParseSymbol(*symbolHex); err != nil {
			return nil, fmt.Errorf("parse symbol: %w", err)
		}
	}
	if provider != nil {
		r.Provider = *provider
	}
	if revealedAt != nil {
		r.RevealedAt = *revealedAt
	}

	return &r, nil
}
