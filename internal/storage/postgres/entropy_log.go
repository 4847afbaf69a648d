package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
)

// EntropyLog implements storage.EntropyLog using PostgreSQL. Log order is
// the seq column, a bigserial assigned at append time and never rewritten.
type EntropyLog struct {
	pool *Pool
}

// NewEntropyLog creates a new EntropyLog.
func NewEntropyLog(pool *Pool) *EntropyLog {
	return &EntropyLog{pool: pool}
}

// Compile-time interface check.
var _ storage.EntropyLog = (*EntropyLog)(nil)

// Append adds one entry. Returns ErrDuplicateKey if an entry already exists
// for the (date, ticker) identity.
func (s *EntropyLog) Append(ctx context.Context, e *domain.EntropyEntry) error {
	if e == nil || e.Date == "" || e.Ticker == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO entropy_log (
			date, ticker, prediction, outcome, symbol_bits, commit_hash,
			context, salt, prev_close, p_reveal, provider, tie,
			p_commit, commit_bar, delta, sign_bit, mag_q, symbol, appended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := s.pool.Exec(ctx, query,
		e.Date,
		e.Ticker,
		e.Prediction,
		e.Outcome,
		e.SymbolBits,
		e.CommitHash,
		e.Context,
		e.Salt,
		e.PrevClose.String(),
		e.PReveal.String(),
		e.Provider,
		e.Tie,
		e.PCommit.String(),
		e.CommitBar,
		e.Delta.String(),
		e.SignBit,
		e.MagQ,
		e.Symbol.Hex(),
		e.AppendedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("append entropy entry: %w", err)
	}
	return nil
}

const entropyColumns = `
	date, ticker, prediction, outcome, symbol_bits, commit_hash,
	context, salt, prev_close, p_reveal, provider, tie,
	p_commit, commit_bar, delta, sign_bit, mag_q, symbol, appended_at
`

// LastN returns the most recent n entries in log order, oldest first.
func (s *EntropyLog) LastN(ctx context.Context, n int) ([]*domain.EntropyEntry, error) {
	if n <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + entropyColumns + ` FROM (
			SELECT seq, ` + entropyColumns + `
			FROM entropy_log ORDER BY seq DESC LIMIT $1
		) tail ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("get last %d entropy entries: %w", n, err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// All returns the full log in log order, oldest first.
func (s *EntropyLog) All(ctx context.Context) ([]*domain.EntropyEntry, error) {
	query := `SELECT ` + entropyColumns + ` FROM entropy_log ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get entropy log: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Count returns the number of entries.
func (s *EntropyLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM entropy_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entropy entries: %w", err)
	}
	return n, nil
}

func scanEntries(rows pgx.Rows) ([]*domain.EntropyEntry, error) {
	var result []*domain.EntropyEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entropy entry: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanEntry(row pgx.Row) (*domain.EntropyEntry, error) {
	var (
		e            domain.EntropyEntry
		prevCloseStr string
		pRevealStr   string
		pCommitStr   string
		deltaStr     string
		symbolHex    string
	)

	err := row.Scan(
		&e.Date, &e.Ticker, &e.Prediction, &e.Outcome, &e.SymbolBits, &e.CommitHash,
		&e.Context, &e.Salt, &prevCloseStr, &pRevealStr, &e.Provider, &e.Tie,
		&pCommitStr, &e.CommitBar, &deltaStr, &e.SignBit, &e.MagQ, &symbolHex, &e.AppendedAt,
	)
	if err != nil {
		return nil, err
	}

	if e.PrevClose, err = decimal.NewFromString(prevCloseStr); err != nil {
		return nil, fmt.Errorf("parse prev_close: %w", err)
	}
	if e.PReveal, err = decimal.NewFromString(pRevealStr); err != nil {
		return nil, fmt.Errorf("parse p_reveal: %w", err)
	}
	if e.PCommit, err = decimal.NewFromString(pCommitStr); err != nil {
		return nil, fmt.Errorf("parse p_commit: %w", err)
	}
	if e.Delta, err = decimal.NewFromString(deltaStr); err != nil {
		return nil, fmt.Errorf("parse delta: %w", err)
	}
	if e.Symbol, err = domain.ParseSymbol(symbolHex); err != nil {
		return nil, fmt.Errorf("parse symbol: %w", err)
	}

	return &e, nil
}
