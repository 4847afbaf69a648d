package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"market-entropy-lab/internal/domain"
)

// BarStore archives observed minute bars so commit-bar selection stays
// auditable after the fact. The table dedupes on (ticker, date, bar_ts),
// so re-ingesting a session is safe.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// InsertBars archives a batch of bars for a ticker on a trade date.
func (s *BarStore) InsertBars(ctx context.Context, date, provider string, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO minute_bars (ticker, date, bar_ts, close, provider)
	`)
	if err != nil {
		return fmt.Errorf("prepare bar batch: %w", err)
	}

	for _, b := range bars {
		if err := batch.Append(b.Ticker, date, b.Timestamp, b.Close.String(), provider); err != nil {
			return fmt.Errorf("append bar %s/%s: %w", b.Ticker, b.Timestamp, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send bar batch: %w", err)
	}
	return nil
}

// GetBars returns the archived bars for a ticker on a trade date, in bar
// timestamp order.
func (s *BarStore) GetBars(ctx context.Context, ticker, date string) ([]*domain.Bar, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT ticker, bar_ts, close
		FROM minute_bars FINAL
		WHERE ticker = ? AND date = ?
		ORDER BY bar_ts ASC
	`, ticker, date)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []*domain.Bar
	for rows.Next() {
		var b domain.Bar
		var closeStr string
		if err := rows.Scan(&b.Ticker, &b.Timestamp, &closeStr); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		if b.Close, err = decimal.NewFromString(closeStr); err != nil {
			return nil, fmt.Errorf("parse bar close: %w", err)
		}
		bars = append(bars, &b)
	}
	return bars, rows.Err()
}
