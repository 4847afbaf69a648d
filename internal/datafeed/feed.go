// Package datafeed supplies market price observations to the commit and
// reveal paths. The core never fetches anything itself; it consumes
// already-resolved values through the Feed capability.
package datafeed

import (
	"context"
	"errors"
	"time"

	"market-entropy-lab/internal/domain"
)

// Feed errors.
var (
	// ErrNoData is returned when the provider has no observation matching
	// the request (missing bar, unknown ticker, no close yet).
	ErrNoData = errors.New("no data for request")
)

// DateLayout is the wire format of trade dates.
const DateLayout = "2006-01-02"

// Feed provides price observations for one data provider.
type Feed interface {
	// MinuteBarNear returns the 1-minute bar closest to target within the
	// tolerance, for the ticker on the trade date. Returns ErrNoData when
	// no bar lands inside the tolerance.
	MinuteBarNear(ctx context.Context, ticker string, date time.Time, target time.Time, tolerance time.Duration) (*domain.Bar, error)

	// PrevAndTodayClose returns the previous trading day's close and the
	// trade date's close. Returns ErrNoData when either is missing.
	PrevAndTodayClose(ctx context.Context, ticker string, date time.Time) (*domain.ClosePair, error)

	// RecentCloses returns up to lookback daily closes strictly before
	// end, oldest first.
	RecentCloses(ctx context.Context, ticker string, end time.Time, lookback int) ([]domain.DailyClose, error)

	// Provider returns the provider tag recorded on revealed rounds.
	Provider() string
}
