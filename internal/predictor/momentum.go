package predictor

import (
	"context"
	"fmt"
	"time"

	"market-entropy-lab/internal/datafeed"
)

// MomentumPredictor calls the direction of the most recent completed daily
// return: if the last close printed above the one before it, predict up.
// When the feed cannot supply two prior closes it defaults to up, so a cold
// data store never blocks the commit window.
type MomentumPredictor struct {
	feed     datafeed.Feed
	lookback int
}

// NewMomentumPredictor creates a momentum predictor over the given feed.
func NewMomentumPredictor(feed datafeed.Feed, lookback int) *MomentumPredictor {
	if lookback < 2 {
		lookback = 2
	}
	return &MomentumPredictor{feed: feed, lookback: lookback}
}

// ID returns the predictor identifier.
func (p *MomentumPredictor) ID() string {
	return fmt.Sprintf("momentum_lookback%d", p.lookback)
}

// Predict returns 1 when the last completed daily return is positive.
func (p *MomentumPredictor) Predict(ctx context.Context, ticker string, date time.Time) (int, error) {
	closes, err := p.feed.RecentCloses(ctx, ticker, date, p.lookback)
	if err != nil {
		return 1, nil
	}
	if len(closes) < 2 {
		return 1, nil
	}
	last := closes[len(closes)-1].Close
	prev := closes[len(closes)-2].Close
	if last.GreaterThan(prev) {
		return 1, nil
	}
	return 0, nil
}

var _ Predictor = (*MomentumPredictor)(nil)

// FixedPredictor always returns the same direction. Used for dry runs and
// as the always_up / always_down factory types.
type FixedPredictor struct {
	direction int
}

// NewFixedPredictor creates a predictor pinned to direction (0 or 1).
func NewFixedPredictor(direction int) *FixedPredictor {
	if direction != 0 {
		direction = 1
	}
	return &FixedPredictor{direction: direction}
}

// ID returns the predictor identifier.
func (p *FixedPredictor) ID() string {
	if p.direction == 1 {
		return "always_up"
	}
	return "always_down"
}

// Predict returns the pinned direction.
func (p *FixedPredictor) Predict(_ context.Context, _ string, _ time.Time) (int, error) {
	return p.direction, nil
}

var _ Predictor = (*FixedPredictor)(nil)
