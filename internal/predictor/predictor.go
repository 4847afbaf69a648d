// Package predictor produces the binary direction call archived at commit
// time. Predictions are made strictly from information available before the
// commit bar, so the archived value can never leak the outcome.
package predictor

import (
	"context"
	"errors"
	"time"

	"market-entropy-lab/internal/datafeed"
)

// Factory errors
var (
	ErrUnknownPredictorType = errors.New("unknown predictor type")
)

// DefaultLookback is how many daily closes the momentum predictor asks for.
const DefaultLookback = 5

// Predictor decides whether today's close will print above yesterday's.
type Predictor interface {
	// Predict returns 1 for up, 0 for not-up, for the ticker on the trade
	// date.
	Predict(ctx context.Context, ticker string, date time.Time) (int, error)

	// ID returns the predictor identifier (includes parameters).
	ID() string
}

// FromConfig creates a Predictor by type name.
func FromConfig(kind string, feed datafeed.Feed) (Predictor, error) {
	switch kind {
	case "momentum", "":
		return NewMomentumPredictor(feed, DefaultLookback), nil
	case "always_up":
		return NewFixedPredictor(1), nil
	case "always_down":
		return NewFixedPredictor(0), nil
	default:
		return nil, ErrUnknownPredictorType
	}
}
