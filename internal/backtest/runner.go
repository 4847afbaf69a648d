// Package backtest evaluates predictors against historical daily closes.
// Each session is scored the way a live round would be: outcome 1 iff the
// close printed strictly above the previous close, ties score 0.
package backtest

import (
	"context"
	"fmt"
	"time"

	"market-entropy-lab/internal/datafeed"
	"market-entropy-lab/internal/predictor"
)

// Day is one evaluated session.
type Day struct {
	Date       string
	Prediction int
	Outcome    int
	Tie        bool
	Hit        bool
}

// Results holds the evaluation output for one predictor on one ticker.
type Results struct {
	PredictorID string
	Ticker      string
	Sessions    int // sessions with a scoreable outcome
	Hits        int
	Ties        int
	HitRate     float64
	Timeline    []Day
}

// Runner evaluates predictors over a window of historical closes.
type Runner struct {
	feed datafeed.Feed
}

// NewRunner creates a new backtest runner.
func NewRunner(feed datafeed.Feed) *Runner {
	return &Runner{feed: feed}
}

// Run scores the predictor over the `days` sessions ending at `end`. The
// feed's close history is strictly-before-date, so the predictor sees only
// closes printed before the session it is predicting, the same information
// boundary a live commit has.
func (r *Runner) Run(ctx context.Context, pred predictor.Predictor, ticker string, end time.Time, days int) (*Results, error) {
	if days < 1 {
		return nil, fmt.Errorf("backtest needs at least 1 session, got %d", days)
	}

	// One extra close so the first evaluated session has a previous close.
	closes, err := r.feed.RecentCloses(ctx, ticker, end, days+1)
	if err != nil {
		return nil, fmt.Errorf("fetch closes for %s: %w", ticker, err)
	}
	if len(closes) < 2 {
		return nil, fmt.Errorf("not enough history for %s: %d closes", ticker, len(closes))
	}

	results := &Results{
		PredictorID: pred.ID(),
		Ticker:      ticker,
	}

	for i := 1; i < len(closes); i++ {
		sessionDate, err := time.Parse(datafeed.DateLayout, closes[i].Date)
		if err != nil {
			return nil, fmt.Errorf("parse close date %q: %w", closes[i].Date, err)
		}

		prediction, err := pred.Predict(ctx, ticker, sessionDate)
		if err != nil {
			return nil, fmt.Errorf("predict %s %s: %w", ticker, closes[i].Date, err)
		}

		outcome := 0
		if closes[i].Close.GreaterThan(closes[i-1].Close) {
			outcome = 1
		}
		tie := closes[i].Close.Equal(closes[i-1].Close)
		hit := prediction == outcome

		results.Sessions++
		if hit {
			results.Hits++
		}
		if tie {
			results.Ties++
		}
		results.Timeline = append(results.Timeline, Day{
			Date:       closes[i].Date,
			Prediction: prediction,
			Outcome:    outcome,
			Tie:        tie,
			Hit:        hit,
		})
	}

	if results.Sessions > 0 {
		results.HitRate = float64(results.Hits) / float64(results.Sessions)
	}
	return results, nil
}
