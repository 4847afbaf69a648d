// Package stub provides a deterministic in-memory price feed for tests and
// offline runs.
package stub

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"market-entropy-lab/internal/datafeed"
	"market-entropy-lab/internal/domain"
)

// Feed is a fixture-backed implementation of datafeed.Feed.
type Feed struct {
	mu     sync.RWMutex
	bars   map[string][]domain.Bar        // "date|ticker" -> minute bars
	closes map[string][]domain.DailyClose // ticker -> daily closes, oldest first
}

// NewFeed creates an empty stub feed.
func NewFeed() *Feed {
	return &Feed{
		bars:   make(map[string][]domain.Bar),
		closes: make(map[string][]domain.DailyClose),
	}
}

// SetBars installs the minute bars for a ticker on a date.
func (f *Feed) SetBars(ticker string, date time.Time, bars []domain.Bar) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := date.Format(datafeed.DateLayout) + "|" + ticker
	f.bars[key] = append([]domain.Bar{}, bars...)
}

// SetCloses installs the daily close series for a ticker, oldest first.
func (f *Feed) SetCloses(ticker string, closes []domain.DailyClose) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]domain.DailyClose{}, closes...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Date < cp[j].Date })
	f.closes[ticker] = cp
}

// Provider returns the fixture provider tag.
func (f *Feed) Provider() string { return "stub" }

// MinuteBarNear returns the installed bar closest to target within the
// tolerance.
func (f *Feed) MinuteBarNear(_ context.Context, ticker string, date time.Time, target time.Time, tolerance time.Duration) (*domain.Bar, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	key := date.Format(datafeed.DateLayout) + "|" + ticker
	bars := f.bars[key]
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s", datafeed.ErrNoData, key)
	}

	var best *domain.Bar
	var bestDiff time.Duration
	for i := range bars {
		ts, err := time.Parse(time.RFC3339, bars[i].Timestamp)
		if err != nil {
			continue
		}
		diff := ts.Sub(target)
		if diff < 0 {
			diff = -diff
		}
		if best == nil || diff < bestDiff {
			b := bars[i]
			best = &b
			bestDiff = diff
		}
	}
	if best == nil || bestDiff > tolerance {
		return nil, fmt.Errorf("%w: no bar near %s", datafeed.ErrNoData, target.Format(time.RFC3339))
	}
	return best, nil
}

// PrevAndTodayClose pairs the last close before the trade date with the
// trade date's close.
func (f *Feed) PrevAndTodayClose(_ context.Context, ticker string, date time.Time) (*domain.ClosePair, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	today := date.Format(datafeed.DateLayout)
	var pair domain.ClosePair
	var haveToday, havePrev bool
	for _, c := range f.closes[ticker] {
		if c.Date == today {
			pair.TodayClose = c.Close
			haveToday = true
		} else if c.Date < today {
			pair.PrevClose = c.Close
			havePrev = true
		}
	}
	if !haveToday || !havePrev {
		return nil, fmt.Errorf("%w: closes for %s around %s", datafeed.ErrNoData, ticker, today)
	}
	return &pair, nil
}

// RecentCloses returns up to lookback closes strictly before end, oldest
// first.
func (f *Feed) RecentCloses(_ context.Context, ticker string, end time.Time, lookback int) ([]domain.DailyClose, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	endStr := end.Format(datafeed.DateLayout)
	var out []domain.DailyClose
	for _, c := range f.closes[ticker] {
		if c.Date < endStr {
			out = append(out, c)
		}
	}
	if len(out) > lookback {
		out = out[len(out)-lookback:]
	}
	return out, nil
}

var _ datafeed.Feed = (*Feed)(nil)
