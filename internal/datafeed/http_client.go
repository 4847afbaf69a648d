package datafeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"market-entropy-lab/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
)

// HTTPFeed implements Feed against a JSON bars/closes HTTP API:
//
//	GET {base}/v1/bars?ticker=SPY&date=2024-01-15&interval=1m
//	GET {base}/v1/closes?ticker=SPY&start=2024-01-01&end=2024-01-15
type HTTPFeed struct {
	base       string
	provider   string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// FeedOption configures HTTPFeed.
type FeedOption func(*HTTPFeed)

// WithFeedTimeout sets HTTP client timeout.
func WithFeedTimeout(d time.Duration) FeedOption {
	return func(f *HTTPFeed) {
		f.client.Timeout = d
	}
}

// WithFeedMaxRetries sets maximum retry attempts.
func WithFeedMaxRetries(n int) FeedOption {
	return func(f *HTTPFeed) {
		f.maxRetries = n
	}
}

// WithFeedRetryDelay sets the delay between retries.
func WithFeedRetryDelay(d time.Duration) FeedOption {
	return func(f *HTTPFeed) {
		f.retryDelay = d
	}
}

// WithFeedHTTPClient sets a custom http.Client.
func WithFeedHTTPClient(client *http.Client) FeedOption {
	return func(f *HTTPFeed) {
		f.client = client
	}
}

// NewHTTPFeed creates a feed client for the given API base URL.
func NewHTTPFeed(base, provider string, opts ...FeedOption) *HTTPFeed {
	f := &HTTPFeed{
		base:       base,
		provider:   provider,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Provider returns the provider tag.
func (f *HTTPFeed) Provider() string { return f.provider }

// wire shapes

type barPayload struct {
	TS    string          `json:"ts"`
	Close decimal.Decimal `json:"close"`
}

type barsResponse struct {
	Bars []barPayload `json:"bars"`
}

type closePayload struct {
	Date  string          `json:"date"`
	Close decimal.Decimal `json:"close"`
}

type closesResponse struct {
	Closes []closePayload `json:"closes"`
}

// MinuteBarNear fetches the day's 1-minute bars and picks the bar nearest
// to target, rejecting anything outside the tolerance.
func (f *HTTPFeed) MinuteBarNear(ctx context.Context, ticker string, date time.Time, target time.Time, tolerance time.Duration) (*domain.Bar, error) {
	q := url.Values{}
	q.Set("ticker", ticker)
	q.Set("date", date.Format(DateLayout))
	q.Set("interval", "1m")

	var resp barsResponse
	if err := f.get(ctx, "/v1/bars", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Bars) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s on %s", ErrNoData, ticker, date.Format(DateLayout))
	}

	var best *domain.Bar
	var bestDiff time.Duration
	for _, b := range resp.Bars {
		ts, err := time.Parse(time.RFC3339, b.TS)
		if err != nil {
			continue
		}
		diff := ts.Sub(target)
		if diff < 0 {
			diff = -diff
		}
		if best == nil || diff < bestDiff {
			best = &domain.Bar{Ticker: ticker, Timestamp: b.TS, Close: b.Close}
			bestDiff = diff
		}
	}
	if best == nil || bestDiff > tolerance {
		return nil, fmt.Errorf("%w: no bar within %s of %s", ErrNoData, tolerance, target.Format(time.RFC3339))
	}
	return best, nil
}

// PrevAndTodayClose fetches the daily closes around the trade date and pairs
// the previous trading day's close with the trade date's close.
func (f *HTTPFeed) PrevAndTodayClose(ctx context.Context, ticker string, date time.Time) (*domain.ClosePair, error) {
	closes, err := f.fetchCloses(ctx, ticker, date.AddDate(0, 0, -14), date)
	if err != nil {
		return nil, err
	}

	today := date.Format(DateLayout)
	var pair domain.ClosePair
	var haveToday, havePrev bool
	for _, c := range closes {
		if c.Date == today {
			pair.TodayClose = c.Close
			haveToday = true
		} else if c.Date < today {
			// closes arrive oldest first; keep overwriting to end at the
			// last close before the trade date
			pair.PrevClose = c.Close
			havePrev = true
		}
	}
	if !haveToday || !havePrev {
		return nil, fmt.Errorf("%w: closes for %s around %s", ErrNoData, ticker, today)
	}
	return &pair, nil
}

// RecentCloses returns up to lookback daily closes strictly before end,
// oldest first.
func (f *HTTPFeed) RecentCloses(ctx context.Context, ticker string, end time.Time, lookback int) ([]domain.DailyClose, error) {
	closes, err := f.fetchCloses(ctx, ticker, end.AddDate(0, 0, -21), end)
	if err != nil {
		return nil, err
	}

	endStr := end.Format(DateLayout)
	var filtered []domain.DailyClose
	for _, c := range closes {
		if c.Date < endStr {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) > lookback {
		filtered = filtered[len(filtered)-lookback:]
	}
	return filtered, nil
}

func (f *HTTPFeed) fetchCloses(ctx context.Context, ticker string, start, end time.Time) ([]domain.DailyClose, error) {
	q := url.Values{}
	q.Set("ticker", ticker)
	q.Set("start", start.Format(DateLayout))
	q.Set("end", end.Format(DateLayout))

	var resp closesResponse
	if err := f.get(ctx, "/v1/closes", q, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.DailyClose, 0, len(resp.Closes))
	for _, c := range resp.Closes {
		out = append(out, domain.DailyClose{Date: c.Date, Close: c.Close})
	}
	return out, nil
}

// get performs a GET with retries and decodes the JSON response.
func (f *HTTPFeed) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := f.base + path + "?" + q.Encode()

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}

		err := f.getOnce(ctx, u, out)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("get %s: %w", u, lastErr)
}

func (f *HTTPFeed) getOnce(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

var _ Feed = (*HTTPFeed)(nil)
