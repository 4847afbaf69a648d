// Package beacon fetches public randomness from a drand HTTP endpoint for
// use as the extraction seed. Any failure degrades to the fixed all-zero
// fallback seed; the seed mode always records which path was taken.
package beacon

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"market-entropy-lab/internal/domain"
)

// Default configuration values.
const (
	DefaultURL        = "https://drand.cloudflare.com/public/latest"
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 1 * time.Second
)

// Client fetches drand rounds over HTTP.
type Client struct {
	url        string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the delay between retries.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a drand beacon client. An empty url selects DefaultURL.
func NewClient(url string, opts ...ClientOption) *Client {
	if url == "" {
		url = DefaultURL
	}
	c := &Client{
		url:        url,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// round is the drand /public/latest response shape.
type round struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
	Signature  string `json:"signature"`
}

// Seed returns the latest beacon randomness as an extraction seed. On any
// fetch or parse failure it returns the fallback seed and the underlying
// error; callers may proceed with the fallback, which is deterministic and
// flagged as such.
func (c *Client) Seed(ctx context.Context) (domain.Seed, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.FallbackSeed(), ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		seed, err := c.fetch(ctx)
		if err == nil {
			return seed, nil
		}
		lastErr = err
	}
	return domain.FallbackSeed(), fmt.Errorf("fetch beacon seed: %w", lastErr)
}

func (c *Client) fetch(ctx context.Context) (domain.Seed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return domain.FallbackSeed(), fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.FallbackSeed(), fmt.Errorf("get %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.FallbackSeed(), fmt.Errorf("get %s: status %d", c.url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.FallbackSeed(), fmt.Errorf("read response: %w", err)
	}

	var r round
	if err := json.Unmarshal(body, &r); err != nil {
		return domain.FallbackSeed(), fmt.Errorf("parse response: %w", err)
	}

	value := r.Randomness
	if value == "" {
		value = r.Signature
	}
	if value == "" {
		return domain.FallbackSeed(), fmt.Errorf("response carries no randomness")
	}

	bytes, err := hex.DecodeString(value)
	if err != nil {
		// Non-hex beacon values are used verbatim, matching the archive
		// format: the seed is whatever the beacon published.
		bytes = []byte(value)
	}

	return domain.Seed{Bytes: bytes, Mode: domain.SeedModeBeacon, Source: c.url}, nil
}
