// Package ingestion captures live minute bars off the market data stream and
// archives them, so that commit-bar selection can be audited against the
// exact bars that printed during the session.
package ingestion

import (
	"context"
	"errors"
	"log"
	"time"

	"market-entropy-lab/internal/domain"
)

// BarSource is a live stream of minute bars. *datafeed.WSStream satisfies it.
type BarSource interface {
	Bars() <-chan domain.Bar
	Done() <-chan struct{}
}

// BarArchive persists captured bars. *clickhouse.BarStore satisfies it.
type BarArchive interface {
	InsertBars(ctx context.Context, date, provider string, bars []*domain.Bar) error
}

// Runner buffers streamed bars and flushes them to the archive in batches.
type Runner struct {
	source        BarSource
	archive       BarArchive
	provider      string
	flushInterval time.Duration
	batchSize     int
	logger        *log.Logger
	now           func() time.Time
	location      *time.Location

	buffer []*domain.Bar
	seen   map[string]struct{} // ticker|bar_ts within the current session
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source        BarSource
	Archive       BarArchive
	Provider      string
	FlushInterval time.Duration // Default: 15s
	BatchSize     int           // Flush early past this many buffered bars. Default: 256
	Logger        *log.Logger
	Now           func() time.Time
	Location      *time.Location // trade-date zone. Default: UTC
}

// NewRunner creates a new bar capture runner.
func NewRunner(opts RunnerOptions) *Runner {
	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = 15 * time.Second
	}

	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = 256
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	location := opts.Location
	if location == nil {
		location = time.UTC
	}

	return &Runner{
		source:        opts.Source,
		archive:       opts.Archive,
		provider:      opts.Provider,
		flushInterval: flushInterval,
		batchSize:     batchSize,
		logger:        logger,
		now:           now,
		location:      location,
		seen:          make(map[string]struct{}),
	}
}

// Run consumes the stream until the context is cancelled or the source
// closes. Buffered bars are flushed before returning.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Printf("[ingestion] runner started, flush interval %v, batch size %d", r.flushInterval, r.batchSize)

	flushTicker := time.NewTicker(r.flushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flush(context.WithoutCancel(ctx))
			r.logger.Println("[ingestion] runner stopping")
			return ctx.Err()

		case <-r.source.Done():
			r.flush(ctx)
			return errors.New("bar stream closed")

		case bar, ok := <-r.source.Bars():
			if !ok {
				r.flush(ctx)
				return errors.New("bar stream closed")
			}
			r.bufferBar(ctx, bar)

		case <-flushTicker.C:
			r.flush(ctx)
		}
	}
}

func (r *Runner) bufferBar(ctx context.Context, bar domain.Bar) {
	if bar.Ticker == "" || bar.Timestamp == "" {
		return
	}

	key := bar.Ticker + "|" + bar.Timestamp
	if _, dup := r.seen[key]; dup {
		return
	}
	r.seen[key] = struct{}{}

	b := bar
	r.buffer = append(r.buffer, &b)

	if len(r.buffer) >= r.batchSize {
		r.flush(ctx)
	}
}

// flush sorts and writes the buffered bars. On error the batch is kept for
// the next attempt; the archive dedupes, so a partial write is safe to retry.
func (r *Runner) flush(ctx context.Context) {
	if len(r.buffer) == 0 {
		return
	}

	SortBars(r.buffer)

	date := r.now().In(r.location).Format("2006-01-02")
	if err := r.archive.InsertBars(ctx, date, r.provider, r.buffer); err != nil {
		r.logger.Printf("[ingestion] flush of %d bars failed: %v", len(r.buffer), err)
		return
	}

	r.logger.Printf("[ingestion] archived %d bars for %s", len(r.buffer), date)
	r.buffer = r.buffer[:0]
}
