// Package workflow provides end-to-end daily run orchestration.
// It coordinates: predict → commit → reveal → extract across the ticker set.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"market-entropy-lab/internal/calendar"
	"market-entropy-lab/internal/commitment"
	"market-entropy-lab/internal/datafeed"
	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/extract"
	"market-entropy-lab/internal/observability"
	"market-entropy-lab/internal/predictor"
	"market-entropy-lab/internal/reveal"
	"market-entropy-lab/internal/storage"
)

// Runner errors
var (
	// ErrNotTradingDay is returned when the date is a weekend or market
	// holiday and Force is not set.
	ErrNotTradingDay = errors.New("not a trading day")

	// ErrOutsideWindow is returned when the phase is invoked outside its
	// scheduled window and Force is not set.
	ErrOutsideWindow = errors.New("outside scheduled window")
)

// Seeder supplies the extraction seed. Satisfied by beacon.Client.
type Seeder interface {
	Seed(ctx context.Context) (domain.Seed, error)
}

// Options for creating a Runner.
type Options struct {
	// Required stores
	Rounds      storage.RoundStore
	Log         storage.EntropyLog
	Extractions storage.ExtractionStore

	// Required collaborators
	Engine    *commitment.Engine
	Verifier  *reveal.Verifier
	Feed      datafeed.Feed
	Predictor predictor.Predictor
	Seeder    Seeder

	// Run scope
	Tickers  []string
	Schedule Schedule

	// Options
	Force   bool // bypass trading-day and window gates
	Verbose bool
	Now     func() time.Time // nil means time.Now
}

// Runner executes the daily protocol phases for a fixed ticker set.
type Runner struct {
	rounds      storage.RoundStore
	entropyLog  storage.EntropyLog
	extractions storage.ExtractionStore
	engine      *commitment.Engine
	verifier    *reveal.Verifier
	feed        datafeed.Feed
	predictor   predictor.Predictor
	seeder      Seeder
	tickers     []string
	schedule    Schedule
	force       bool
	verbose     bool
	now         func() time.Time
}

// New creates a Runner.
func New(opts Options) *Runner {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		rounds:      opts.Rounds,
		entropyLog:  opts.Log,
		extractions: opts.Extractions,
		engine:      opts.Engine,
		verifier:    opts.Verifier,
		feed:        opts.Feed,
		predictor:   opts.Predictor,
		seeder:      opts.Seeder,
		tickers:     opts.Tickers,
		schedule:    opts.Schedule,
		force:       opts.Force,
		verbose:     opts.Verbose,
		now:         now,
	}
}

// CommitResult summarizes one commit run.
type CommitResult struct {
	Committed []*domain.PublicRound
	Skipped   int // already-committed identities
	Errors    []string
}

// RevealResult summarizes one reveal run.
type RevealResult struct {
	Revealed []*domain.Round
	Rejected int
	Errors   []string
}

// RunCommit snapshots the pre-close bar for every ticker and archives a
// committed round per identity. Already-committed identities are skipped,
// so re-running inside the window is safe.
func (r *Runner) RunCommit(ctx context.Context, date time.Time) (*CommitResult, error) {
	if err := r.gate(date, r.schedule.InCommitWindow); err != nil {
		return nil, err
	}

	dateStr := date.Format(datafeed.DateLayout)
	target := r.schedule.CommitTargetTime(date)
	result := &CommitResult{}

	r.log("commit run for %s: %d tickers, target bar %s",
		dateStr, len(r.tickers), target.Format(time.RFC3339))

	for _, ticker := range r.tickers {
		prediction, err := r.predictor.Predict(ctx, ticker, date)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("predict %s: %v", ticker, err))
			observability.RecordCommitError("predict")
			continue
		}

		start := time.Now()
		bar, err := r.feed.MinuteBarNear(ctx, ticker, date, target, r.schedule.BarTolerance)
		observability.RecordFeedRequest(r.feed.Provider(), "minute_bar", time.Since(start).Seconds(), err)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("commit bar %s: %v", ticker, err))
			observability.RecordCommitError("feed")
			continue
		}

		round, err := r.engine.Commit(ctx, commitment.CommitInput{
			Ticker:      ticker,
			Date:        dateStr,
			Prediction:  prediction,
			PCommit:     bar.Close,
			CommitBarTS: bar.Timestamp,
		})
		if err != nil {
			if errors.Is(err, commitment.ErrDuplicateRound) {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("commit %s: %v", ticker, err))
			observability.RecordCommitError("engine")
			continue
		}

		pub := round.Public()
		result.Committed = append(result.Committed, &pub)
		observability.RecordCommit()
		r.log("  committed %s|%s hash=%s", dateStr, ticker, round.CommitHash)
	}

	if len(result.Committed) > 0 {
		observability.DefaultMetrics.LastSuccessfulCommit.Set(float64(r.now().Unix()))
	}
	return result, nil
}

// RunReveal verifies every committed round for the date against the
// official closes and appends verified symbols to the entropy log. The
// commit-bar price is re-observed from the feed so verification proves the
// archived commitment matches the market record, not just the archive.
func (r *Runner) RunReveal(ctx context.Context, date time.Time) (*RevealResult, error) {
	if err := r.gate(date, r.schedule.InRevealWindow); err != nil {
		return nil, err
	}

	dateStr := date.Format(datafeed.DateLayout)
	target := r.schedule.CommitTargetTime(date)
	result := &RevealResult{}

	rounds, err := r.rounds.GetByDate(ctx, dateStr)
	if err != nil {
		return nil, fmt.Errorf("load rounds for %s: %w", dateStr, err)
	}
	r.log("reveal run for %s: %d committed rounds", dateStr, len(rounds))

	for _, round := range rounds {
		if round.State == domain.StateRevealed {
			continue
		}
		ticker := round.Ticker

		start := time.Now()
		pair, err := r.feed.PrevAndTodayClose(ctx, ticker, date)
		observability.RecordFeedRequest(r.feed.Provider(), "closes", time.Since(start).Seconds(), err)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("closes %s: %v", ticker, err))
			observability.RecordReveal("error")
			continue
		}

		obs := reveal.Observation{
			PReveal:   pair.TodayClose,
			PrevClose: pair.PrevClose,
		}
		if bar, err := r.feed.MinuteBarNear(ctx, ticker, date, target, r.schedule.BarTolerance); err == nil {
			px := bar.Close
			obs.PCommitCheck = &px
		}

		revealed, err := r.verifier.Reveal(ctx, round.Identity(), obs)
		if err != nil {
			if errors.Is(err, reveal.ErrCommitmentMismatch) {
				result.Rejected++
				observability.RecordReveal("rejected")
				r.log("  REJECTED %s|%s: commitment mismatch", dateStr, ticker)
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("reveal %s: %v", ticker, err))
			observability.RecordReveal("error")
			continue
		}

		result.Revealed = append(result.Revealed, revealed)
		observability.RecordReveal("revealed")
		if n, err := r.entropyLog.Count(ctx); err == nil {
			observability.RecordEntropyAppend(n)
		}
		r.log("  revealed %s|%s symbol=%s", dateStr, ticker, revealed.Symbol.Hex())
	}

	if len(result.Revealed) > 0 {
		observability.DefaultMetrics.LastSuccessfulReveal.Set(float64(r.now().Unix()))
	}
	return result, nil
}

// RunExtract folds the most recent `window` log entries with a fresh beacon
// seed and persists the run artifact. A beacon failure degrades to the
// public all-zero seed; the record carries the fallback mode so the weaker
// extraction is never silent.
func (r *Runner) RunExtract(ctx context.Context, date time.Time, window, outBits int) (*domain.ExtractionRecord, error) {
	seed, err := r.seeder.Seed(ctx)
	if err != nil {
		observability.RecordBeaconFetch("fallback")
		r.log("beacon unavailable, using fallback seed: %v", err)
	} else {
		observability.RecordBeaconFetch("ok")
	}

	res, err := extract.FromLog(ctx, r.entropyLog, seed, window, outBits)
	if err != nil {
		return nil, err
	}

	rec := &domain.ExtractionRecord{
		RunID:           uuid.New().String(),
		Date:            date.Format(datafeed.DateLayout),
		SeedMode:        res.SeedMode,
		SeedSource:      res.SeedSource,
		SeedHex:         fmt.Sprintf("%x", seed.Bytes),
		RequestedWindow: res.RequestedWindow,
		EffectiveWindow: res.EffectiveWindow,
		OutBits:         res.OutBits,
		OutputHex:       res.OutputHex,
		GeneratedAt:     r.now().UTC(),
	}
	if err := r.extractions.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist extraction %s: %w", rec.RunID, err)
	}

	observability.RecordExtraction(string(res.SeedMode), res.EffectiveWindow)
	observability.DefaultMetrics.LastSuccessfulExtract.Set(float64(r.now().Unix()))
	r.log("extraction %s: %d bits over %d/%d symbols (%s seed)",
		rec.RunID, res.OutBits, res.EffectiveWindow, res.RequestedWindow, res.SeedMode)
	return rec, nil
}

// gate enforces the trading-day check and the phase window unless Force.
func (r *Runner) gate(date time.Time, inWindow func(time.Time) bool) error {
	if r.force {
		return nil
	}
	if !calendar.IsTradingDay(date) {
		return fmt.Errorf("%w: %s", ErrNotTradingDay, date.Format(datafeed.DateLayout))
	}
	if !inWindow(r.now()) {
		return ErrOutsideWindow
	}
	return nil
}

func (r *Runner) log(format string, args ...interface{}) {
	if r.verbose {
		log.Printf("[workflow] "+format, args...)
	}
}
