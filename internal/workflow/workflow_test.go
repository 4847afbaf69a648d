package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"market-entropy-lab/internal/commitment"
	"market-entropy-lab/internal/datafeed/stub"
	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/predictor"
	"market-entropy-lab/internal/reveal"
	"market-entropy-lab/internal/storage/memory"
)

type fakeSeeder struct {
	seed domain.Seed
	err  error
}

func (f *fakeSeeder) Seed(_ context.Context) (domain.Seed, error) {
	if f.err != nil {
		return domain.FallbackSeed(), f.err
	}
	return f.seed, nil
}

type testEnv struct {
	rounds      *memory.RoundStore
	entropyLog  *memory.EntropyLog
	extractions *memory.ExtractionStore
	feed        *stub.Feed
	runner      *Runner
}

// 2024-01-16 is a regular Tuesday session.
var testDate = time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T, seeder Seeder) *testEnv {
	t.Helper()

	rounds := memory.NewRoundStore()
	entropyLog := memory.NewEntropyLog()
	extractions := memory.NewExtractionStore()
	feed := stub.NewFeed()

	engine := commitment.NewEngine(commitment.Config{
		Rounds:          rounds,
		Salts:           commitment.NewHMACSaltDeriver([]byte("test-key")),
		DefaultExchange: "NYSE",
	})
	verifier := reveal.NewVerifier(reveal.Config{
		Rounds:   rounds,
		Log:      entropyLog,
		Provider: "stub",
	})

	sched, err := DefaultSchedule()
	require.NoError(t, err)

	runner := New(Options{
		Rounds:      rounds,
		Log:         entropyLog,
		Extractions: extractions,
		Engine:      engine,
		Verifier:    verifier,
		Feed:        feed,
		Predictor:   predictor.NewFixedPredictor(1),
		Seeder:      seeder,
		Tickers:     []string{"SPY", "QQQ"},
		Schedule:    sched,
		Force:       true,
	})

	return &testEnv{
		rounds:      rounds,
		entropyLog:  entropyLog,
		extractions: extractions,
		feed:        feed,
		runner:      runner,
	}
}

func (e *testEnv) seedFeed(t *testing.T) {
	t.Helper()
	for _, ticker := range []string{"SPY", "QQQ"} {
		e.feed.SetBars(ticker, testDate, []domain.Bar{
			{Ticker: ticker, Timestamp: "2024-01-16T15:55:00-05:00", Close: decimal.RequireFromString("450.2500")},
		})
		e.feed.SetCloses(ticker, []domain.DailyClose{
			{Date: "2024-01-12", Close: decimal.RequireFromString("449.50")},
			{Date: "2024-01-16", Close: decimal.RequireFromString("451.00")},
		})
	}
}

func TestRunner_CommitRevealExtract(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &fakeSeeder{seed: domain.Seed{
		Bytes:  make([]byte, domain.SeedLength),
		Mode:   domain.SeedModeBeacon,
		Source: "https://drand.example/public/latest",
	}})
	env.seedFeed(t)

	commitRes, err := env.runner.RunCommit(ctx, testDate)
	require.NoError(t, err)
	require.Empty(t, commitRes.Errors)
	require.Len(t, commitRes.Committed, 2)
	for _, pub := range commitRes.Committed {
		require.Len(t, pub.CommitHash, 64)
	}

	// Re-running the commit phase is a no-op, not an error.
	commitRes, err = env.runner.RunCommit(ctx, testDate)
	require.NoError(t, err)
	require.Empty(t, commitRes.Committed)
	require.Equal(t, 2, commitRes.Skipped)

	revealRes, err := env.runner.RunReveal(ctx, testDate)
	require.NoError(t, err)
	require.Empty(t, revealRes.Errors)
	require.Len(t, revealRes.Revealed, 2)
	require.Zero(t, revealRes.Rejected)
	for _, r := range revealRes.Revealed {
		require.Equal(t, domain.StateRevealed, r.State)
		require.Equal(t, 1, r.Outcome) // 451.00 > 449.50
	}

	n, err := env.entropyLog.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Re-running reveal leaves the log unchanged.
	revealRes, err = env.runner.RunReveal(ctx, testDate)
	require.NoError(t, err)
	require.Empty(t, revealRes.Revealed)
	n, err = env.entropyLog.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rec, err := env.runner.RunExtract(ctx, testDate, 10, 128)
	require.NoError(t, err)
	require.Equal(t, domain.SeedModeBeacon, rec.SeedMode)
	require.Equal(t, 10, rec.RequestedWindow)
	require.Equal(t, 2, rec.EffectiveWindow)
	require.Len(t, rec.OutputHex, 32)

	stored, err := env.extractions.GetByDate(ctx, "2024-01-16")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, rec.RunID, stored[0].RunID)
}

func TestRunner_RevealRejectsTamperedCommitment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &fakeSeeder{})
	env.seedFeed(t)

	_, err := env.runner.RunCommit(ctx, testDate)
	require.NoError(t, err)

	// Corrupt the observable record: the reveal-time re-observation of the
	// commit bar no longer matches the archived snapshot.
	env.feed.SetBars("SPY", testDate, []domain.Bar{
		{Ticker: "SPY", Timestamp: "2024-01-16T15:55:00-05:00", Close: decimal.RequireFromString("999.9999")},
	})

	res, err := env.runner.RunReveal(ctx, testDate)
	require.NoError(t, err)
	require.Equal(t, 1, res.Rejected)
	require.Len(t, res.Revealed, 1)

	r, err := env.rounds.GetByIdentity(ctx, domain.RoundIdentity{Date: "2024-01-16", Ticker: "SPY"})
	require.NoError(t, err)
	require.Equal(t, domain.StateRejected, r.State)

	n, err := env.entropyLog.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRunner_ExtractFallsBackWithoutBeacon(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &fakeSeeder{err: errors.New("beacon unreachable")})
	env.seedFeed(t)

	_, err := env.runner.RunCommit(ctx, testDate)
	require.NoError(t, err)
	_, err = env.runner.RunReveal(ctx, testDate)
	require.NoError(t, err)

	rec, err := env.runner.RunExtract(ctx, testDate, 5, 64)
	require.NoError(t, err)
	require.Equal(t, domain.SeedModeFallback, rec.SeedMode)
	require.Empty(t, rec.SeedSource)
}

func TestRunner_Gates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &fakeSeeder{})
	env.runner.force = false

	// 2024-01-13 is a Saturday.
	saturday := time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC)
	_, err := env.runner.RunCommit(ctx, saturday)
	require.ErrorIs(t, err, ErrNotTradingDay)

	// Trading day, but the clock is nowhere near the commit window.
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	env.runner.now = func() time.Time {
		return time.Date(2024, 1, 16, 9, 0, 0, 0, loc)
	}
	_, err = env.runner.RunCommit(ctx, testDate)
	require.ErrorIs(t, err, ErrOutsideWindow)
	_, err = env.runner.RunReveal(ctx, testDate)
	require.ErrorIs(t, err, ErrOutsideWindow)

	// Inside the commit window the phase runs (and finds no data, which is
	// an in-run error, not a gate error).
	env.runner.now = func() time.Time {
		return time.Date(2024, 1, 16, 15, 55, 0, 0, loc)
	}
	res, err := env.runner.RunCommit(ctx, testDate)
	require.NoError(t, err)
	require.Len(t, res.Errors, 2)
}
