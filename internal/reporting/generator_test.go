package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"market-entropy-lab/internal/commitment"
	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/reveal"
	"market-entropy-lab/internal/storage/memory"
)

type reportEnv struct {
	rounds      *memory.RoundStore
	entropyLog  *memory.EntropyLog
	extractions *memory.ExtractionStore
	gen         *Generator
}

func newReportEnv() *reportEnv {
	rounds := memory.NewRoundStore()
	entropyLog := memory.NewEntropyLog()
	extractions := memory.NewExtractionStore()

	gen := NewGenerator(rounds, entropyLog, extractions).
		WithClock(func() time.Time { return time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC) })

	return &reportEnv{rounds: rounds, entropyLog: entropyLog, extractions: extractions, gen: gen}
}

func (e *reportEnv) fill(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	engine := commitment.NewEngine(commitment.Config{
		Rounds:          e.rounds,
		Salts:           commitment.NewHMACSaltDeriver([]byte("report-key")),
		DefaultExchange: "NYSE",
	})
	verifier := reveal.NewVerifier(reveal.Config{
		Rounds:   e.rounds,
		Log:      e.entropyLog,
		Provider: "test",
	})

	cases := []struct {
		ticker, pCommit, prevClose, pReveal string
		prediction                          int
	}{
		{"SPY", "450.2500", "449.5000", "451.0000", 1}, // hit, up
		{"QQQ", "390.0000", "391.0000", "389.5000", 1}, // miss, down
	}
	for _, c := range cases {
		_, err := engine.Commit(ctx, commitment.CommitInput{
			Ticker:      c.ticker,
			Date:        "2024-01-16",
			Prediction:  c.prediction,
			PCommit:     decimal.RequireFromString(c.pCommit),
			CommitBarTS: "2024-01-16T15:55:00-05:00",
		})
		require.NoError(t, err)

		_, err = verifier.Reveal(ctx, domain.RoundIdentity{Date: "2024-01-16", Ticker: c.ticker}, reveal.Observation{
			PReveal:   decimal.RequireFromString(c.pReveal),
			PrevClose: decimal.RequireFromString(c.prevClose),
		})
		require.NoError(t, err)
	}

	require.NoError(t, e.extractions.Insert(ctx, &domain.ExtractionRecord{
		RunID:           "run-1",
		Date:            "2024-01-16",
		SeedMode:        domain.SeedModeFallback,
		SeedHex:         strings.Repeat("00", domain.SeedLength),
		RequestedWindow: 10,
		EffectiveWindow: 2,
		OutBits:         128,
		OutputHex:       strings.Repeat("ab", 16),
		GeneratedAt:     time.Date(2024, 1, 16, 21, 30, 0, 0, time.UTC),
	}))
}

func TestGeneratorSummarizesArchive(t *testing.T) {
	env := newReportEnv()
	env.fill(t)

	report, err := env.gen.Generate(context.Background(), true)
	require.NoError(t, err)

	require.Equal(t, 2, report.LogSummary.TotalEntries)
	require.Equal(t, 1, report.LogSummary.PredictionHits)
	require.InDelta(t, 0.5, report.LogSummary.HitRate, 1e-9)
	require.Equal(t, 1, report.LogSummary.UpOutcomes)
	require.Equal(t, 1, report.LogSummary.DownOutcomes)
	require.Equal(t, "2024-01-16", report.LogSummary.FirstDate)
	require.Equal(t, "2024-01-16", report.LogSummary.LastDate)

	require.Equal(t, 2, report.RoundCounts.Revealed)
	require.Zero(t, report.RoundCounts.Committed)
	require.Zero(t, report.RoundCounts.Rejected)

	require.Len(t, report.Extractions, 1)
	require.Equal(t, "run-1", report.Extractions[0].RunID)

	require.NotNil(t, report.Verification)
	require.Equal(t, 2, report.Verification.MatchedRounds)
	require.Zero(t, report.Verification.DivergentRounds)
}

func TestGeneratorEmptyArchive(t *testing.T) {
	env := newReportEnv()

	report, err := env.gen.Generate(context.Background(), false)
	require.NoError(t, err)
	require.Zero(t, report.LogSummary.TotalEntries)
	require.Nil(t, report.Verification)

	md := RenderMarkdown(report)
	require.Contains(t, md, "Log is empty.")
}

func TestRenderEntropyCSV(t *testing.T) {
	env := newReportEnv()
	env.fill(t)

	entries, err := env.entropyLog.All(context.Background())
	require.NoError(t, err)

	csv := RenderEntropyCSV(entries)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, EntropyCSVHeader, lines[0])

	require.True(t, strings.HasPrefix(lines[1], "2024-01-16,SPY,1,1,11,"))
	require.Contains(t, lines[1], ",449.5000,451.0000,test,false,450.2500,451.0000,")
	require.True(t, strings.HasPrefix(lines[2], "2024-01-16,QQQ,1,0,10,"))
}

func TestRenderMarkdownSections(t *testing.T) {
	env := newReportEnv()
	env.fill(t)

	report, err := env.gen.Generate(context.Background(), true)
	require.NoError(t, err)

	md := RenderMarkdown(report)
	require.Contains(t, md, "# Entropy Archive Report")
	require.Contains(t, md, "| Total Entries | 2 |")
	require.Contains(t, md, "| revealed | 2 |")
	require.Contains(t, md, "run-1")
	require.Contains(t, md, "Verified 2 rounds: 2 matched, 0 divergent.")
	require.Contains(t, md, "| 2024-01-16 | SPY | 11 |")
}
