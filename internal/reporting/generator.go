// Package reporting produces human-readable and CSV exports of the round
// archive, the entropy log, and extraction runs.
package reporting

import (
	"context"
	"sort"
	"time"

	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
	"market-entropy-lab/internal/verification"
)

// Generator produces reports from stored data.
type Generator struct {
	rounds      storage.RoundStore
	entropyLog  storage.EntropyLog
	extractions storage.ExtractionStore
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(rounds storage.RoundStore, log storage.EntropyLog, extractions storage.ExtractionStore) *Generator {
	return &Generator{
		rounds:      rounds,
		entropyLog:  log,
		extractions: extractions,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete archive report. Round and extraction lookups
// cover every trade date present in the entropy log. When verify is set,
// the whole archive is replayed and divergences land in the report.
func (g *Generator) Generate(ctx context.Context, verify bool) (*Report, error) {
	entries, err := g.entropyLog.All(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt: g.now(),
		LogSummary:  summarize(entries),
		Entries:     entries,
	}

	dates := distinctDates(entries)

	for _, date := range dates {
		rounds, err := g.rounds.GetByDate(ctx, date)
		if err != nil {
			return nil, err
		}
		for _, r := range rounds {
			switch r.State {
			case domain.StateCommitted:
				report.RoundCounts.Committed++
			case domain.StateRevealed:
				report.RoundCounts.Revealed++
			case domain.StateRejected:
				report.RoundCounts.Rejected++
			}
		}

		recs, err := g.extractions.GetByDate(ctx, date)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			report.Extractions = append(report.Extractions, ExtractionRow{
				RunID:           rec.RunID,
				Date:            rec.Date,
				SeedMode:        string(rec.SeedMode),
				OutBits:         rec.OutBits,
				RequestedWindow: rec.RequestedWindow,
				EffectiveWindow: rec.EffectiveWindow,
				OutputHex:       rec.OutputHex,
			})
		}
	}

	if verify {
		replay := verification.NewReplayVerifier(verification.Options{
			Rounds: g.rounds,
			Log:    g.entropyLog,
		})
		vr, err := replay.VerifyAll(ctx)
		if err != nil {
			return nil, err
		}
		report.Verification = vr
	}

	return report, nil
}

// summarize computes the log-level statistics.
func summarize(entries []*domain.EntropyEntry) LogSummary {
	s := LogSummary{TotalEntries: len(entries)}
	if len(entries) == 0 {
		return s
	}

	s.FirstDate = entries[0].Date
	s.LastDate = entries[0].Date
	for _, e := range entries {
		if e.Date < s.FirstDate {
			s.FirstDate = e.Date
		}
		if e.Date > s.LastDate {
			s.LastDate = e.Date
		}
		if e.Prediction == e.Outcome {
			s.PredictionHits++
		}
		if e.Outcome == 1 {
			s.UpOutcomes++
		} else {
			s.DownOutcomes++
		}
		if e.Tie {
			s.Ties++
		}
		if e.MagQ == 255 {
			s.SaturatedMagQ++
		}
	}
	s.HitRate = float64(s.PredictionHits) / float64(len(entries))
	return s
}

// distinctDates returns the sorted set of trade dates in the entries.
func distinctDates(entries []*domain.EntropyEntry) []string {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		set[e.Date] = struct{}{}
	}
	dates := make([]string, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
