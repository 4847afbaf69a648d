package reporting

import (
	"time"

	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/verification"
)

// Report represents the daily archive report structure.
type Report struct {
	// Metadata
	GeneratedAt time.Time

	// Log Summary
	LogSummary LogSummary

	// Round counts by state across the covered dates
	RoundCounts RoundCounts

	// Extraction runs for the covered dates, newest first per date
	Extractions []ExtractionRow

	// Replay verification over the full archive; nil when not run
	Verification *verification.Report

	// Entries in log order, oldest first
	Entries []*domain.EntropyEntry
}

// LogSummary describes the entropy log contents.
type LogSummary struct {
	TotalEntries   int
	PredictionHits int // entries where the committed prediction matched
	HitRate        float64
	UpOutcomes     int
	DownOutcomes   int
	Ties           int
	SaturatedMagQ  int // entries whose quantized delta hit the 255 cap
	FirstDate      string
	LastDate       string
}

// RoundCounts holds per-state round totals.
type RoundCounts struct {
	Committed int
	Revealed  int
	Rejected  int
}

// ExtractionRow is one archived extraction run.
type ExtractionRow struct {
	RunID           string
	Date            string
	SeedMode        string
	OutBits         int
	RequestedWindow int
	EffectiveWindow int
	OutputHex       string
}
