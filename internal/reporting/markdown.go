package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the report as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Entropy Archive Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Log Summary
	sb.WriteString("## Entropy Log\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Entries | %d |\n", r.LogSummary.TotalEntries))
	sb.WriteString(fmt.Sprintf("| Date Range | %s .. %s |\n", r.LogSummary.FirstDate, r.LogSummary.LastDate))
	sb.WriteString(fmt.Sprintf("| Prediction Hits | %d |\n", r.LogSummary.PredictionHits))
	sb.WriteString(fmt.Sprintf("| Hit Rate | %.4f |\n", r.LogSummary.HitRate))
	sb.WriteString(fmt.Sprintf("| Up Outcomes | %d |\n", r.LogSummary.UpOutcomes))
	sb.WriteString(fmt.Sprintf("| Down Outcomes | %d |\n", r.LogSummary.DownOutcomes))
	sb.WriteString(fmt.Sprintf("| Ties | %d |\n", r.LogSummary.Ties))
	sb.WriteString(fmt.Sprintf("| Saturated MagQ | %d |\n", r.LogSummary.SaturatedMagQ))
	sb.WriteString("\n")

	// Round counts
	sb.WriteString("## Rounds\n\n")
	sb.WriteString("| State | Count |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| committed | %d |\n", r.RoundCounts.Committed))
	sb.WriteString(fmt.Sprintf("| revealed | %d |\n", r.RoundCounts.Revealed))
	sb.WriteString(fmt.Sprintf("| rejected | %d |\n", r.RoundCounts.Rejected))
	sb.WriteString("\n")

	// Extraction runs
	sb.WriteString("## Extractions\n\n")
	if len(r.Extractions) > 0 {
		sb.WriteString("| Run | Date | Seed | Bits | Window | Output |\n")
		sb.WriteString("|-----|------|------|------|--------|--------|\n")
		for _, e := range r.Extractions {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d/%d | `%s` |\n",
				e.RunID, e.Date, e.SeedMode, e.OutBits, e.EffectiveWindow, e.RequestedWindow, e.OutputHex))
		}
	} else {
		sb.WriteString("No extraction runs recorded.\n")
	}
	sb.WriteString("\n")

	// Verification
	if r.Verification != nil {
		sb.WriteString("## Replay Verification\n\n")
		sb.WriteString(fmt.Sprintf("Verified %d rounds: %d matched, %d divergent.\n\n",
			r.Verification.TotalRounds, r.Verification.MatchedRounds, r.Verification.DivergentRounds))
		if r.Verification.DivergentRounds > 0 {
			sb.WriteString("| Identity | Field | Expected | Actual |\n")
			sb.WriteString("|----------|-------|----------|--------|\n")
			for _, res := range r.Verification.Results {
				for _, d := range res.Divergences {
					sb.WriteString(fmt.Sprintf("| %s | %s | %v | %v |\n",
						res.Identity, d.Field, d.Expected, d.Actual))
				}
			}
			sb.WriteString("\n")
		}
	}

	// Recent symbols
	sb.WriteString("## Recent Symbols\n\n")
	if len(r.Entries) > 0 {
		sb.WriteString("| Date | Ticker | Bits | Symbol |\n")
		sb.WriteString("|------|--------|------|--------|\n")
		start := len(r.Entries) - 10
		if start < 0 {
			start = 0
		}
		for _, e := range r.Entries[start:] {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | `%s` |\n",
				e.Date, e.Ticker, e.SymbolBits, e.Symbol.Hex()))
		}
	} else {
		sb.WriteString("Log is empty.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
