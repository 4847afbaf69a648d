package reporting

import (
	"fmt"
	"strings"

	"market-entropy-lab/internal/canonical"
	"market-entropy-lab/internal/domain"
)

// EntropyCSVHeader is the pinned column order of the entropy log export.
// close_today duplicates p_reveal so the export stays a drop-in replacement
// for downstream consumers of the original column set.
const EntropyCSVHeader = "date,symbol,prediction,outcome,symbol_bits,commit,context,salt," +
	"close_prev,close_today,provider,tie,p_commit,p_reveal,commit_bar_ts_et," +
	"delta,sign_bit,mag_q,symbol_bytes_hex"

// RenderEntropyCSV renders log entries as a CSV string, log order preserved.
func RenderEntropyCSV(entries []*domain.EntropyEntry) string {
	var sb strings.Builder
	sb.WriteString(EntropyCSVHeader + "\n")

	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%s,%s,%s,%s,%s,%s,%s,%t,%s,%s,%s,%s,%d,%d,%s\n",
			e.Date,
			e.Ticker,
			e.Prediction,
			e.Outcome,
			e.SymbolBits,
			e.CommitHash,
			e.Context,
			e.Salt,
			canonical.FormatPrice(e.PrevClose),
			canonical.FormatPrice(e.PReveal),
			e.Provider,
			e.Tie,
			canonical.FormatPrice(e.PCommit),
			canonical.FormatPrice(e.PReveal),
			e.CommitBar,
			e.Delta.String(),
			e.SignBit,
			e.MagQ,
			e.Symbol.Hex(),
		))
	}

	return sb.String()
}
