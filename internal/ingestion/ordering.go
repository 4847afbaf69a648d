package ingestion

import (
	"sort"

	"market-entropy-lab/internal/domain"
)

// SortBars orders bars by (ticker, bar timestamp). Batches are written in
// this order so repeated captures of the same session archive identically.
func SortBars(bars []*domain.Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		if bars[i].Ticker != bars[j].Ticker {
			return bars[i].Ticker < bars[j].Ticker
		}
		return bars[i].Timestamp < bars[j].Timestamp
	})
}
