package csvlog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
)

func extractionRec(runID string, generatedAt time.Time) *domain.ExtractionRecord {
	return &domain.ExtractionRecord{
		RunID:           runID,
		Date:            "2024-01-16",
		SeedMode:        domain.SeedModeBeacon,
		SeedSource:      "https://drand.cloudflare.com/public/latest",
		SeedHex:         strings.Repeat("0f", 32),
		RequestedWindow: 64,
		EffectiveWindow: 12,
		OutBits:         128,
		OutputHex:       strings.Repeat("9a", 16),
		GeneratedAt:     generatedAt,
	}
}

func TestExtractionStoreInsertAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "extractions.csv")
	t0 := time.Date(2024, 1, 16, 21, 30, 0, 0, time.UTC)

	store, err := NewExtractionStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Insert(ctx, extractionRec("run-1", t0)))
	require.NoError(t, store.Insert(ctx, extractionRec("run-2", t0.Add(time.Hour))))
	require.ErrorIs(t, store.Insert(ctx, extractionRec("run-1", t0)), storage.ErrDuplicateKey)
	require.NoError(t, store.Close())

	reopened, err := NewExtractionStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	recs, err := reopened.GetByDate(ctx, "2024-01-16")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.Equal(t, "run-2", recs[0].RunID)
	assert.Equal(t, "run-1", recs[1].RunID)

	got := recs[1]
	assert.Equal(t, domain.SeedModeBeacon, got.SeedMode)
	assert.Equal(t, strings.Repeat("0f", 32), got.SeedHex)
	assert.Equal(t, 128, got.OutBits)
	assert.Equal(t, strings.Repeat("9a", 16), got.OutputHex)
	assert.True(t, got.GeneratedAt.Equal(t0))

	require.ErrorIs(t, reopened.Insert(ctx, extractionRec("run-2", t0)), storage.ErrDuplicateKey)

	recs, err = reopened.GetByDate(ctx, "2024-01-18")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
