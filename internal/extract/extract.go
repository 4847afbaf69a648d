// Package extract folds a window of logged symbols and a public seed into a
// fixed-length pseudorandom output. Extraction is a pure function of its
// inputs: identical seed, symbol window, and bit width always yield the
// identical digest.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
)

// MaxOutBits is the capacity of the underlying hash.
const MaxOutBits = 256

// Extraction errors.
var (
	// ErrBitsExceedHashCapacity is returned when more bits are requested
	// than SHA-256 can provide.
	ErrBitsExceedHashCapacity = errors.New("requested bits exceed hash capacity")

	// ErrInvalidOutBits is returned when out_bits is not a positive
	// multiple of 4 (hex truncation granularity).
	ErrInvalidOutBits = errors.New("out_bits must be a positive multiple of 4")
)

// Result is the output artifact of one extraction call.
type Result struct {
	OutputHex       string          // outBits/4 hex characters
	OutBits         int             // requested output width
	SeedMode        domain.SeedMode // beacon | fallback, never silent
	SeedSource      string          // beacon URL when seeded
	RequestedWindow int             // window the caller asked for (0 for direct Extract)
	EffectiveWindow int             // symbols actually folded in
}

// Extract computes SHA-256(seed || symbols[0] || ... || symbols[k-1]) and
// truncates to outBits. Symbol order must be log order, oldest first.
func Extract(seed domain.Seed, symbols []domain.Symbol, outBits int) (*Result, error) {
	if outBits <= 0 || outBits%4 != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidOutBits, outBits)
	}
	if outBits > MaxOutBits {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrBitsExceedHashCapacity, outBits, MaxOutBits)
	}

	h := sha256.New()
	h.Write(seed.Bytes)
	for _, s := range symbols {
		h.Write(s.Bytes())
	}
	digest := hex.EncodeToString(h.Sum(nil))

	return &Result{
		OutputHex:       digest[:outBits/4],
		OutBits:         outBits,
		SeedMode:        seed.Mode,
		SeedSource:      seed.Source,
		EffectiveWindow: len(symbols),
	}, nil
}

// FromLog extracts over the most recent `window` entries of the entropy log.
// A log shorter than the requested window is not an error: everything
// available is used and EffectiveWindow reports the truth, so a weaker
// extraction is never silent.
func FromLog(ctx context.Context, log storage.EntropyLog, seed domain.Seed, window, outBits int) (*Result, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive", storage.ErrInvalidInput)
	}

	entries, err := log.LastN(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("read entropy window: %w", err)
	}

	symbols := make([]domain.Symbol, len(entries))
	for i, e := range entries {
		symbols[i] = e.Symbol
	}

	res, err := Extract(seed, symbols, outBits)
	if err != nil {
		return nil, err
	}
	res.RequestedWindow = window
	return res, nil
}
