package domain

import "time"

// SeedMode says where an extraction seed came from. Fallback mode degrades
// to a deterministic function of the logged symbols alone and must always be
// surfaced, never silently substituted.
type SeedMode string

const (
	SeedModeBeacon   SeedMode = "beacon"
	SeedModeFallback SeedMode = "fallback"
)

// SeedLength is the byte length of extraction seeds (drand randomness size).
const SeedLength = 32

// Seed is a public extraction seed plus its provenance.
type Seed struct {
	Bytes  []byte
	Mode   SeedMode
	Source string // beacon URL, or empty in fallback mode
}

// FallbackSeed returns the fixed, publicly known all-zero seed used when no
// beacon value is available.
func FallbackSeed() Seed {
	return Seed{Bytes: make([]byte, SeedLength), Mode: SeedModeFallback}
}

// ExtractionRecord is the persisted artifact of one extraction run.
type ExtractionRecord struct {
	RunID           string   // uuid
	Date            string   // trade date the run was made for, ISO-8601
	SeedMode        SeedMode // beacon | fallback
	SeedSource      string   // beacon URL when SeedMode == beacon
	SeedHex         string   // seed bytes, hex
	RequestedWindow int      // window the caller asked for
	EffectiveWindow int      // entries actually folded in
	OutBits         int      // requested output width
	OutputHex       string   // the digest, outBits/4 hex characters
	GeneratedAt     time.Time
}
