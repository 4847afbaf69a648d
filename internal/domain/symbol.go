package domain

import (
	"encoding/hex"
	"fmt"
)

// Symbol is the fixed 4-byte encoding of one revealed round:
// [prediction, outcome, sign_bit, mag_q]. The first three bytes are 0 or 1;
// the last is the saturating quantized magnitude of the price delta.
type Symbol [4]byte

// Hex returns the 8-character lowercase hex form, the wire/archive format.
func (s Symbol) Hex() string {
	return hex.EncodeToString(s[:])
}

// Bytes returns the symbol as a slice.
func (s Symbol) Bytes() []byte {
	return s[:]
}

// Prediction returns the committed prediction bit.
func (s Symbol) Prediction() int { return int(s[0]) }

// Outcome returns the observed outcome bit.
func (s Symbol) Outcome() int { return int(s[1]) }

// SignBit returns the delta sign bit.
func (s Symbol) SignBit() int { return int(s[2]) }

// MagQ returns the quantized delta magnitude in [0, 255].
func (s Symbol) MagQ() int { return int(s[3]) }

// ParseSymbol decodes the 8-hex-character archive form of a symbol.
func ParseSymbol(h string) (Symbol, error) {
	var s Symbol
	b, err := hex.DecodeString(h)
	if err != nil {
		return s, fmt.Errorf("parse symbol hex: %w", err)
	}
	if len(b) != len(s) {
		return s, fmt.Errorf("parse symbol: want %d bytes, got %d", len(s), len(b))
	}
	copy(s[:], b)
	return s, nil
}
