// Package symbol maps a verified round's prediction, outcome, and price
// delta into the fixed 4-byte symbol appended to the entropy log. The
// quantization policy here is the complete contract: no other inputs
// influence the encoding.
package symbol

import (
	"github.com/shopspring/decimal"

	"market-entropy-lab/internal/domain"
)

// MaxMagQ is the saturation ceiling for the quantized delta magnitude.
const MaxMagQ = 255

// SignBit returns 1 iff delta is strictly positive. Zero resolves to 0 by
// the same strictly-greater convention as the outcome bit.
func SignBit(delta decimal.Decimal) int {
	if delta.IsPositive() {
		return 1
	}
	return 0
}

// MagQ quantizes |delta| to hundredths of the price unit, flooring, and
// saturates at MaxMagQ so the value always fits one byte.
func MagQ(delta decimal.Decimal) int {
	// Shift(2) multiplies by 100 exactly; no float rounding enters here.
	q := delta.Abs().Shift(2).Floor()
	if q.GreaterThanOrEqual(decimal.NewFromInt(MaxMagQ)) {
		return MaxMagQ
	}
	return int(q.IntPart())
}

// Encode builds the symbol [prediction, outcome, sign_bit, mag_q].
// Prediction and outcome must already be 0 or 1.
func Encode(prediction, outcome int, delta decimal.Decimal) domain.Symbol {
	return domain.Symbol{
		byte(prediction),
		byte(outcome),
		byte(SignBit(delta)),
		byte(MagQ(delta)),
	}
}
