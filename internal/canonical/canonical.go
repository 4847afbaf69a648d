// Package canonical produces the single deterministic byte serialization of
// a round's commit-time fields, used as the commitment hash preimage.
// Identical field values always yield byte-identical output, regardless of
// construction order: keys are emitted in lexicographic order, compact JSON
// separators, no insignificant whitespace, and every price passes through
// one fixed-point formatting rule.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceDecimals is the pinned fixed-point rule for every price entering a
// hashed payload: exactly 4 fractional digits, trailing zeros preserved,
// plain decimal notation. Changing this silently breaks verification of all
// historical commitments.
const PriceDecimals = 4

// Payload holds the commit-time fields of a round. Field names here map to
// the canonical JSON keys; the key set is fixed.
type Payload struct {
	Ticker        string          // canonical key "symbol"
	Prediction    int             // 0 or 1
	PCommit       decimal.Decimal // commit-bar price
	CommitBarTS   string          // exchange-local ISO-8601
	CommitTimeUTC string          // UTC ISO-8601
	Salt          string          // hex, 16 bytes
	Context       string          // date|ticker|exchange|close
}

// FormatPrice renders a price in the pinned fixed-point form. It is the only
// path by which a price may enter a canonical payload.
func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(PriceDecimals)
}

// Encode serializes the payload to its canonical byte form. Keys appear in
// lexicographic order:
//
//	commit_bar_ts, context, p_commit, prediction, salt, symbol, timestamp_commit_utc
//
// Prices are unquoted JSON numbers in FormatPrice form; prediction is an
// unquoted 0/1.
func Encode(p Payload) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	if err := writeStringField(&buf, "commit_bar_ts", p.CommitBarTS, false); err != nil {
		return nil, err
	}
	if err := writeStringField(&buf, "context", p.Context, true); err != nil {
		return nil, err
	}
	fmt.Fprintf(&buf, ",%q:%s", "p_commit", FormatPrice(p.PCommit))
	fmt.Fprintf(&buf, ",%q:%d", "prediction", p.Prediction)
	if err := writeStringField(&buf, "salt", p.Salt, true); err != nil {
		return nil, err
	}
	if err := writeStringField(&buf, "symbol", p.Ticker, true); err != nil {
		return nil, err
	}
	if err := writeStringField(&buf, "timestamp_commit_utc", p.CommitTimeUTC, true); err != nil {
		return nil, err
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeStringField appends `"key":"value"` with JSON string escaping.
// json.Marshal of a string is deterministic, which keeps the encoding stable
// for any value content.
func writeStringField(buf *bytes.Buffer, key, value string, comma bool) error {
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode field %s: %w", key, err)
	}
	if comma {
		buf.WriteByte(',')
	}
	fmt.Fprintf(buf, "%q:%s", key, v)
	return nil
}
