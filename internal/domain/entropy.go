package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntropyEntry is one row of the append-only entropy log: the symbol of a
// successfully revealed round plus every field a third party needs to replay
// verification and extraction from the archive alone.
type EntropyEntry struct {
	Date       string          // trade date, ISO-8601
	Ticker     string          // instrument symbol
	Prediction int             // committed prediction bit
	Outcome    int             // observed outcome bit
	SymbolBits string          // "PO" two-character bit string, e.g. "10"
	CommitHash string          // hex SHA-256 commitment
	Context    string          // date|ticker|exchange|close
	Salt       string          // hex, 16 bytes
	PrevClose  decimal.Decimal // previous trading day's close
	PReveal    decimal.Decimal // today's close
	Provider   string          // price data provider identifier
	Tie        bool            // p_reveal == prev_close
	PCommit    decimal.Decimal // commit-bar price snapshot
	CommitBar  string          // commit bar timestamp, exchange-local ISO-8601
	Delta      decimal.Decimal // p_reveal - p_commit
	SignBit    int             // 1 iff delta > 0
	MagQ       int             // quantized |delta| in hundredths, saturating at 255
	Symbol     Symbol          // the 4-byte symbol
	AppendedAt time.Time       // append wall time, UTC
}

// Identity returns the (date, ticker) identity of the round this entry
// was produced by. The log holds at most one entry per identity.
func (e *EntropyEntry) Identity() RoundIdentity {
	return RoundIdentity{Date: e.Date, Ticker: e.Ticker}
}
