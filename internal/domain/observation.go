package domain

import "github.com/shopspring/decimal"

// Bar is one observed price bar from a data provider.
type Bar struct {
	Ticker    string
	Timestamp string // bar timestamp, exchange-local ISO-8601
	Close     decimal.Decimal
}

// ClosePair holds the two daily closes a reveal needs.
type ClosePair struct {
	PrevClose  decimal.Decimal // previous trading day's close
	TodayClose decimal.Decimal // trade date's close
}

// DailyClose is one (date, close) observation used by the predictor.
type DailyClose struct {
	Date  string // ISO-8601
	Close decimal.Decimal
}
