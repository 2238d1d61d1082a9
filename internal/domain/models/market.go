package models

import "time"

// Sample is a single observed (price, volume) point for a symbol.
// Samples are immutable once recorded.
type Sample struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// Bar represents an OHLCV record for one timeframe bucket.
type Bar struct {
	Symbol    string
	Timeframe string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// Account is a snapshot of broker account state.
type Account struct {
	Cash        float64
	BuyingPower float64
	Equity      float64
	FetchedAt   time.Time
}
