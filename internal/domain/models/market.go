package models

import "time"

// Trade is a single tick from a live market stream.
type Trade struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// Bar represents an OHLCV interval for a single symbol.
type Bar struct {
	Start  time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
