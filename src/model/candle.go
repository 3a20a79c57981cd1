package model

import "time"

// Candle is one OHLCV sample as consumed by the technical analysis
// engine. Candles are converted from the exchange library's kline type
// and are not persisted.
type Candle struct {
	Datetime time.Time `json:"datetime"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}
