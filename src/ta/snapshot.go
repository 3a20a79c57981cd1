package ta

import (
	"fmt"
	"math"

	"tradesentinel/src/model"
)

const (
	TrendBullish = "bullish"
	TrendBearish = "bearish"
	TrendNeutral = "neutral"
)

// Snapshot bundles every indicator the engine computes for one symbol.
// It feeds both the guardian-facing summaries and the reasoning-service
// prompt.
type Snapshot struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`

	SMA7  float64 `json:"sma7"`
	SMA20 float64 `json:"sma20"`
	SMA50 float64 `json:"sma50"`

	EMA12 float64 `json:"ema12"`
	EMA26 float64 `json:"ema26"`

	RSI14 float64 `json:"rsi14"`

	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`

	Support     float64 `json:"support"`
	Resistance  float64 `json:"resistance"`
	VolumeTrend string  `json:"volume_trend"`

	Trend   string   `json:"trend"`
	Signals []string `json:"signals"`
}

// ClassifyTrend tallies bullish and bearish votes across the moving
// averages, RSI and MACD histogram. Four or more aligned votes make a
// trend; anything else is neutral.
func ClassifyTrend(price, sma7, sma20, sma50, rsi, macdHistogram float64) string {
	bullish := 0
	bearish := 0

	vote := func(isBullish bool) {
		if isBullish {
			bullish++
		} else {
			bearish++
		}
	}

	vote(price > sma7)
	vote(price > sma20)
	vote(price > sma50)
	vote(rsi > 50)
	vote(macdHistogram > 0)

	switch {
	case bullish >= 4:
		return TrendBullish
	case bearish >= 4:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

// ComputeSnapshot runs the full indicator set over a series. It needs at
// least 50 candles so every constituent (SMA50, MACD signal) is a real
// value rather than a guess.
func ComputeSnapshot(symbol string, candles []model.Candle) (*Snapshot, error) {
	if len(candles) < 50 {
		return nil, ErrInsufficientData
	}

	price := candles[len(candles)-1].Close

	sma7, err := SMA(candles, 7)
	if err != nil {
		return nil, err
	}
	sma20, err := SMA(candles, 20)
	if err != nil {
		return nil, err
	}
	sma50, err := SMA(candles, 50)
	if err != nil {
		return nil, err
	}
	ema12, err := EMA(candles, 12)
	if err != nil {
		return nil, err
	}
	ema26, err := EMA(candles, 26)
	if err != nil {
		return nil, err
	}
	rsi, err := RSI(candles, 14)
	if err != nil {
		return nil, err
	}
	macd, err := MACD(candles)
	if err != nil {
		return nil, err
	}
	support, err := Support(candles, price)
	if err != nil {
		return nil, err
	}
	resistance, err := Resistance(candles, price)
	if err != nil {
		return nil, err
	}
	volTrend, err := VolumeTrendLabel(candles)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Symbol:        symbol,
		Price:         price,
		SMA7:          sma7,
		SMA20:         sma20,
		SMA50:         sma50,
		EMA12:         ema12,
		EMA26:         ema26,
		RSI14:         rsi,
		MACD:          macd.MACD,
		MACDSignal:    macd.Signal,
		MACDHistogram: macd.Histogram,
		Support:       support,
		Resistance:    resistance,
		VolumeTrend:   volTrend,
	}
	snap.Trend = ClassifyTrend(price, sma7, sma20, sma50, rsi, macd.Histogram)
	snap.Signals = buildSignals(snap)

	return snap, nil
}

// buildSignals renders the human-readable signal list that goes straight
// into the reasoning-service prompt.
func buildSignals(s *Snapshot) []string {
	var signals []string

	switch {
	case s.RSI14 <= 30:
		signals = append(signals, fmt.Sprintf("RSI oversold (%.1f)", s.RSI14))
	case s.RSI14 >= 70:
		signals = append(signals, fmt.Sprintf("RSI overbought (%.1f)", s.RSI14))
	}

	if s.MACD > s.MACDSignal && s.MACDHistogram > 0 {
		signals = append(signals, "MACD bullish crossover")
	} else if s.MACD < s.MACDSignal && s.MACDHistogram < 0 {
		signals = append(signals, "MACD bearish crossover")
	}

	if s.SMA7 > s.SMA20 && s.SMA20 > s.SMA50 {
		signals = append(signals, "moving averages aligned bullish (SMA7 > SMA20 > SMA50)")
	} else if s.SMA7 < s.SMA20 && s.SMA20 < s.SMA50 {
		signals = append(signals, "moving averages aligned bearish (SMA7 < SMA20 < SMA50)")
	}

	if s.Support > 0 && math.Abs(s.Price-s.Support)/s.Price <= 0.02 {
		signals = append(signals, fmt.Sprintf("price within 2%% of support %.2f", s.Support))
	}
	if s.Resistance > 0 && math.Abs(s.Resistance-s.Price)/s.Price <= 0.02 {
		signals = append(signals, fmt.Sprintf("price within 2%% of resistance %.2f", s.Resistance))
	}

	if s.VolumeTrend == VolumeIncreasing {
		signals = append(signals, "volume increasing")
	} else if s.VolumeTrend == VolumeDecreasing {
		signals = append(signals, "volume decreasing")
	}

	return signals
}
