package ta

import (
	"errors"

	"tradesentinel/src/model"
)

// ErrInsufficientData is returned when a series is too short for the
// requested indicator.
var ErrInsufficientData = errors.New("insufficient data: need at least 10 candles")

// MinCandles is the minimum series length any indicator accepts.
const MinCandles = 10

func closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SMA calculates the simple moving average over the last period closes.
func SMA(candles []model.Candle, period int) (float64, error) {
	if len(candles) < MinCandles || len(candles) < period {
		return 0, ErrInsufficientData
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period), nil
}

// EMA calculates the exponential moving average over the series, seeded
// with a simple average of the first period values and iterated with
// smoothing factor 2/(period+1).
func EMA(candles []model.Candle, period int) (float64, error) {
	series, err := emaSeries(closes(candles), period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// emaSeries returns the EMA for every index from period-1 onward.
func emaSeries(values []float64, period int) ([]float64, error) {
	if len(values) < MinCandles || len(values) < period {
		return nil, ErrInsufficientData
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)

	k := 2.0 / float64(period+1)

	series := make([]float64, 0, len(values)-period+1)
	series = append(series, seed)

	ema := seed
	for i := period; i < len(values); i++ {
		ema = values[i]*k + ema*(1-k)
		series = append(series, ema)
	}
	return series, nil
}

// RSI calculates the Relative Strength Index using Wilder's smoothing:
// average gain/loss seeded over the first period deltas, then smoothed
// recursively. A zero average loss yields 100.
func RSI(candles []model.Candle, period int) (float64, error) {
	if len(candles) < MinCandles || len(candles) < period+1 {
		return 0, ErrInsufficientData
	}

	cls := closes(candles)

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		change := cls[i] - cls[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(cls); i++ {
		change := cls[i] - cls[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100.0, nil
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}

// MACDResult holds the MACD line, signal line and histogram.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD calculates EMA12-EMA26 as a full series so the 9-period signal
// line is a proper EMA of the MACD series, then the histogram as the
// difference of the two. Needs at least 34 candles (26 for the slow EMA
// plus 9 MACD points for the signal seed).
func MACD(candles []model.Candle) (*MACDResult, error) {
	const (
		fast   = 12
		slow   = 26
		signal = 9
	)

	cls := closes(candles)
	if len(cls) < slow+signal-1 {
		return nil, ErrInsufficientData
	}

	fastSeries, err := emaSeries(cls, fast)
	if err != nil {
		return nil, err
	}
	slowSeries, err := emaSeries(cls, slow)
	if err != nil {
		return nil, err
	}

	// Both series end at the last candle; align them from the point the
	// slow EMA starts existing.
	offset := len(fastSeries) - len(slowSeries)
	macdSeries := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdSeries[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signalSeries, err := emaSeriesShort(macdSeries, signal)
	if err != nil {
		return nil, err
	}

	macdLine := macdSeries[len(macdSeries)-1]
	signalLine := signalSeries[len(signalSeries)-1]

	return &MACDResult{
		MACD:      macdLine,
		Signal:    signalLine,
		Histogram: macdLine - signalLine,
	}, nil
}

// emaSeriesShort is emaSeries without the 10-candle floor, for derived
// series like the MACD line.
func emaSeriesShort(values []float64, period int) ([]float64, error) {
	if len(values) < period {
		return nil, ErrInsufficientData
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)

	k := 2.0 / float64(period+1)

	series := make([]float64, 0, len(values)-period+1)
	series = append(series, seed)

	ema := seed
	for i := period; i < len(values); i++ {
		ema = values[i]*k + ema*(1-k)
		series = append(series, ema)
	}
	return series, nil
}
