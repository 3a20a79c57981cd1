package ta

import "tradesentinel/src/model"

const (
	// swingWindow is the number of candles on each side a local extremum
	// must dominate.
	swingWindow = 5
	// fallbackLookback bounds the min/max fallback when no swing point
	// qualifies.
	fallbackLookback = 20
)

// VolumeTrend labels the volume development: the ratio of the mean of
// the last 5 volumes to the mean of the prior 5.
const (
	VolumeIncreasing = "increasing"
	VolumeDecreasing = "decreasing"
	VolumeStable     = "stable"
)

func isSwingLow(candles []model.Candle, i int) bool {
	if i < swingWindow || i >= len(candles)-swingWindow {
		return false
	}
	for j := i - swingWindow; j <= i+swingWindow; j++ {
		if j == i {
			continue
		}
		if candles[i].Low >= candles[j].Low {
			return false
		}
	}
	return true
}

func isSwingHigh(candles []model.Candle, i int) bool {
	if i < swingWindow || i >= len(candles)-swingWindow {
		return false
	}
	for j := i - swingWindow; j <= i+swingWindow; j++ {
		if j == i {
			continue
		}
		if candles[i].High <= candles[j].High {
			return false
		}
	}
	return true
}

// Support returns the highest swing-low below the current price. When no
// swing-low qualifies it falls back to the minimum low of the last 20
// candles.
func Support(candles []model.Candle, currentPrice float64) (float64, error) {
	if len(candles) < MinCandles {
		return 0, ErrInsufficientData
	}

	best := 0.0
	found := false
	for i := range candles {
		if !isSwingLow(candles, i) {
			continue
		}
		low := candles[i].Low
		if low < currentPrice && (!found || low > best) {
			best = low
			found = true
		}
	}
	if found {
		return best, nil
	}

	start := len(candles) - fallbackLookback
	if start < 0 {
		start = 0
	}
	min := candles[start].Low
	for _, c := range candles[start:] {
		if c.Low < min {
			min = c.Low
		}
	}
	return min, nil
}

// Resistance returns the lowest swing-high above the current price, with
// a max-high-of-last-20 fallback.
func Resistance(candles []model.Candle, currentPrice float64) (float64, error) {
	if len(candles) < MinCandles {
		return 0, ErrInsufficientData
	}

	best := 0.0
	found := false
	for i := range candles {
		if !isSwingHigh(candles, i) {
			continue
		}
		high := candles[i].High
		if high > currentPrice && (!found || high < best) {
			best = high
			found = true
		}
	}
	if found {
		return best, nil
	}

	start := len(candles) - fallbackLookback
	if start < 0 {
		start = 0
	}
	max := candles[start].High
	for _, c := range candles[start:] {
		if c.High > max {
			max = c.High
		}
	}
	return max, nil
}

// VolumeTrendLabel classifies the recent volume development.
func VolumeTrendLabel(candles []model.Candle) (string, error) {
	if len(candles) < MinCandles {
		return "", ErrInsufficientData
	}

	recent := 0.0
	prior := 0.0
	n := len(candles)
	for i := n - 5; i < n; i++ {
		recent += candles[i].Volume
	}
	for i := n - 10; i < n-5; i++ {
		prior += candles[i].Volume
	}
	recent /= 5
	prior /= 5

	if prior == 0 {
		return VolumeStable, nil
	}

	ratio := recent / prior
	switch {
	case ratio > 1.2:
		return VolumeIncreasing, nil
	case ratio < 0.8:
		return VolumeDecreasing, nil
	default:
		return VolumeStable, nil
	}
}
