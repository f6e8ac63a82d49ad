package indicators

import (
	"flow-signal-bot/internal/market"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates the Simple Moving Average over the last period values.
// Returns 0 if there is not enough data.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA calculates the Exponential Moving Average over the values.
// Returns 0 if there is not enough data.
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	multiplier := 2.0 / float64(period+1)
	ema := SMA(values[:period], period)
	for _, v := range values[period:] {
		ema = (v-ema)*multiplier + ema
	}
	return ema
}

// IsTrendUp reports whether the latest close sits above the average of the
// preceding lookback closes. Returns false when there is not enough data.
func IsTrendUp(candles []market.Candle, lookback int) bool {
	if lookback <= 0 || len(candles) < lookback+1 {
		return false
	}
	last := candles[len(candles)-1].Close
	prev := candles[len(candles)-1-lookback : len(candles)-1]
	sum := 0.0
	for _, c := range prev {
		sum += c.Close
	}
	return last > sum/float64(lookback)
}

// ============================================================================
// VOLATILITY
// ============================================================================

// trueRange returns the bar's true range given the previous close.
func trueRange(c market.Candle, prevClose float64) float64 {
	tr := c.High - c.Low
	if d := abs(c.High - prevClose); d > tr {
		tr = d
	}
	if d := abs(c.Low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// ATR calculates the Average True Range with exponential smoothing
// (span = period). Returns 0 if there is not enough data.
func ATR(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	multiplier := 2.0 / float64(period+1)
	atr := 0.0
	for i, c := range candles {
		prevClose := c.Close
		if i > 0 {
			prevClose = candles[i-1].Close
		}
		tr := trueRange(c, prevClose)
		if i == 0 {
			atr = tr
			continue
		}
		atr = (tr-atr)*multiplier + atr
	}
	return atr
}

// ATRPercent returns ATR as a percentage of the latest close.
// ok is false when ATR is unavailable or the close is non-positive.
func ATRPercent(candles []market.Candle, period int) (float64, bool) {
	atr := ATR(candles, period)
	if atr <= 0 {
		return 0, false
	}
	last := candles[len(candles)-1].Close
	if last <= 0 {
		return 0, false
	}
	return atr / last * 100, true
}

// MeanTrueRange returns the arithmetic mean of the true range over the
// slice. Used where a cheap unsmoothed volatility estimate is enough.
func MeanTrueRange(candles []market.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	sum := 0.0
	for i, c := range candles {
		prevClose := c.Close
		if i > 0 {
			prevClose = candles[i-1].Close
		}
		sum += trueRange(c, prevClose)
	}
	return sum / float64(len(candles))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ============================================================================
// VOLATILITY LEVEL
// ============================================================================

// VolatilityLevel buckets ATR% into the three regimes threshold and
// sizing logic keys off.
type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "LOW"
	VolatilityNormal VolatilityLevel = "NORMAL"
	VolatilityHigh   VolatilityLevel = "HIGH"
)

// ClassifyVolatility maps an ATR percentage onto a volatility level.
// An unavailable ATR% (atrPct <= 0 or !ok upstream) classifies as NORMAL.
func ClassifyVolatility(atrPct, low, high float64) VolatilityLevel {
	if atrPct <= 0 {
		return VolatilityNormal
	}
	switch {
	case atrPct < low:
		return VolatilityLow
	case atrPct >= high:
		return VolatilityHigh
	default:
		return VolatilityNormal
	}
}
