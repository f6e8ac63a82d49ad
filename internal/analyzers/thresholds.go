// Package analyzers contains the per-symbol pattern detectors. Each
// detector takes the candle series plus whatever cross-market context it
// needs, and returns a graded signal or nil. Cooldowns live in the shared
// state store keyed by (detector, symbol), so detectors never suppress
// each other and a restart does not reset them when the store is Redis.
package analyzers

import (
	"flow-signal-bot/internal/indicators"
	"flow-signal-bot/internal/market"
)

// AdaptiveThresholds maps current volatility onto a pump/dump price-change
// threshold: quiet markets fire on smaller moves, hot markets need bigger
// ones.
type AdaptiveThresholds struct {
	Enabled        bool
	ATRPeriod      int
	VolatilityLow  float64 // ATR% below this is LOW volatility
	VolatilityHigh float64 // ATR% at or above this is HIGH volatility
	PumpLow        float64 // threshold (%) in LOW volatility
	PumpNormal     float64
	PumpHigh       float64
}

// Resolve returns the price-change threshold (%) for the current series
// and the volatility level it was derived from. Threshold 0 means the
// adaptive mode is disabled and the caller should use its static minimum.
func (t AdaptiveThresholds) Resolve(candles []market.Candle) (float64, indicators.VolatilityLevel) {
	if !t.Enabled {
		return 0, indicators.VolatilityNormal
	}
	atrPct, ok := indicators.ATRPercent(candles, t.ATRPeriod)
	if !ok {
		return t.PumpNormal, indicators.VolatilityNormal
	}
	level := indicators.ClassifyVolatility(atrPct, t.VolatilityLow, t.VolatilityHigh)
	switch level {
	case indicators.VolatilityLow:
		return t.PumpLow, level
	case indicators.VolatilityHigh:
		return t.PumpHigh, level
	default:
		return t.PumpNormal, level
	}
}

// avgVolume returns the mean volume of the slice, 0 when empty.
func avgVolume(candles []market.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candles {
		sum += c.Volume
	}
	return sum / float64(len(candles))
}

// volumeAccelerating reports whether the last 3 bars average more volume
// than 1.3x the 10 bars before them. Needs at least 13 bars.
func volumeAccelerating(candles []market.Candle) bool {
	n := len(candles)
	if n < 13 {
		return false
	}
	recent := avgVolume(candles[n-3:])
	past := avgVolume(candles[n-13 : n-3])
	return recent > past*1.3
}
