package indicators

import (
	"math"
	"testing"

	"flow-signal-bot/internal/market"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	if got := SMA(values, 5); got != 3 {
		t.Errorf("SMA(5) = %f, want 3", got)
	}
	if got := SMA(values, 2); got != 4.5 {
		t.Errorf("SMA(2) = %f, want 4.5", got)
	}
	if got := SMA(values, 10); got != 0 {
		t.Errorf("SMA with insufficient data should be 0, got %f", got)
	}
}

func TestEMAConstantSeries(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 50
	}
	if got := EMA(values, 10); math.Abs(got-50) > 1e-9 {
		t.Errorf("EMA of constant series should be the constant, got %f", got)
	}
}

func TestATRConstantRange(t *testing.T) {
	// Every bar has the same 2-point range and closes flat, so the smoothed
	// true range converges to exactly 2.
	candles := make([]market.Candle, 40)
	for i := range candles {
		candles[i] = market.Candle{Open: 100, High: 101, Low: 99, Close: 100}
	}

	atr := ATR(candles, 14)
	if math.Abs(atr-2) > 1e-9 {
		t.Errorf("ATR = %f, want 2", atr)
	}

	pct, ok := ATRPercent(candles, 14)
	if !ok || math.Abs(pct-2) > 1e-9 {
		t.Errorf("ATRPercent = %f (ok=%v), want 2", pct, ok)
	}
}

func TestATRInsufficientData(t *testing.T) {
	candles := make([]market.Candle, 10)
	for i := range candles {
		candles[i] = market.Candle{Open: 100, High: 101, Low: 99, Close: 100}
	}
	if got := ATR(candles, 14); got != 0 {
		t.Errorf("ATR with insufficient data should be 0, got %f", got)
	}
	if _, ok := ATRPercent(candles, 14); ok {
		t.Error("ATRPercent with insufficient data should not be ok")
	}
}

func TestIsTrendUp(t *testing.T) {
	candles := make([]market.Candle, 25)
	for i := range candles {
		candles[i] = market.Candle{Close: 100 + float64(i)}
	}
	if !IsTrendUp(candles, 20) {
		t.Error("rising series should be trending up")
	}

	for i := range candles {
		candles[i] = market.Candle{Close: 200 - float64(i)}
	}
	if IsTrendUp(candles, 20) {
		t.Error("falling series should not be trending up")
	}
}

func TestClassifyVolatility(t *testing.T) {
	cases := []struct {
		atrPct float64
		want   VolatilityLevel
	}{
		{1.0, VolatilityLow},
		{2.99, VolatilityLow},
		{3.0, VolatilityNormal},
		{5.0, VolatilityNormal},
		{7.99, VolatilityNormal},
		{8.0, VolatilityHigh},
		{12.0, VolatilityHigh},
		{0, VolatilityNormal}, // unavailable ATR% defaults to NORMAL
	}
	for _, tc := range cases {
		if got := ClassifyVolatility(tc.atrPct, 3.0, 8.0); got != tc.want {
			t.Errorf("ClassifyVolatility(%f) = %s, want %s", tc.atrPct, got, tc.want)
		}
	}
}
