package analyzers

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/market"
	"flow-signal-bot/internal/signal"
	"flow-signal-bot/internal/state"
)

func baselineCandles(n int, price, volume float64) []market.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = market.Candle{
			Timestamp:       start.Add(time.Duration(i) * 5 * time.Minute),
			Open:            price,
			High:            price + 0.5,
			Low:             price - 0.5,
			Close:           price,
			Volume:          volume,
			TakerBuyVolume:  market.Float64(volume / 2),
			TakerSellVolume: market.Float64(volume / 2),
		}
	}
	return candles
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// TestVolumeSpikeDetection tests a 6x spike with a price move fires grade A
func TestVolumeSpikeDetection(t *testing.T) {
	store := state.NewMemoryStore()
	vs := NewVolumeSpike(DefaultVolumeSpikeConfig(), store, zerolog.Nop())
	vs.now = fixedClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	candles := baselineCandles(66, 100, 100)
	for i := 63; i < 66; i++ {
		candles[i].Volume = 600
	}
	candles[65].Close = 101 // +1% over the spike window

	sig := vs.Analyze("BTC/USDT", candles)
	if sig == nil {
		t.Fatal("expected a volume spike signal")
	}
	if sig.Type != signal.TypeVolumeSpike {
		t.Errorf("unexpected type %s", sig.Type)
	}
	if sig.Grade != signal.GradeA {
		t.Errorf("6x spike should grade A, got %s", sig.Grade)
	}
	if sig.Fields["volume_ratio"] != 6 {
		t.Errorf("volume ratio = %f, want 6", sig.Fields["volume_ratio"])
	}
}

// TestVolumeSpikeModerateGradesB tests a 4x spike grades B
func TestVolumeSpikeModerateGradesB(t *testing.T) {
	store := state.NewMemoryStore()
	vs := NewVolumeSpike(DefaultVolumeSpikeConfig(), store, zerolog.Nop())
	vs.now = fixedClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	candles := baselineCandles(66, 100, 100)
	for i := 63; i < 66; i++ {
		candles[i].Volume = 400
	}
	candles[65].Close = 101

	sig := vs.Analyze("BTC/USDT", candles)
	if sig == nil {
		t.Fatal("expected a volume spike signal")
	}
	if sig.Grade != signal.GradeB {
		t.Errorf("4x spike should grade B, got %s", sig.Grade)
	}
}

// TestVolumeSpikeCooldown tests the second detection within the cooldown
// window is suppressed, and an unrelated symbol is not
func TestVolumeSpikeCooldown(t *testing.T) {
	store := state.NewMemoryStore()
	vs := NewVolumeSpike(DefaultVolumeSpikeConfig(), store, zerolog.Nop())
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	vs.now = fixedClock(base)

	candles := baselineCandles(66, 100, 100)
	for i := 63; i < 66; i++ {
		candles[i].Volume = 600
	}
	candles[65].Close = 101

	if vs.Analyze("BTC/USDT", candles) == nil {
		t.Fatal("first detection should fire")
	}

	vs.now = fixedClock(base.Add(10 * time.Minute))
	if vs.Analyze("BTC/USDT", candles) != nil {
		t.Error("detection inside the 30m cooldown should be suppressed")
	}
	if vs.Analyze("ETH/USDT", candles) == nil {
		t.Error("cooldown must be per symbol")
	}

	vs.now = fixedClock(base.Add(31 * time.Minute))
	if vs.Analyze("BTC/USDT", candles) == nil {
		t.Error("detection after the cooldown should fire again")
	}
}

// TestVolumeSpikeRequiresPriceMove tests a flat-price spike does not fire
func TestVolumeSpikeRequiresPriceMove(t *testing.T) {
	store := state.NewMemoryStore()
	vs := NewVolumeSpike(DefaultVolumeSpikeConfig(), store, zerolog.Nop())
	vs.now = fixedClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	candles := baselineCandles(66, 100, 100)
	for i := 63; i < 66; i++ {
		candles[i].Volume = 600
	}
	// no price change

	if vs.Analyze("BTC/USDT", candles) != nil {
		t.Error("spike without a price move should not fire")
	}
}

// TestVolumeSpikeInsufficientData tests short series are skipped
func TestVolumeSpikeInsufficientData(t *testing.T) {
	store := state.NewMemoryStore()
	vs := NewVolumeSpike(DefaultVolumeSpikeConfig(), store, zerolog.Nop())

	if vs.Analyze("BTC/USDT", baselineCandles(30, 100, 100)) != nil {
		t.Error("short series should not fire")
	}
}
