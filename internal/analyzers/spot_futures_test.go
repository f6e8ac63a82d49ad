package analyzers

import (
	"testing"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/market"
)

func pair(prevClose, lastClose float64) []market.Candle {
	return []market.Candle{{Close: prevClose}, {Close: lastClose}}
}

func TestSpotFuturesFuturesLeading(t *testing.T) {
	sf := NewSpotFutures(DefaultSpotFuturesConfig(), zerolog.Nop())

	c := sf.Analyze(pair(100, 100.1), pair(100, 101))
	if c == nil {
		t.Fatal("expected a correlation")
	}
	if c.Strength != StrengthHigh {
		t.Errorf("futures leading should be HIGH, got %s", c.Strength)
	}
	if c.Divergence <= 0 {
		t.Errorf("divergence should be positive, got %f", c.Divergence)
	}
}

func TestSpotFuturesSynchronizedRise(t *testing.T) {
	sf := NewSpotFutures(DefaultSpotFuturesConfig(), zerolog.Nop())

	c := sf.Analyze(pair(100, 101), pair(100, 101.1))
	if c == nil {
		t.Fatal("expected a correlation")
	}
	if c.Strength != StrengthMedium {
		t.Errorf("synchronized rise should be MEDIUM, got %s", c.Strength)
	}
}

func TestSpotFuturesSpotLeading(t *testing.T) {
	sf := NewSpotFutures(DefaultSpotFuturesConfig(), zerolog.Nop())

	c := sf.Analyze(pair(100, 101), pair(100, 100.1))
	if c == nil {
		t.Fatal("expected a correlation")
	}
	if c.Strength != StrengthMedium {
		t.Errorf("spot leading should be MEDIUM, got %s", c.Strength)
	}
}

func TestSpotFuturesHedging(t *testing.T) {
	// With the default 0.5 threshold a spot dip against futures buying
	// still reads as futures leading; the hedge read needs the divergence
	// gate out of the way.
	cfg := DefaultSpotFuturesConfig()
	cfg.DivergenceThreshold = 2.0
	sf := NewSpotFutures(cfg, zerolog.Nop())

	c := sf.Analyze(pair(100, 99.5), pair(100, 100.8))
	if c == nil {
		t.Fatal("expected a correlation")
	}
	if c.Strength != StrengthLow {
		t.Errorf("spot selling into futures buying should be LOW, got %s", c.Strength)
	}
}

func TestSpotFuturesDivergencePrecedence(t *testing.T) {
	sf := NewSpotFutures(DefaultSpotFuturesConfig(), zerolog.Nop())

	// Spot down, futures up past the divergence threshold: the leverage
	// inflow read wins over the hedge read.
	c := sf.Analyze(pair(100, 99.5), pair(100, 100.8))
	if c == nil {
		t.Fatal("expected a correlation")
	}
	if c.Strength != StrengthHigh {
		t.Errorf("divergence past the threshold should be HIGH, got %s", c.Strength)
	}
}

func TestSpotFuturesInsufficientData(t *testing.T) {
	sf := NewSpotFutures(DefaultSpotFuturesConfig(), zerolog.Nop())

	if sf.Analyze([]market.Candle{{Close: 100}}, pair(100, 101)) != nil {
		t.Error("single-bar spot series should yield no correlation")
	}
	if sf.Analyze(pair(100, 101), nil) != nil {
		t.Error("empty futures series should yield no correlation")
	}
}

func TestWhaleWatcherFilter(t *testing.T) {
	ww := NewWhaleWatcher(DefaultWhaleConfig(), zerolog.Nop())

	trades := []market.Trade{
		{Side: "buy", Cost: 250000},
		{Side: "sell", Cost: 199999},
		{Side: "sell", Price: 2.0, Amount: 150000}, // 300k notional
	}

	whales := ww.Filter(trades)
	if len(whales) != 2 {
		t.Fatalf("expected 2 whale trades, got %d", len(whales))
	}

	sig := ww.Signal("PEPE/USDT", whales)
	if sig == nil {
		t.Fatal("expected an observational whale signal")
	}
	if sig.Fields["buy_usd"] != 250000 || sig.Fields["sell_usd"] != 300000 {
		t.Errorf("unexpected whale notionals: %+v", sig.Fields)
	}

	if ww.Signal("PEPE/USDT", nil) != nil {
		t.Error("no whales should produce no signal")
	}
}
