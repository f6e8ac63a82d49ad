package analyzers

import (
	"github.com/rs/zerolog"

	"flow-signal-bot/internal/market"
)

// Strength classifies how strongly the spot and futures markets agree.
type Strength string

const (
	StrengthHigh   Strength = "HIGH"
	StrengthMedium Strength = "MEDIUM"
	StrengthLow    Strength = "LOW"
)

// Correlation is the outcome of comparing the latest spot and futures bars.
type Correlation struct {
	SpotChangePct    float64
	FuturesChangePct float64
	// Divergence is futures change minus spot change, in percentage points.
	Divergence  float64
	Strength    Strength
	Description string
}

// SpotFuturesConfig configures the spot/futures correlation analyzer.
type SpotFuturesConfig struct {
	DivergenceThreshold  float64 // percentage points
	CorrelationThreshold float64
}

// DefaultSpotFuturesConfig returns the production defaults.
func DefaultSpotFuturesConfig() SpotFuturesConfig {
	return SpotFuturesConfig{
		DivergenceThreshold:  0.5,
		CorrelationThreshold: 0.3,
	}
}

// SpotFutures measures bar-over-bar agreement between a symbol's spot and
// futures markets. Futures rising ahead of spot is the strongest
// confirmation, leveraged money moving first; a synchronized rise is
// moderate; spot selling against futures buying smells like hedging.
type SpotFutures struct {
	cfg SpotFuturesConfig
	log zerolog.Logger
}

// NewSpotFutures creates a spot/futures correlation analyzer.
func NewSpotFutures(cfg SpotFuturesConfig, log zerolog.Logger) *SpotFutures {
	return &SpotFutures{
		cfg: cfg,
		log: log.With().Str("component", "spot_futures").Logger(),
	}
}

// Analyze compares the latest bar-over-bar change on both markets.
// Returns nil when either series has fewer than two bars.
func (s *SpotFutures) Analyze(spot, futures []market.Candle) *Correlation {
	spotChg, ok := lastBarChange(spot)
	if !ok {
		return nil
	}
	futChg, ok := lastBarChange(futures)
	if !ok {
		return nil
	}

	div := futChg - spotChg
	c := &Correlation{
		SpotChangePct:    spotChg,
		FuturesChangePct: futChg,
		Divergence:       div,
	}

	switch {
	case div >= s.cfg.DivergenceThreshold && futChg > 0:
		c.Strength = StrengthHigh
		c.Description = "futures leading spot"
	case abs(div) <= s.cfg.CorrelationThreshold && spotChg > 0 && futChg > 0:
		c.Strength = StrengthMedium
		c.Description = "spot and futures rising together"
	case spotChg < -0.2 && futChg > 0.5:
		c.Strength = StrengthLow
		c.Description = "spot selling against futures buying, likely hedging"
	case div < -s.cfg.DivergenceThreshold && spotChg > 0:
		c.Strength = StrengthMedium
		c.Description = "spot leading futures"
	default:
		c.Strength = StrengthLow
		c.Description = "no meaningful correlation"
	}

	return c
}

func lastBarChange(candles []market.Candle) (float64, bool) {
	if len(candles) < 2 {
		return 0, false
	}
	prev := candles[len(candles)-2].Close
	if prev <= 0 {
		return 0, false
	}
	return (candles[len(candles)-1].Close - prev) / prev * 100, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
