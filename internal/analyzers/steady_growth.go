package analyzers

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/indicators"
	"flow-signal-bot/internal/market"
	"flow-signal-bot/internal/signal"
	"flow-signal-bot/internal/state"
)

const steadyGrowthScope = "steady_growth"

// SteadyGrowthConfig configures the steady growth detector. It runs on
// the higher timeframe series, not the fast one.
type SteadyGrowthConfig struct {
	MinBars         int     // slow MA period + alignment window
	AlignBars       int     // consecutive bars that must hold the alignment
	FastMAPeriod    int
	SlowMAPeriod    int
	MaxCandleChange float64 // any bigger single bar disqualifies, %
	MinSlope        float64 // fast MA slope over the alignment window
	SlopeModerate   float64
	SlopeSteep      float64
	RRBase          float64
	RRModerate      float64
	RRSteep         float64
	Cooldown        time.Duration
}

// DefaultSteadyGrowthConfig returns the production defaults.
func DefaultSteadyGrowthConfig() SteadyGrowthConfig {
	return SteadyGrowthConfig{
		MinBars:         65,
		AlignBars:       5,
		FastMAPeriod:    20,
		SlowMAPeriod:    60,
		MaxCandleChange: 3.0,
		MinSlope:        0.0005,
		SlopeModerate:   0.001,
		SlopeSteep:      0.002,
		RRBase:          3.0,
		RRModerate:      3.5,
		RRSteep:         4.0,
		Cooldown:        time.Hour,
	}
}

// SteadyGrowth detects a calm, sustained uptrend: price above the fast MA
// above the slow MA for several consecutive bars, with no blow-off candle
// and gently expanding volume.
type SteadyGrowth struct {
	cfg   SteadyGrowthConfig
	store state.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewSteadyGrowth creates a steady growth detector.
func NewSteadyGrowth(cfg SteadyGrowthConfig, store state.Store, log zerolog.Logger) *SteadyGrowth {
	return &SteadyGrowth{
		cfg:   cfg,
		store: store,
		log:   log.With().Str("component", "steady_growth").Logger(),
		now:   time.Now,
	}
}

// Analyze checks the series for a steady growth setup.
func (s *SteadyGrowth) Analyze(symbol string, candles []market.Candle) *signal.Signal {
	if len(candles) < s.cfg.MinBars {
		return nil
	}

	now := s.now()
	if last, ok := s.store.LastTrigger(steadyGrowthScope, symbol); ok && now.Sub(last) < s.cfg.Cooldown {
		return nil
	}

	closes := market.Closes(candles)
	n := len(candles)

	var firstFastMA, lastFastMA, lastSlowMA float64
	for i := n - s.cfg.AlignBars; i < n; i++ {
		fastMA := indicators.SMA(closes[:i+1], s.cfg.FastMAPeriod)
		slowMA := indicators.SMA(closes[:i+1], s.cfg.SlowMAPeriod)
		if !(closes[i] > fastMA && fastMA > slowMA) {
			return nil
		}
		change := candles[i].ChangePct()
		if change > s.cfg.MaxCandleChange || change < -s.cfg.MaxCandleChange {
			return nil
		}
		if i == n-s.cfg.AlignBars {
			firstFastMA = fastMA
		}
		lastFastMA, lastSlowMA = fastMA, slowMA
	}

	if firstFastMA <= 0 {
		return nil
	}
	slope := (lastFastMA - firstFastMA) / firstFastMA
	if slope < s.cfg.MinSlope {
		return nil
	}

	if !volumeAccelerating(candles) {
		return nil
	}

	entry := closes[n-1]
	atr := indicators.MeanTrueRange(candles[n-s.cfg.AlignBars:])
	stop := lastSlowMA - 2*atr
	risk := entry - stop
	if risk <= 0 {
		return nil
	}

	rr := s.cfg.RRBase
	switch {
	case slope >= s.cfg.SlopeSteep:
		rr = s.cfg.RRSteep
	case slope >= s.cfg.SlopeModerate:
		rr = s.cfg.RRModerate
	}

	s.store.SetLastTrigger(steadyGrowthScope, symbol, now)
	s.log.Info().
		Str("symbol", symbol).
		Float64("slope", slope).
		Float64("rr", rr).
		Msg("steady growth detected")

	return &signal.Signal{
		Type:      signal.TypeSteadyGrowth,
		Grade:     signal.GradeA,
		Symbol:    symbol,
		Timestamp: now,
		Description: fmt.Sprintf("aligned uptrend for %d bars, MA slope %.4f, RR %.1f",
			s.cfg.AlignBars, slope, rr),
		Fields: map[string]float64{
			"slope":   slope,
			"fast_ma": lastFastMA,
			"slow_ma": lastSlowMA,
			"rr":      rr,
		},
		Suggestion: &signal.Suggestion{
			Side:       "LONG",
			Entry:      entry,
			StopLoss:   stop,
			TakeProfit: entry + risk*rr,
			RiskReward: rr,
			ATR:        atr,
		},
	}
}
