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

const panicDumpScope = "panic_dump"

// PanicDumpConfig configures the panic dump detector.
type PanicDumpConfig struct {
	HistoryWindow     int
	VolumeFactor      float64
	MinSellRatio      float64 // taker sell share of the current bar
	MinPriceDrop      float64 // static threshold %, used when adaptive is off
	Cooldown          time.Duration
	TrendMAPeriod     int // MA period on the detector's own series
	ResonanceMAPeriod int // MA period on the higher timeframe
	Adaptive          AdaptiveThresholds
}

// DefaultPanicDumpConfig returns the production defaults.
func DefaultPanicDumpConfig() PanicDumpConfig {
	return PanicDumpConfig{
		HistoryWindow:     60,
		VolumeFactor:      5.0,
		MinSellRatio:      0.6,
		MinPriceDrop:      2.0,
		Cooldown:          10 * time.Minute,
		TrendMAPeriod:     20,
		ResonanceMAPeriod: 20,
		Adaptive: AdaptiveThresholds{
			Enabled:        true,
			ATRPeriod:      14,
			VolatilityLow:  3.0,
			VolatilityHigh: 8.0,
			PumpLow:        1.5,
			PumpNormal:     2.0,
			PumpHigh:       3.0,
		},
	}
}

// PanicDump is the mirror of EarlyPump: a sharp drop on outsized volume
// driven by taker selling, confirmed by the trend on the detector's own
// series and optionally the higher timeframe.
type PanicDump struct {
	cfg   PanicDumpConfig
	store state.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewPanicDump creates a panic dump detector.
func NewPanicDump(cfg PanicDumpConfig, store state.Store, log zerolog.Logger) *PanicDump {
	return &PanicDump{
		cfg:   cfg,
		store: store,
		log:   log.With().Str("component", "panic_dump").Logger(),
		now:   time.Now,
	}
}

// Analyze checks the latest bar for a panic dump. A bar without a taker
// split cannot confirm selling pressure and never fires.
func (p *PanicDump) Analyze(symbol string, candles []market.Candle, resonance []market.Candle) *signal.Signal {
	if len(candles) < p.cfg.HistoryWindow+1 {
		return nil
	}

	now := p.now()
	if last, ok := p.store.LastTrigger(panicDumpScope, symbol); ok && now.Sub(last) < p.cfg.Cooldown {
		return nil
	}

	cur := candles[len(candles)-1]
	drop := -cur.ChangePct()

	threshold, _ := p.cfg.Adaptive.Resolve(candles)
	if threshold <= 0 {
		threshold = p.cfg.MinPriceDrop
	}
	if drop < threshold {
		return nil
	}

	history := candles[len(candles)-1-p.cfg.HistoryWindow : len(candles)-1]
	baseline := avgVolume(history)
	if baseline <= 0 {
		return nil
	}
	volumeRatio := cur.Volume / baseline
	if volumeRatio < p.cfg.VolumeFactor {
		return nil
	}

	if !cur.HasFlow() || cur.Volume <= 0 {
		return nil
	}
	sellRatio := *cur.TakerSellVolume / cur.Volume
	if sellRatio < p.cfg.MinSellRatio {
		return nil
	}

	// A dump only matters when the local trend has actually turned.
	ma := indicators.SMA(market.Closes(candles), p.cfg.TrendMAPeriod)
	if ma <= 0 || cur.Close >= ma {
		return nil
	}
	if len(resonance) > p.cfg.ResonanceMAPeriod {
		htfMA := indicators.SMA(market.Closes(resonance), p.cfg.ResonanceMAPeriod)
		if htfMA > 0 && cur.Close >= htfMA {
			return nil
		}
	}

	grade := signal.GradeA
	if drop > 2 && volumeRatio > 10 {
		grade = signal.GradeAPlus
	}

	p.store.SetLastTrigger(panicDumpScope, symbol, now)
	p.log.Info().
		Str("symbol", symbol).
		Float64("price_drop_pct", drop).
		Float64("volume_ratio", volumeRatio).
		Float64("sell_ratio", sellRatio).
		Str("grade", string(grade)).
		Msg("panic dump detected")

	return &signal.Signal{
		Type:      signal.TypePanicDump,
		Grade:     grade,
		Symbol:    symbol,
		Timestamp: now,
		Description: fmt.Sprintf("-%.2f%% on %.1fx volume, %.0f%% taker sells (threshold %.2f%%)",
			drop, volumeRatio, sellRatio*100, threshold),
		Fields: map[string]float64{
			"price_drop_pct": drop,
			"volume_ratio":   volumeRatio,
			"sell_ratio":     sellRatio,
			"threshold_pct":  threshold,
		},
	}
}
