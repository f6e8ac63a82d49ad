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

const earlyPumpScope = "early_pump"

// EarlyPumpConfig configures the early pump detector.
type EarlyPumpConfig struct {
	HistoryWindow     int           // bars for the volume baseline
	VolumeFactor      float64       // current bar volume vs baseline
	MinBuyRatio       float64       // taker buy share of the current bar
	MinPriceChange    float64       // static threshold %, used when adaptive is off
	Cooldown          time.Duration
	ResonanceMAPeriod int           // MA period on the higher timeframe
	WhaleLookback     time.Duration // how recent a whale buy must be to count
	Adaptive          AdaptiveThresholds
}

// DefaultEarlyPumpConfig returns the production defaults.
func DefaultEarlyPumpConfig() EarlyPumpConfig {
	return EarlyPumpConfig{
		HistoryWindow:     60,
		VolumeFactor:      5.0,
		MinBuyRatio:       0.6,
		MinPriceChange:    2.0,
		Cooldown:          10 * time.Minute,
		ResonanceMAPeriod: 20,
		WhaleLookback:     15 * time.Minute,
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

// PumpContext carries the cross-market evidence that upgrades an early
// pump's grade. Every field is optional.
type PumpContext struct {
	Resonance   []market.Candle // higher timeframe series for the same symbol
	SpotFutures *Correlation
	WhaleTrades []market.Trade // already filtered to whale-sized trades
}

// EarlyPump detects the first explosive bar of a pump: an outsized price
// move on outsized volume driven by taker buying, graded by how much
// independent evidence confirms it.
type EarlyPump struct {
	cfg   EarlyPumpConfig
	store state.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewEarlyPump creates an early pump detector.
func NewEarlyPump(cfg EarlyPumpConfig, store state.Store, log zerolog.Logger) *EarlyPump {
	return &EarlyPump{
		cfg:   cfg,
		store: store,
		log:   log.With().Str("component", "early_pump").Logger(),
		now:   time.Now,
	}
}

// Analyze checks the latest bar for an early pump. The taker buy share is
// a hard requirement: a bar without a taker split cannot confirm buying
// pressure and never fires.
func (e *EarlyPump) Analyze(symbol string, candles []market.Candle, pctx PumpContext) *signal.Signal {
	if len(candles) < e.cfg.HistoryWindow+1 {
		return nil
	}

	now := e.now()
	if last, ok := e.store.LastTrigger(earlyPumpScope, symbol); ok && now.Sub(last) < e.cfg.Cooldown {
		return nil
	}

	cur := candles[len(candles)-1]
	priceChange := cur.ChangePct()

	threshold, level := e.cfg.Adaptive.Resolve(candles)
	if threshold <= 0 {
		threshold = e.cfg.MinPriceChange
	}
	if priceChange < threshold {
		return nil
	}

	history := candles[len(candles)-1-e.cfg.HistoryWindow : len(candles)-1]
	baseline := avgVolume(history)
	if baseline <= 0 {
		return nil
	}
	volumeRatio := cur.Volume / baseline
	if volumeRatio < e.cfg.VolumeFactor {
		return nil
	}

	if !cur.HasFlow() || cur.Volume <= 0 {
		return nil
	}
	buyRatio := *cur.TakerBuyVolume / cur.Volume
	if buyRatio < e.cfg.MinBuyRatio {
		return nil
	}

	score := e.score(priceChange, threshold, volumeRatio, buyRatio, level, cur.Close, pctx, now)
	grade := signal.GradeBPlus
	switch {
	case score >= 9:
		grade = signal.GradeAPlus
	case score >= 7:
		grade = signal.GradeA
	}

	e.store.SetLastTrigger(earlyPumpScope, symbol, now)
	e.log.Info().
		Str("symbol", symbol).
		Float64("price_change_pct", priceChange).
		Float64("volume_ratio", volumeRatio).
		Float64("buy_ratio", buyRatio).
		Int("score", score).
		Str("grade", string(grade)).
		Msg("early pump detected")

	return &signal.Signal{
		Type:      signal.TypeEarlyPump,
		Grade:     grade,
		Symbol:    symbol,
		Timestamp: now,
		Description: fmt.Sprintf("+%.2f%% on %.1fx volume, %.0f%% taker buys (threshold %.2f%%, %s volatility)",
			priceChange, volumeRatio, buyRatio*100, threshold, level),
		Fields: map[string]float64{
			"price_change_pct": priceChange,
			"volume_ratio":     volumeRatio,
			"buy_ratio":        buyRatio,
			"threshold_pct":    threshold,
			"score":            float64(score),
		},
		Suggestion: e.suggestion(candles, cur.Close, level),
	}
}

// score applies the grading rubric: base tiers for the three core inputs,
// bonuses for independent confirmation, a penalty in hot markets where
// big bars mean less.
func (e *EarlyPump) score(priceChange, threshold, volumeRatio, buyRatio float64, level indicators.VolatilityLevel, price float64, pctx PumpContext, now time.Time) int {
	score := 0

	switch {
	case priceChange >= 2*threshold:
		score += 3
	case priceChange >= 1.5*threshold:
		score += 2
	default:
		score++
	}

	switch {
	case volumeRatio >= 2*e.cfg.VolumeFactor:
		score += 2
	case volumeRatio >= 1.5*e.cfg.VolumeFactor:
		score++
	}

	switch {
	case buyRatio >= 0.75:
		score += 2
	case buyRatio >= 0.68:
		score++
	}

	if len(pctx.Resonance) > e.cfg.ResonanceMAPeriod {
		ma := indicators.SMA(market.Closes(pctx.Resonance), e.cfg.ResonanceMAPeriod)
		if ma > 0 && price > ma {
			score += 2
		}
	}

	if pctx.SpotFutures != nil {
		switch pctx.SpotFutures.Strength {
		case StrengthHigh:
			score += 2
		case StrengthMedium:
			score++
		}
	}

	if hasRecentWhaleBuy(pctx.WhaleTrades, now.Add(-e.cfg.WhaleLookback)) {
		score += 2
	}

	if level == indicators.VolatilityHigh {
		score--
	}

	return score
}

// suggestion builds the trade plan: stop at 1.5x ATR% below entry clamped
// to [1%, 3%], reward multiple shrinking as volatility rises.
func (e *EarlyPump) suggestion(candles []market.Candle, entry float64, level indicators.VolatilityLevel) *signal.Suggestion {
	period := e.cfg.Adaptive.ATRPeriod
	if period <= 0 {
		period = 14
	}
	atrPct, ok := indicators.ATRPercent(candles, period)
	if !ok {
		atrPct = 2.0
	}

	slPct := atrPct * 1.5
	if slPct < 1.0 {
		slPct = 1.0
	}
	if slPct > 3.0 {
		slPct = 3.0
	}

	rr := 2.5
	switch level {
	case indicators.VolatilityLow:
		rr = 3.0
	case indicators.VolatilityHigh:
		rr = 2.0
	}

	stop := entry * (1 - slPct/100)
	risk := entry - stop

	return &signal.Suggestion{
		Side:       "LONG",
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: entry + risk*rr,
		RiskReward: rr,
		ATR:        indicators.ATR(candles, period),
	}
}

func hasRecentWhaleBuy(trades []market.Trade, since time.Time) bool {
	for _, t := range trades {
		if t.Side == "buy" && !t.Timestamp.Before(since) {
			return true
		}
	}
	return false
}
