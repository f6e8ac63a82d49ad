// Package strategy turns the fused per-symbol picture (flow metrics,
// consensus, signals, regime) into entry and exit recommendations. It is
// advisory: order placement belongs to whatever consumes the
// recommendations.
package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/consensus"
	"flow-signal-bot/internal/flow"
	"flow-signal-bot/internal/regime"
	"flow-signal-bot/internal/signal"
	"flow-signal-bot/internal/state"
)

const strategyScope = "strategy"

// Side is the direction of a recommendation.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Action is the kind of recommendation.
type Action string

const (
	ActionEntry Action = "ENTRY"
	ActionExit  Action = "EXIT"
)

// Config configures the strategy engine.
type Config struct {
	MinTotalFlowUSD   float64       // flow-based entries need this much net flow
	MinRatio          float64       // and at least this average buy/sell ratio
	MinActionInterval time.Duration // per-symbol rate limit on actions
	MinConsensusBars  int           // consecutive agreeing evaluations before entry
	ATRStopMult       float64
	ATRTargetMult     float64
	TrendRRBoost      float64 // added to the target multiple when the fast trend agrees
	RequireMidband    bool    // entries must sit on the momentum side of the S/R midpoint
	EnableShort       bool
	ShortOnlyInBear   bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinTotalFlowUSD:   10_000_000,
		MinRatio:          1.1,
		MinActionInterval: 900 * time.Second,
		MinConsensusBars:  2,
		ATRStopMult:       1.5,
		ATRTargetMult:     2.0,
		TrendRRBoost:      0.5,
		RequireMidband:    true,
		EnableShort:       true,
		ShortOnlyInBear:   true,
	}
}

// Input is everything one evaluation sees. Time is the evaluation clock;
// zero means wall clock. Backtests set it to the bar being replayed.
type Input struct {
	Symbol    string
	Time      time.Time
	Metrics   map[string]flow.Metrics
	Consensus consensus.Consensus
	Signals   []signal.Signal
	Regime    regime.Regime
	FastTrend consensus.TrendHint
}

// Recommendation is an advisory entry or exit.
type Recommendation struct {
	Symbol     string
	Action     Action
	Side       Side
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Reason     string
	Time       time.Time
}

// Engine is the per-symbol entry/exit state machine. All mutable state
// lives in the injected store, so engines are cheap and a Redis-backed
// store survives restarts.
type Engine struct {
	cfg   Config
	store state.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewEngine creates a strategy engine.
func NewEngine(cfg Config, store state.Store, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:   cfg,
		store: store,
		log:   log.With().Str("component", "strategy").Logger(),
		now:   time.Now,
	}
}

// Evaluate runs one decision pass. Returns nil when no action is
// warranted; the only state that mutates on a nil return is the
// consensus streak, which tracks every evaluation.
func (e *Engine) Evaluate(in Input) *Recommendation {
	now := in.Time
	if now.IsZero() {
		now = e.now()
	}

	streak := e.updateStreak(in.Symbol, in.Consensus.Direction)

	if len(in.Metrics) == 0 {
		return nil
	}

	if last, ok := e.store.LastTrigger(strategyScope, in.Symbol); ok && now.Sub(last) < e.cfg.MinActionInterval {
		return nil
	}

	price := consensus.MedianPrice(in.Metrics)
	support := medianOf(in.Metrics, func(m flow.Metrics) float64 { return m.SupportLow })
	resistance := medianOf(in.Metrics, func(m flow.Metrics) float64 { return m.ResistanceHigh })
	atr := meanOf(in.Metrics, func(m flow.Metrics) float64 { return m.ATR })

	// Exits come before the entry gating: a broken level is actionable
	// no matter what the streak or flow thresholds say.
	if rec := e.checkExit(in, now, price, support, resistance); rec != nil {
		e.store.SetLastTrigger(strategyScope, in.Symbol, now)
		return rec
	}

	if streak.Count < e.cfg.MinConsensusBars {
		return nil
	}

	var rec *Recommendation
	switch in.Consensus.Direction {
	case consensus.DirectionBullish:
		rec = e.checkLongEntry(in, now, price, support, resistance, atr)
	case consensus.DirectionBearish:
		rec = e.checkShortEntry(in, now, price, support, resistance, atr)
	}
	if rec != nil {
		e.store.SetLastTrigger(strategyScope, in.Symbol, now)
		e.log.Info().
			Str("symbol", in.Symbol).
			Str("action", string(rec.Action)).
			Str("side", string(rec.Side)).
			Float64("price", rec.Price).
			Str("reason", rec.Reason).
			Msg("recommendation")
	}
	return rec
}

// updateStreak advances or resets the consensus streak. The streak resets
// the moment the direction flips or disappears.
func (e *Engine) updateStreak(symbol string, dir consensus.Direction) state.Streak {
	prev := e.store.Streak(symbol)
	var next state.Streak
	switch {
	case dir == consensus.DirectionNeutral:
		next = state.Streak{}
	case prev.Direction == string(dir):
		next = state.Streak{Direction: string(dir), Count: prev.Count + 1}
	default:
		next = state.Streak{Direction: string(dir), Count: 1}
	}
	e.store.SetStreak(symbol, next)
	return next
}

func (e *Engine) checkExit(in Input, now time.Time, price, support, resistance float64) *Recommendation {
	if support > 0 && price < support {
		return &Recommendation{
			Symbol: in.Symbol,
			Action: ActionExit,
			Side:   SideLong,
			Price:  price,
			Reason: fmt.Sprintf("price %.6g broke below aggregate support %.6g", price, support),
			Time:   now,
		}
	}
	if resistance > 0 && price > resistance && in.Consensus.Direction != consensus.DirectionBullish {
		return &Recommendation{
			Symbol: in.Symbol,
			Action: ActionExit,
			Side:   SideShort,
			Price:  price,
			Reason: fmt.Sprintf("price %.6g broke above aggregate resistance %.6g without bullish consensus", price, resistance),
			Time:   now,
		}
	}
	return nil
}

func (e *Engine) checkLongEntry(in Input, now time.Time, price, support, resistance, atr float64) *Recommendation {
	strong := hasStrongSignal(in.Signals, true)
	if !strong && !e.flowQualifiesLong(in) {
		return nil
	}
	if !e.midbandOK(price, support, resistance, SideLong) {
		return nil
	}

	stop, target := e.levels(price, support, resistance, atr, SideLong, in.FastTrend == consensus.TrendUp)
	reason := fmt.Sprintf("bullish consensus (%s), total flow $%.0f", in.Consensus.Label, in.Consensus.TotalFlowUSD)
	if strong {
		reason = "strong bullish signal with bullish consensus"
	}
	return &Recommendation{
		Symbol:     in.Symbol,
		Action:     ActionEntry,
		Side:       SideLong,
		Price:      price,
		StopLoss:   stop,
		TakeProfit: target,
		Reason:     reason,
		Time:       now,
	}
}

func (e *Engine) checkShortEntry(in Input, now time.Time, price, support, resistance, atr float64) *Recommendation {
	if !e.cfg.EnableShort {
		return nil
	}
	if e.cfg.ShortOnlyInBear && !in.Regime.ShortBias() {
		return nil
	}
	strong := hasStrongSignal(in.Signals, false)
	if !strong && in.Consensus.TotalFlowUSD > -e.cfg.MinTotalFlowUSD {
		return nil
	}
	if !e.midbandOK(price, support, resistance, SideShort) {
		return nil
	}

	stop, target := e.levels(price, support, resistance, atr, SideShort, in.FastTrend == consensus.TrendDown)
	reason := fmt.Sprintf("bearish consensus (%s), total flow $%.0f", in.Consensus.Label, in.Consensus.TotalFlowUSD)
	if strong {
		reason = "strong bearish signal with bearish consensus"
	}
	return &Recommendation{
		Symbol:     in.Symbol,
		Action:     ActionEntry,
		Side:       SideShort,
		Price:      price,
		StopLoss:   stop,
		TakeProfit: target,
		Reason:     reason,
		Time:       now,
	}
}

// flowQualifiesLong checks the flow-based entry path: enough total net
// inflow and a convincing average buy/sell ratio. An all-buy window (no
// finite ratio at all) qualifies on its own.
func (e *Engine) flowQualifiesLong(in Input) bool {
	if in.Consensus.TotalFlowUSD < e.cfg.MinTotalFlowUSD {
		return false
	}
	avg, ok := consensus.AverageFiniteRatio(in.Metrics)
	if !ok {
		return true
	}
	return avg >= e.cfg.MinRatio
}

// midbandOK keeps entries on the momentum side of the support/resistance
// midpoint: longs in the upper half of the range, shorts in the lower.
func (e *Engine) midbandOK(price, support, resistance float64, side Side) bool {
	if !e.cfg.RequireMidband {
		return true
	}
	if support <= 0 || resistance <= support {
		return true
	}
	mid := (support + resistance) / 2
	if side == SideLong {
		return price >= mid
	}
	return price <= mid
}

// levels derives stop and target. ATR-based when available, S/R fallback
// otherwise. Fast-trend agreement widens the target multiple.
func (e *Engine) levels(price, support, resistance, atr float64, side Side, trendAgrees bool) (stop, target float64) {
	if atr > 0 {
		targetMult := e.cfg.ATRTargetMult
		if trendAgrees {
			targetMult += e.cfg.TrendRRBoost
		}
		if side == SideLong {
			return price - atr*e.cfg.ATRStopMult, price + atr*targetMult
		}
		return price + atr*e.cfg.ATRStopMult, price - atr*targetMult
	}
	if side == SideLong {
		return support * 0.99, resistance
	}
	return resistance * 1.01, support
}

// hasStrongSignal reports whether any directionally matching signal is
// grade A or better.
func hasStrongSignal(signals []signal.Signal, bullish bool) bool {
	for _, s := range signals {
		if !s.Grade.AtLeast(signal.GradeA) {
			continue
		}
		switch s.Type {
		case signal.TypeEarlyPump, signal.TypeVolumeSpike, signal.TypeSteadyGrowth,
			signal.TypeGlobalSyncBullish, signal.TypeInstitutionalAccum:
			if bullish {
				return true
			}
		case signal.TypePanicDump, signal.TypeGlobalSyncBearish:
			if !bullish {
				return true
			}
		}
	}
	return false
}

func medianOf(metrics map[string]flow.Metrics, get func(flow.Metrics) float64) float64 {
	if len(metrics) == 0 {
		return 0
	}
	vals := make([]float64, 0, len(metrics))
	for _, m := range metrics {
		vals = append(vals, get(m))
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}

func meanOf(metrics map[string]flow.Metrics, get func(flow.Metrics) float64) float64 {
	if len(metrics) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range metrics {
		sum += get(m)
	}
	return sum / float64(len(metrics))
}
