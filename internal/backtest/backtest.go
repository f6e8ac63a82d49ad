// Package backtest replays 1m history through the same flow analyzer,
// strategy engine, and position sizer the live monitor runs, bar by bar
// with no look-ahead.
package backtest

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flow-signal-bot/internal/consensus"
	"flow-signal-bot/internal/flow"
	"flow-signal-bot/internal/indicators"
	"flow-signal-bot/internal/market"
	"flow-signal-bot/internal/regime"
	"flow-signal-bot/internal/risk"
	"flow-signal-bot/internal/signal"
	"flow-signal-bot/internal/state"
	"flow-signal-bot/internal/strategy"
)

// Params are the strategy knobs the grid search tunes.
type Params struct {
	MinTotalFlowUSD  float64
	MinRatio         float64
	ATRStopMult      float64
	ATRTargetMult    float64
	MinConsensusBars int
}

// DefaultParams returns the live defaults.
func DefaultParams() Params {
	return Params{
		MinTotalFlowUSD:  10_000_000,
		MinRatio:         1.1,
		ATRStopMult:      1.5,
		ATRTargetMult:    2.0,
		MinConsensusBars: 2,
	}
}

// Config configures a backtest run.
type Config struct {
	Symbol            string
	Platform          string
	WarmupBars        int
	FlowWindow        int
	FeeRate           float64 // of notional, charged per round trip
	InitialBalanceUSD float64
	Risk              risk.Config
	FastInterval      time.Duration
	SlowInterval      time.Duration
}

// DefaultConfig returns the production defaults for a single-feed replay.
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:            symbol,
		Platform:          "binance",
		WarmupBars:        50,
		FlowWindow:        50,
		FeeRate:           0.001,
		InitialBalanceUSD: 10_000,
		Risk:              risk.DefaultConfig(),
		FastInterval:      5 * time.Minute,
		SlowInterval:      time.Hour,
	}
}

// ExitReason says why a simulated trade closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitSignal     ExitReason = "SIGNAL_EXIT"
	ExitEndOfData  ExitReason = "END_OF_DATA"
)

// Trade is one completed simulated round trip.
type Trade struct {
	Symbol     string
	Side       strategy.Side
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	FeeUSD     float64
	PnLUSD     float64
	PnLPct     float64
	Reason     ExitReason
}

// Result is the outcome of one backtest run.
type Result struct {
	RunID           string
	Symbol          string
	Params          Params
	Trades          []Trade
	TotalTrades     int
	Wins            int
	WinRate         float64 // percent
	TotalPnLUSD     float64
	FinalBalanceUSD float64
	MaxDrawdownPct  float64
}

// Backtester replays one symbol's history. Each instance owns fully
// isolated analyzer, engine, and sizer state; runs never share cooldowns
// or streaks with the live monitor or each other.
type Backtester struct {
	cfg    Config
	params Params
	flow   *flow.Analyzer
	agg    *consensus.Aggregator
	engine *strategy.Engine
	sizer  *risk.Sizer
	log    zerolog.Logger
}

// New creates an isolated backtester for one parameter set.
func New(cfg Config, params Params, log zerolog.Logger) *Backtester {
	log = log.With().Str("component", "backtest").Str("symbol", cfg.Symbol).Logger()

	aggCfg := consensus.DefaultConfig()
	aggCfg.MinPlatforms = 1 // single replayed feed

	engCfg := strategy.DefaultConfig()
	engCfg.MinTotalFlowUSD = params.MinTotalFlowUSD
	engCfg.MinRatio = params.MinRatio
	engCfg.ATRStopMult = params.ATRStopMult
	engCfg.ATRTargetMult = params.ATRTargetMult
	engCfg.MinConsensusBars = params.MinConsensusBars

	return &Backtester{
		cfg:    cfg,
		params: params,
		flow:   flow.NewAnalyzer(cfg.FlowWindow, log),
		agg:    consensus.NewAggregator(aggCfg, log),
		engine: strategy.NewEngine(engCfg, state.NewMemoryStore(), log),
		sizer:  risk.NewSizer(cfg.Risk, log),
	}
}

type openPosition struct {
	side      strategy.Side
	entryTime time.Time
	entry     float64
	stop      float64
	target    float64
	size      float64
	notional  float64
}

// Run replays the 1m series. Bars before the warmup are visible to the
// analyzers but never traded on.
func (b *Backtester) Run(candles []market.Candle) (*Result, error) {
	if len(candles) <= b.cfg.WarmupBars {
		return nil, fmt.Errorf("backtest %s: need more than %d candles, got %d",
			b.cfg.Symbol, b.cfg.WarmupBars, len(candles))
	}

	fast := market.Resample(candles, b.cfg.FastInterval)
	slow := market.Resample(candles, b.cfg.SlowInterval)

	res := &Result{
		RunID:           uuid.NewString(),
		Symbol:          b.cfg.Symbol,
		Params:          b.params,
		FinalBalanceUSD: b.cfg.InitialBalanceUSD,
	}
	var pos *openPosition

	for i := b.cfg.WarmupBars; i < len(candles); i++ {
		bar := candles[i]

		// An intrabar exit does not end the bar: the engine still
		// evaluates it, so streaks advance exactly as they would live
		// and a fresh entry on the exit bar stays possible.
		if pos != nil {
			if price, reason, done := resolveExit(pos, bar); done {
				b.closeTrade(res, pos, price, reason, bar.Timestamp)
				pos = nil
			}
		}

		window := candles[:i+1]
		metrics, ok := b.flow.Analyze(b.cfg.Platform, window)
		if !ok {
			continue
		}
		metricsMap := map[string]flow.Metrics{b.cfg.Platform: metrics}

		fastSlice := market.SliceUpTo(fast, bar.Timestamp)
		slowSlice := market.SliceUpTo(slow, bar.Timestamp)

		trend := consensus.TrendUnknown
		if len(fastSlice) > 20 {
			if indicators.IsTrendUp(fastSlice, 20) {
				trend = consensus.TrendUp
			} else {
				trend = consensus.TrendDown
			}
		}

		rec := b.engine.Evaluate(strategy.Input{
			Symbol:    b.cfg.Symbol,
			Time:      bar.Timestamp,
			Metrics:   metricsMap,
			Consensus: b.agg.Consensus(metricsMap),
			Signals:   b.syntheticSignals(metrics, bar.Timestamp),
			Regime:    regime.Classify(slowSlice),
			FastTrend: trend,
		})
		if rec == nil {
			continue
		}

		switch {
		case rec.Action == strategy.ActionExit && pos != nil && pos.side == rec.Side:
			b.closeTrade(res, pos, bar.Close, ExitSignal, bar.Timestamp)
			pos = nil
		case rec.Action == strategy.ActionEntry && pos == nil:
			pos = b.openPosition(rec, window, bar.Timestamp)
		}
	}

	if pos != nil {
		last := candles[len(candles)-1]
		b.closeTrade(res, pos, last.Close, ExitEndOfData, last.Timestamp)
	}

	finalize(res, b.cfg.InitialBalanceUSD)
	return res, nil
}

// resolveExit checks an open position against the bar's range. When the
// bar spans both levels the stop wins: intrabar order is unknowable, so
// the loss is assumed first.
func resolveExit(pos *openPosition, bar market.Candle) (float64, ExitReason, bool) {
	if pos.side == strategy.SideLong {
		if pos.stop > 0 && bar.Low <= pos.stop {
			return pos.stop, ExitStopLoss, true
		}
		if pos.target > 0 && bar.High >= pos.target {
			return pos.target, ExitTakeProfit, true
		}
		return 0, "", false
	}
	if pos.stop > 0 && bar.High >= pos.stop {
		return pos.stop, ExitStopLoss, true
	}
	if pos.target > 0 && bar.Low <= pos.target {
		return pos.target, ExitTakeProfit, true
	}
	return 0, "", false
}

func (b *Backtester) openPosition(rec *strategy.Recommendation, window []market.Candle, ts time.Time) *openPosition {
	atrPct, _ := indicators.ATRPercent(market.LastN(window, b.cfg.FlowWindow), 14)
	level := indicators.ClassifyVolatility(atrPct, 3.0, 8.0)

	p, err := b.sizer.Calculate(b.cfg.Symbol, string(rec.Side), rec.Price, rec.StopLoss, rec.TakeProfit, level)
	if err != nil {
		b.log.Debug().Err(err).Msg("entry skipped")
		return nil
	}
	b.sizer.Open(p)

	return &openPosition{
		side:      rec.Side,
		entryTime: ts,
		entry:     rec.Price,
		stop:      rec.StopLoss,
		target:    rec.TakeProfit,
		size:      p.Size,
		notional:  p.NotionalUSD,
	}
}

func (b *Backtester) closeTrade(res *Result, pos *openPosition, exitPrice float64, reason ExitReason, ts time.Time) {
	gross := (exitPrice - pos.entry) * pos.size
	if pos.side == strategy.SideShort {
		gross = -gross
	}
	fee := pos.notional * b.cfg.FeeRate
	pnl := gross - fee

	res.Trades = append(res.Trades, Trade{
		Symbol:     res.Symbol,
		Side:       pos.side,
		EntryTime:  pos.entryTime,
		ExitTime:   ts,
		EntryPrice: pos.entry,
		ExitPrice:  exitPrice,
		Size:       pos.size,
		FeeUSD:     fee,
		PnLUSD:     pnl,
		PnLPct:     pnl / pos.notional * 100,
		Reason:     reason,
	})
	res.FinalBalanceUSD += pnl
	b.sizer.Close(res.Symbol)
}

func finalize(res *Result, initial float64) {
	res.TotalTrades = len(res.Trades)
	equity := initial
	peak := initial
	maxDD := 0.0
	for _, t := range res.Trades {
		res.TotalPnLUSD += t.PnLUSD
		if t.PnLUSD > 0 {
			res.Wins++
		}
		equity += t.PnLUSD
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	if res.TotalTrades > 0 {
		res.WinRate = float64(res.Wins) / float64(res.TotalTrades) * 100
	}
	res.MaxDrawdownPct = maxDD
}

// syntheticSignals stands in for the live pattern analyzers: flow twice
// the entry threshold reads as a strong signal in the flow's direction.
func (b *Backtester) syntheticSignals(m flow.Metrics, ts time.Time) []signal.Signal {
	switch {
	case m.NetFlowUSD > 2*b.params.MinTotalFlowUSD:
		return []signal.Signal{{
			Type: signal.TypeEarlyPump, Grade: signal.GradeA,
			Symbol: b.cfg.Symbol, Timestamp: ts,
		}}
	case m.NetFlowUSD < -2*b.params.MinTotalFlowUSD:
		return []signal.Signal{{
			Type: signal.TypePanicDump, Grade: signal.GradeA,
			Symbol: b.cfg.Symbol, Timestamp: ts,
		}}
	}
	return nil
}
