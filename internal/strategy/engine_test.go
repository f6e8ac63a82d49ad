package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/consensus"
	"flow-signal-bot/internal/flow"
	"flow-signal-bot/internal/regime"
	"flow-signal-bot/internal/signal"
	"flow-signal-bot/internal/state"
)

func bullishMetrics() map[string]flow.Metrics {
	return map[string]flow.Metrics{
		"binance": {
			NetFlowUSD:     20_000_000,
			BuySellRatio:   1.5,
			CurrentPrice:   100,
			SupportLow:     90,
			ResistanceHigh: 105,
			ATR:            2,
			ValidBars:      50,
		},
	}
}

func bullishInput(t time.Time) Input {
	return Input{
		Symbol:  "BTC/USDT",
		Time:    t,
		Metrics: bullishMetrics(),
		Consensus: consensus.Consensus{
			Direction:    consensus.DirectionBullish,
			TotalFlowUSD: 20_000_000,
			Label:        "strongly bullish",
		},
		Regime: regime.Bull,
	}
}

func newEngine() *Engine {
	return NewEngine(DefaultConfig(), state.NewMemoryStore(), zerolog.Nop())
}

// TestLongEntryNeedsConsensusStreak tests no entry fires until the
// consensus direction has held for two evaluations
func TestLongEntryNeedsConsensusStreak(t *testing.T) {
	e := newEngine()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if rec := e.Evaluate(bullishInput(base)); rec != nil {
		t.Fatalf("first bullish evaluation should not act, got %+v", rec)
	}

	rec := e.Evaluate(bullishInput(base.Add(5 * time.Minute)))
	if rec == nil {
		t.Fatal("second consecutive bullish evaluation should enter")
	}
	if rec.Action != ActionEntry || rec.Side != SideLong {
		t.Errorf("expected LONG ENTRY, got %s %s", rec.Action, rec.Side)
	}

	// ATR 2, stop multiple 1.5, target multiple 2.0, no fast-trend boost.
	if math.Abs(rec.StopLoss-97) > 1e-9 {
		t.Errorf("stop = %f, want 97", rec.StopLoss)
	}
	if math.Abs(rec.TakeProfit-104) > 1e-9 {
		t.Errorf("target = %f, want 104", rec.TakeProfit)
	}
}

// TestTrendBoostWidensTarget tests fast-trend agreement adds the RR boost
func TestTrendBoostWidensTarget(t *testing.T) {
	e := newEngine()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	in := bullishInput(base)
	in.FastTrend = consensus.TrendUp
	e.Evaluate(in)

	in = bullishInput(base.Add(5 * time.Minute))
	in.FastTrend = consensus.TrendUp
	rec := e.Evaluate(in)
	if rec == nil {
		t.Fatal("expected an entry")
	}
	if math.Abs(rec.TakeProfit-105) > 1e-9 {
		t.Errorf("boosted target = %f, want 105 (2.5x ATR)", rec.TakeProfit)
	}
}

// TestMinActionInterval tests the per-symbol rate limit
func TestMinActionInterval(t *testing.T) {
	e := newEngine()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	e.Evaluate(bullishInput(base))
	if e.Evaluate(bullishInput(base.Add(5*time.Minute))) == nil {
		t.Fatal("second evaluation should enter")
	}

	if rec := e.Evaluate(bullishInput(base.Add(10 * time.Minute))); rec != nil {
		t.Errorf("evaluation inside the 900s interval should not act, got %+v", rec)
	}
	if e.Evaluate(bullishInput(base.Add(21*time.Minute))) == nil {
		t.Error("evaluation after the interval should act again")
	}
}

// TestStreakResetsOnFlip tests a direction flip restarts the streak count
func TestStreakResetsOnFlip(t *testing.T) {
	store := state.NewMemoryStore()
	e := NewEngine(DefaultConfig(), store, zerolog.Nop())
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	e.Evaluate(bullishInput(base))

	bearish := bullishInput(base.Add(5 * time.Minute))
	bearish.Consensus = consensus.Consensus{Direction: consensus.DirectionBearish, TotalFlowUSD: -20_000_000}
	bearish.Metrics["binance"] = flow.Metrics{
		NetFlowUSD: -20_000_000, BuySellRatio: 0.7, CurrentPrice: 95,
		SupportLow: 90, ResistanceHigh: 105, ATR: 2, ValidBars: 50,
	}
	bearish.Regime = regime.Bear

	if rec := e.Evaluate(bearish); rec != nil {
		t.Fatalf("flip should reset the streak to 1, got %+v", rec)
	}
	if s := store.Streak("BTC/USDT"); s.Direction != string(consensus.DirectionBearish) || s.Count != 1 {
		t.Errorf("streak after flip = %+v, want BEARISH/1", s)
	}

	neutral := bullishInput(base.Add(10 * time.Minute))
	neutral.Consensus = consensus.Consensus{Direction: consensus.DirectionNeutral}
	e.Evaluate(neutral)
	if s := store.Streak("BTC/USDT"); s.Count != 0 {
		t.Errorf("neutral consensus should zero the streak, got %+v", s)
	}
}

// TestShortRequiresBearRegime tests the short side is gated on regime
func TestShortRequiresBearRegime(t *testing.T) {
	e := newEngine()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	bearish := func(ts time.Time, r regime.Regime) Input {
		return Input{
			Symbol: "BTC/USDT",
			Time:   ts,
			Metrics: map[string]flow.Metrics{
				"binance": {
					NetFlowUSD: -20_000_000, BuySellRatio: 0.7, CurrentPrice: 95,
					SupportLow: 90, ResistanceHigh: 105, ATR: 2, ValidBars: 50,
				},
			},
			Consensus: consensus.Consensus{Direction: consensus.DirectionBearish, TotalFlowUSD: -20_000_000},
			Regime:    r,
		}
	}

	e.Evaluate(bearish(base, regime.Bull))
	if rec := e.Evaluate(bearish(base.Add(5*time.Minute), regime.Bull)); rec != nil {
		t.Errorf("short should be blocked outside a bear regime, got %+v", rec)
	}

	if rec := e.Evaluate(bearish(base.Add(10*time.Minute), regime.Bear)); rec == nil {
		t.Fatal("short should fire in a bear regime")
	} else if rec.Side != SideShort || rec.StopLoss <= rec.Price {
		t.Errorf("short stop should sit above price, got %+v", rec)
	}
}

// TestExitOnSupportBreak tests the exit path bypasses streak and flow gates
func TestExitOnSupportBreak(t *testing.T) {
	e := newEngine()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	in := Input{
		Symbol: "BTC/USDT",
		Time:   base,
		Metrics: map[string]flow.Metrics{
			"binance": {
				NetFlowUSD: 0, BuySellRatio: 1.0, CurrentPrice: 85,
				SupportLow: 90, ResistanceHigh: 105, ATR: 2, ValidBars: 50,
			},
		},
		Consensus: consensus.Consensus{Direction: consensus.DirectionNeutral},
	}

	rec := e.Evaluate(in)
	if rec == nil {
		t.Fatal("support break should emit an exit immediately")
	}
	if rec.Action != ActionExit || rec.Side != SideLong {
		t.Errorf("expected LONG EXIT, got %s %s", rec.Action, rec.Side)
	}
}

// TestMidbandGate tests entries below the S/R midpoint are rejected
func TestMidbandGate(t *testing.T) {
	e := newEngine()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	lowPrice := func(ts time.Time) Input {
		in := bullishInput(ts)
		m := in.Metrics["binance"]
		m.CurrentPrice = 92 // below the 97.5 midpoint of [90, 105]
		in.Metrics["binance"] = m
		return in
	}

	e.Evaluate(lowPrice(base))
	if rec := e.Evaluate(lowPrice(base.Add(5 * time.Minute))); rec != nil {
		t.Errorf("entry below the midpoint should be rejected, got %+v", rec)
	}
}

// TestFlowThresholdAndStrongSignalOverride tests weak flow blocks entry
// unless a strong signal vouches for it
func TestFlowThresholdAndStrongSignalOverride(t *testing.T) {
	e := newEngine()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	weak := func(ts time.Time, sigs []signal.Signal) Input {
		in := bullishInput(ts)
		in.Consensus.TotalFlowUSD = 5_000_000 // below the 10M floor
		in.Signals = sigs
		return in
	}

	e.Evaluate(weak(base, nil))
	if rec := e.Evaluate(weak(base.Add(5*time.Minute), nil)); rec != nil {
		t.Errorf("weak flow without a strong signal should not enter, got %+v", rec)
	}

	strong := []signal.Signal{{Type: signal.TypeEarlyPump, Grade: signal.GradeA}}
	if rec := e.Evaluate(weak(base.Add(10*time.Minute), strong)); rec == nil {
		t.Error("a grade-A bullish signal should override the flow threshold")
	}
}

// TestNoMetricsNoAction tests missing metrics produce no action
func TestNoMetricsNoAction(t *testing.T) {
	e := newEngine()
	in := Input{
		Symbol:    "BTC/USDT",
		Time:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Consensus: consensus.Consensus{Direction: consensus.DirectionNeutral},
	}
	if rec := e.Evaluate(in); rec != nil {
		t.Errorf("no metrics should mean no action, got %+v", rec)
	}
}
