package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/market"
	"flow-signal-bot/internal/strategy"
)

// bullishFeed builds a 1m series with steady taker buying: roughly $300k
// bought vs $100k sold per bar, price drifting up 0.05 per bar.
func bullishFeed(n int) []market.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		open := price
		price += 0.05
		candles[i] = market.Candle{
			Timestamp:       start.Add(time.Duration(i) * time.Minute),
			Open:            open,
			High:            price + 0.05,
			Low:             open - 0.05,
			Close:           price,
			Volume:          4000,
			TakerBuyVolume:  market.Float64(3000),
			TakerSellVolume: market.Float64(1000),
		}
	}
	return candles
}

func testParams() Params {
	p := DefaultParams()
	p.MinTotalFlowUSD = 5_000_000
	return p
}

// TestRunProfitableTrend tests a steady bullish feed produces winning
// take-profit trades
func TestRunProfitableTrend(t *testing.T) {
	bt := New(DefaultConfig("BTC/USDT"), testParams(), zerolog.Nop())

	res, err := bt.Run(bullishFeed(300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalTrades == 0 {
		t.Fatal("expected at least one trade")
	}
	if res.TotalPnLUSD <= 0 {
		t.Errorf("trend-following a clean uptrend should profit, got %f", res.TotalPnLUSD)
	}
	if res.FinalBalanceUSD <= 10_000 {
		t.Errorf("final balance = %f, want above initial", res.FinalBalanceUSD)
	}

	first := res.Trades[0]
	if first.Side != strategy.SideLong {
		t.Errorf("uptrend entry should be LONG, got %s", first.Side)
	}
	if first.Reason != ExitTakeProfit && first.Reason != ExitEndOfData {
		t.Errorf("first trade reason = %s, want TAKE_PROFIT", first.Reason)
	}
	if first.FeeUSD <= 0 {
		t.Error("every round trip should pay a fee")
	}
	if first.EntryTime.Before(bullishFeed(300)[50].Timestamp) {
		t.Error("no trade may open before the warmup ends")
	}
}

// TestRunStopLossOnCrash tests a crash after entry exits at the stop
func TestRunStopLossOnCrash(t *testing.T) {
	candles := bullishFeed(120)
	// Crash from bar 53: 0.5 down per bar, flow still positive.
	price := candles[52].Close
	for i := 53; i < 120; i++ {
		open := price
		price -= 0.5
		candles[i].Open = open
		candles[i].Close = price
		candles[i].High = open + 0.05
		candles[i].Low = price - 0.1
	}

	bt := New(DefaultConfig("BTC/USDT"), testParams(), zerolog.Nop())
	res, err := bt.Run(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalTrades == 0 {
		t.Fatal("expected at least one trade")
	}

	first := res.Trades[0]
	if first.Reason != ExitStopLoss {
		t.Errorf("first trade reason = %s, want STOP_LOSS", first.Reason)
	}
	if first.PnLUSD >= 0 {
		t.Errorf("stopped-out trade should lose, got %f", first.PnLUSD)
	}
	if math.Abs(first.ExitPrice-first.EntryPrice) > 5 {
		t.Errorf("stop exit should fill at the stop near entry, got entry %f exit %f", first.EntryPrice, first.ExitPrice)
	}
}

// TestRunReentryOnStopExitBar tests the bar that stops a position out is
// still evaluated, so a fresh entry can open on that same bar
func TestRunReentryOnStopExitBar(t *testing.T) {
	candles := bullishFeed(120)
	// One deep wick exactly when the action interval re-arms (entries
	// re-emit at minutes 51, 66, 81); trend and flow otherwise intact.
	candles[81].Low = 90

	p := testParams()
	p.ATRTargetMult = 100 // park the target out of reach
	bt := New(DefaultConfig("BTC/USDT"), p, zerolog.Nop())

	res, err := bt.Run(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) < 2 {
		t.Fatalf("expected a stop-out and a re-entry, got %d trades", len(res.Trades))
	}

	first, second := res.Trades[0], res.Trades[1]
	if first.Reason != ExitStopLoss {
		t.Fatalf("first trade reason = %s, want STOP_LOSS", first.Reason)
	}
	if !second.EntryTime.Equal(first.ExitTime) {
		t.Errorf("re-entry should open on the stop-out bar: exit %s, next entry %s",
			first.ExitTime, second.EntryTime)
	}
}

// TestResolveExitStopWinsTie tests the same-bar tie-break: a bar spanning
// both levels fills at the stop
func TestResolveExitStopWinsTie(t *testing.T) {
	long := &openPosition{side: strategy.SideLong, entry: 100, stop: 95, target: 105}
	price, reason, done := resolveExit(long, market.Candle{High: 106, Low: 94, Close: 100})
	if !done || reason != ExitStopLoss || price != 95 {
		t.Errorf("long tie should fill the stop: got %f %s done=%v", price, reason, done)
	}

	short := &openPosition{side: strategy.SideShort, entry: 100, stop: 105, target: 95}
	price, reason, done = resolveExit(short, market.Candle{High: 106, Low: 94, Close: 100})
	if !done || reason != ExitStopLoss || price != 105 {
		t.Errorf("short tie should fill the stop: got %f %s done=%v", price, reason, done)
	}

	if _, _, done := resolveExit(long, market.Candle{High: 101, Low: 99, Close: 100}); done {
		t.Error("a bar touching neither level should not exit")
	}
}

// TestFinalizeMetrics tests win rate, totals, and max drawdown
func TestFinalizeMetrics(t *testing.T) {
	res := &Result{
		Symbol: "BTC/USDT",
		Trades: []Trade{
			{PnLUSD: 100},
			{PnLUSD: -50},
			{PnLUSD: 200},
		},
		FinalBalanceUSD: 10_250,
	}
	finalize(res, 10_000)

	if res.TotalTrades != 3 || res.Wins != 2 {
		t.Errorf("trades/wins = %d/%d, want 3/2", res.TotalTrades, res.Wins)
	}
	if math.Abs(res.WinRate-66.666666) > 0.001 {
		t.Errorf("win rate = %f, want 66.67", res.WinRate)
	}
	if res.TotalPnLUSD != 250 {
		t.Errorf("total pnl = %f, want 250", res.TotalPnLUSD)
	}
	// Peak 10100 after trade one, trough 10050 after trade two.
	wantDD := (10100.0 - 10050.0) / 10100.0 * 100
	if math.Abs(res.MaxDrawdownPct-wantDD) > 1e-9 {
		t.Errorf("max drawdown = %f, want %f", res.MaxDrawdownPct, wantDD)
	}
}

// TestRunInsufficientData tests the warmup floor is enforced
func TestRunInsufficientData(t *testing.T) {
	bt := New(DefaultConfig("BTC/USDT"), testParams(), zerolog.Nop())
	if _, err := bt.Run(bullishFeed(50)); err == nil {
		t.Error("a series no longer than the warmup should error")
	}
}

// TestGridSearchDeterministic tests the search is reproducible and
// respects the combination cap
func TestGridSearchDeterministic(t *testing.T) {
	grid := Grid{
		MinTotalFlowUSD:  []float64{5_000_000},
		MinRatio:         []float64{1.05, 1.1},
		ATRStopMult:      []float64{1.5},
		ATRTargetMult:    []float64{2.0},
		MinConsensusBars: []int{1, 2},
	}
	candles := bullishFeed(300)
	cfg := DefaultConfig("BTC/USDT")

	first, err := GridSearch(cfg, grid, candles, 0, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	second, err := GridSearch(cfg, grid, candles, 0, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if first.Evaluated != 4 || second.Evaluated != 4 {
		t.Errorf("evaluated = %d/%d, want 4", first.Evaluated, second.Evaluated)
	}
	if first.Best != second.Best {
		t.Errorf("grid search is not deterministic: %+v vs %+v", first.Best, second.Best)
	}

	capped, err := GridSearch(cfg, grid, candles, 3, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if capped.Evaluated != 3 || capped.Skipped != 1 {
		t.Errorf("capped search evaluated/skipped = %d/%d, want 3/1", capped.Evaluated, capped.Skipped)
	}
}

// TestLearnerAggregatesModalParams tests the modal vote across symbols
func TestLearnerAggregatesModalParams(t *testing.T) {
	l := NewLearner(zerolog.Nop())

	mk := func(flow float64, bars int) *GridResult {
		return &GridResult{
			Best:    Params{MinTotalFlowUSD: flow, MinRatio: 1.1, ATRStopMult: 1.5, ATRTargetMult: 2.0, MinConsensusBars: bars},
			BestRun: &Result{TotalTrades: 5},
		}
	}

	params, voters := l.Aggregate(map[string]*GridResult{
		"BTC/USDT":  mk(10_000_000, 2),
		"ETH/USDT":  mk(10_000_000, 2),
		"PEPE/USDT": mk(5_000_000, 3),
		"DOGE/USDT": {Symbol: "DOGE/USDT"}, // no trades, no vote
	})

	if voters != 3 {
		t.Errorf("voters = %d, want 3", voters)
	}
	if params.MinTotalFlowUSD != 10_000_000 || params.MinConsensusBars != 2 {
		t.Errorf("modal params = %+v", params)
	}

	fallback, voters := l.Aggregate(nil)
	if voters != 0 || fallback != DefaultParams() {
		t.Errorf("empty aggregate should fall back to defaults, got %+v", fallback)
	}
}
