package backtest

import (
	"github.com/rs/zerolog"

	"flow-signal-bot/internal/market"
)

// Grid is the parameter space the search enumerates, one axis per knob.
type Grid struct {
	MinTotalFlowUSD  []float64
	MinRatio         []float64
	ATRStopMult      []float64
	ATRTargetMult    []float64
	MinConsensusBars []int
}

// DefaultGrid returns the standard tuning space (243 combinations).
func DefaultGrid() Grid {
	return Grid{
		MinTotalFlowUSD:  []float64{5_000_000, 10_000_000, 20_000_000},
		MinRatio:         []float64{1.05, 1.1, 1.2},
		ATRStopMult:      []float64{1.0, 1.5, 2.0},
		ATRTargetMult:    []float64{1.5, 2.0, 3.0},
		MinConsensusBars: []int{1, 2, 3},
	}
}

// Combinations enumerates the grid in a fixed nested order, so a capped
// search always sees the same prefix.
func (g Grid) Combinations() []Params {
	var out []Params
	for _, flow := range g.MinTotalFlowUSD {
		for _, ratio := range g.MinRatio {
			for _, stop := range g.ATRStopMult {
				for _, target := range g.ATRTargetMult {
					for _, bars := range g.MinConsensusBars {
						out = append(out, Params{
							MinTotalFlowUSD:  flow,
							MinRatio:         ratio,
							ATRStopMult:      stop,
							ATRTargetMult:    target,
							MinConsensusBars: bars,
						})
					}
				}
			}
		}
	}
	return out
}

// GridResult is the outcome of a grid search over one symbol.
type GridResult struct {
	Symbol    string
	Best      Params
	BestRun   *Result
	Evaluated int
	Skipped   int
}

// GridSearch replays the series once per parameter combination, capped at
// maxCombos, and keeps the best run. Runs without a single trade never
// win. Ties break deterministically: higher win rate, then more trades,
// then the earlier combination in enumeration order.
func GridSearch(cfg Config, grid Grid, candles []market.Candle, maxCombos int, log zerolog.Logger) (*GridResult, error) {
	combos := grid.Combinations()
	gr := &GridResult{Symbol: cfg.Symbol}
	if maxCombos > 0 && len(combos) > maxCombos {
		gr.Skipped = len(combos) - maxCombos
		combos = combos[:maxCombos]
	}

	for _, params := range combos {
		res, err := New(cfg, params, log).Run(candles)
		if err != nil {
			return nil, err
		}
		gr.Evaluated++
		if res.TotalTrades == 0 {
			continue
		}
		if gr.BestRun == nil || betterRun(res, gr.BestRun) {
			gr.Best = params
			gr.BestRun = res
		}
	}

	if gr.BestRun != nil {
		log.Info().
			Str("symbol", cfg.Symbol).
			Int("evaluated", gr.Evaluated).
			Float64("win_rate", gr.BestRun.WinRate).
			Int("trades", gr.BestRun.TotalTrades).
			Msg("grid search complete")
	} else {
		log.Warn().Str("symbol", cfg.Symbol).Int("evaluated", gr.Evaluated).Msg("grid search produced no trades")
	}
	return gr, nil
}

func betterRun(candidate, best *Result) bool {
	if candidate.WinRate != best.WinRate {
		return candidate.WinRate > best.WinRate
	}
	// strictly greater keeps the earlier combination on full ties
	return candidate.TotalTrades > best.TotalTrades
}
