package backtest

import (
	"sort"

	"github.com/rs/zerolog"
)

// Learner aggregates per-symbol grid results into one recommended
// parameter set: the modal value of each knob across the symbols that
// actually produced trades.
type Learner struct {
	log zerolog.Logger
}

// NewLearner creates a learner.
func NewLearner(log zerolog.Logger) *Learner {
	return &Learner{log: log.With().Str("component", "learner").Logger()}
}

// Aggregate returns the modal parameters and how many symbols voted.
// With no votes it falls back to the live defaults.
func (l *Learner) Aggregate(results map[string]*GridResult) (Params, int) {
	var flows, ratios, stops, targets []float64
	var bars []int

	for _, gr := range results {
		if gr == nil || gr.BestRun == nil {
			continue
		}
		flows = append(flows, gr.Best.MinTotalFlowUSD)
		ratios = append(ratios, gr.Best.MinRatio)
		stops = append(stops, gr.Best.ATRStopMult)
		targets = append(targets, gr.Best.ATRTargetMult)
		bars = append(bars, gr.Best.MinConsensusBars)
	}
	if len(flows) == 0 {
		return DefaultParams(), 0
	}

	params := Params{
		MinTotalFlowUSD:  modalFloat(flows),
		MinRatio:         modalFloat(ratios),
		ATRStopMult:      modalFloat(stops),
		ATRTargetMult:    modalFloat(targets),
		MinConsensusBars: modalInt(bars),
	}
	l.log.Info().Int("symbols", len(flows)).Interface("params", params).Msg("aggregated best parameters")
	return params, len(flows)
}

// modalFloat returns the most common value, smallest first on ties.
func modalFloat(vals []float64) float64 {
	counts := make(map[float64]int)
	for _, v := range vals {
		counts[v]++
	}
	keys := make([]float64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Float64s(keys)
	best, bestCount := keys[0], 0
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

func modalInt(vals []int) int {
	counts := make(map[int]int)
	for _, v := range vals {
		counts[v]++
	}
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	best, bestCount := keys[0], 0
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}
