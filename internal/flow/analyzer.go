// Package flow turns a platform's candle series into the per-platform
// metrics the consensus aggregator and strategy engine consume.
package flow

import (
	"math"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/indicators"
	"flow-signal-bot/internal/market"
)

// Metrics summarizes taker flow over the trailing analysis window of one
// platform. BuySellRatio is +Inf when there were buys but no sells.
type Metrics struct {
	Platform       string
	NetFlowUSD     float64
	BuyVolumeUSD   float64
	SellVolumeUSD  float64
	BuySellRatio   float64
	CurrentPrice   float64
	SupportLow     float64
	ResistanceHigh float64
	ATR            float64
	ValidBars      int
	// ApproxFlow is set when any bar in the window carried an
	// approximated taker split.
	ApproxFlow bool
}

// Analyzer computes Metrics over a trailing window of candles.
type Analyzer struct {
	window int
	log    zerolog.Logger
}

// NewAnalyzer creates a flow analyzer with the given trailing window size.
func NewAnalyzer(window int, log zerolog.Logger) *Analyzer {
	if window <= 0 {
		window = 50
	}
	return &Analyzer{
		window: window,
		log:    log.With().Str("component", "flow_analyzer").Logger(),
	}
}

// Analyze computes flow metrics over the trailing window. Bars without a
// taker split are dropped from the flow sums entirely; they never count
// as zero flow. ok is false when no bar in the window carries flow data.
func (a *Analyzer) Analyze(platform string, candles []market.Candle) (Metrics, bool) {
	recent := market.LastN(candles, a.window)
	if len(recent) == 0 {
		return Metrics{}, false
	}

	var buyUSD, sellUSD float64
	valid := 0
	approx := false
	supportLow := math.Inf(1)
	resistanceHigh := math.Inf(-1)

	for _, c := range recent {
		buy, okBuy := c.TakerBuyUSD()
		sell, okSell := c.TakerSellUSD()
		if !okBuy || !okSell {
			continue
		}
		buyUSD += buy
		sellUSD += sell
		valid++
		approx = approx || c.FlowApprox
		if c.Low < supportLow {
			supportLow = c.Low
		}
		if c.High > resistanceHigh {
			resistanceHigh = c.High
		}
	}

	if valid == 0 {
		a.log.Debug().Str("platform", platform).Int("bars", len(recent)).Msg("no taker flow data in window")
		return Metrics{}, false
	}

	return Metrics{
		Platform:       platform,
		NetFlowUSD:     buyUSD - sellUSD,
		BuyVolumeUSD:   buyUSD,
		SellVolumeUSD:  sellUSD,
		BuySellRatio:   buySellRatio(buyUSD, sellUSD),
		CurrentPrice:   recent[len(recent)-1].Close,
		SupportLow:     supportLow,
		ResistanceHigh: resistanceHigh,
		ATR:            indicators.MeanTrueRange(recent),
		ValidBars:      valid,
		ApproxFlow:     approx,
	}, true
}

// buySellRatio guards the zero-sell cases: all-buy windows map to +Inf,
// fully empty windows to 0.
func buySellRatio(buyUSD, sellUSD float64) float64 {
	if sellUSD > 0 {
		return buyUSD / sellUSD
	}
	if buyUSD > 0 {
		return math.Inf(1)
	}
	return 0
}
