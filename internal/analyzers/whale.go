package analyzers

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/market"
	"flow-signal-bot/internal/signal"
)

// WhaleConfig configures the whale trade watcher.
type WhaleConfig struct {
	ThresholdUSD float64
}

// DefaultWhaleConfig returns the production default.
func DefaultWhaleConfig() WhaleConfig {
	return WhaleConfig{ThresholdUSD: 200000}
}

// WhaleWatcher filters raw trades down to whale-sized ones. Its output
// feeds the early pump confirmation and an observational signal.
type WhaleWatcher struct {
	cfg WhaleConfig
	log zerolog.Logger
	now func() time.Time
}

// NewWhaleWatcher creates a whale trade watcher.
func NewWhaleWatcher(cfg WhaleConfig, log zerolog.Logger) *WhaleWatcher {
	return &WhaleWatcher{
		cfg: cfg,
		log: log.With().Str("component", "whale_watcher").Logger(),
		now: time.Now,
	}
}

// Filter returns the trades at or above the whale notional threshold.
func (w *WhaleWatcher) Filter(trades []market.Trade) []market.Trade {
	var whales []market.Trade
	for _, t := range trades {
		if t.Notional() >= w.cfg.ThresholdUSD {
			whales = append(whales, t)
		}
	}
	return whales
}

// Signal summarizes a batch of whale trades as an observational signal.
// Returns nil when there are none.
func (w *WhaleWatcher) Signal(symbol string, whales []market.Trade) *signal.Signal {
	if len(whales) == 0 {
		return nil
	}

	var buyUSD, sellUSD float64
	buys := 0
	for _, t := range whales {
		if t.Side == "buy" {
			buyUSD += t.Notional()
			buys++
		} else {
			sellUSD += t.Notional()
		}
	}

	w.log.Info().
		Str("symbol", symbol).
		Int("count", len(whales)).
		Float64("buy_usd", buyUSD).
		Float64("sell_usd", sellUSD).
		Msg("whale trades observed")

	return &signal.Signal{
		Type:      signal.TypeWhaleTrade,
		Grade:     signal.GradeC,
		Symbol:    symbol,
		Timestamp: w.now(),
		Description: fmt.Sprintf("%d whale trades (%d buys), $%.0f bought / $%.0f sold",
			len(whales), buys, buyUSD, sellUSD),
		Fields: map[string]float64{
			"count":    float64(len(whales)),
			"buy_usd":  buyUSD,
			"sell_usd": sellUSD,
		},
	}
}
