package monitor

import (
	"context"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/risk"
	"flow-signal-bot/internal/signal"
	"flow-signal-bot/internal/strategy"
)

// LogNotifier writes signals and recommendations to the structured log.
// It is the default sink when no external notifier is configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

// NotifySignal logs the signal with its numeric evidence.
func (n *LogNotifier) NotifySignal(_ context.Context, s signal.Signal) error {
	evt := n.log.Info().
		Str("type", string(s.Type)).
		Str("grade", string(s.Grade)).
		Str("symbol", s.Symbol).
		Str("description", s.Description)
	for k, v := range s.Fields {
		evt = evt.Float64(k, v)
	}
	if s.Suggestion != nil {
		evt = evt.
			Str("side", s.Suggestion.Side).
			Float64("entry", s.Suggestion.Entry).
			Float64("stop_loss", s.Suggestion.StopLoss).
			Float64("take_profit", s.Suggestion.TakeProfit)
	}
	evt.Msg("signal")
	return nil
}

// NotifyRecommendation logs the recommendation and its sized position.
func (n *LogNotifier) NotifyRecommendation(_ context.Context, rec strategy.Recommendation, pos risk.Position) error {
	n.log.Info().
		Str("symbol", rec.Symbol).
		Str("action", string(rec.Action)).
		Str("side", string(rec.Side)).
		Float64("price", rec.Price).
		Float64("stop_loss", rec.StopLoss).
		Float64("take_profit", rec.TakeProfit).
		Float64("size", pos.Size).
		Float64("notional_usd", pos.NotionalUSD).
		Str("reason", rec.Reason).
		Msg("recommendation")
	return nil
}
