package monitor

import (
	"context"

	"flow-signal-bot/internal/market"
	"flow-signal-bot/internal/risk"
	"flow-signal-bot/internal/signal"
	"flow-signal-bot/internal/strategy"
)

// DataSource supplies standardized candles and trades. Exchange
// connectors live behind this port; the monitor never talks to venue
// APIs directly.
type DataSource interface {
	// Candles returns up to limit bars in ascending time order for one
	// platform, symbol, and timeframe (e.g. "5m", "1h").
	Candles(ctx context.Context, platform, symbol, timeframe string, limit int) ([]market.Candle, error)
	// Trades returns recent trades for the whale watcher.
	Trades(ctx context.Context, platform, symbol string, limit int) ([]market.Trade, error)
}

// Notifier receives the monitor's output. Implementations push to chat,
// webhooks, or stdout.
type Notifier interface {
	NotifySignal(ctx context.Context, s signal.Signal) error
	NotifyRecommendation(ctx context.Context, rec strategy.Recommendation, pos risk.Position) error
}

// Recorder persists emitted signals and recommendations.
type Recorder interface {
	SaveSignal(ctx context.Context, cycleID string, s signal.Signal) error
	SaveRecommendation(ctx context.Context, cycleID string, rec strategy.Recommendation, pos risk.Position) error
}
