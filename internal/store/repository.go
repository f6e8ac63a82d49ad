package store

import (
	"context"
	"encoding/json"
	"fmt"

	"flow-signal-bot/internal/backtest"
	"flow-signal-bot/internal/risk"
	"flow-signal-bot/internal/signal"
	"flow-signal-bot/internal/strategy"
)

// Repository implements the monitor's Recorder port plus backtest result
// persistence.
type Repository struct {
	db *DB
}

// NewRepository creates a repository over an open database.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveSignal stores one emitted signal.
func (r *Repository) SaveSignal(ctx context.Context, cycleID string, s signal.Signal) error {
	fields, err := json.Marshal(s.Fields)
	if err != nil {
		return fmt.Errorf("marshal signal fields: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO signals (cycle_id, type, grade, symbol, platform, description, fields, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cycleID, string(s.Type), string(s.Grade), s.Symbol, s.Platform, s.Description, fields, s.Timestamp)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// SaveRecommendation stores one strategy recommendation with its sizing.
func (r *Repository) SaveRecommendation(ctx context.Context, cycleID string, rec strategy.Recommendation, pos risk.Position) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO recommendations (cycle_id, symbol, action, side, price, stop_loss, take_profit, size, notional_usd, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		cycleID, rec.Symbol, string(rec.Action), string(rec.Side), rec.Price,
		rec.StopLoss, rec.TakeProfit, pos.Size, pos.NotionalUSD, rec.Reason, rec.Time)
	if err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

// SaveBacktestResult stores the summary of one backtest run.
func (r *Repository) SaveBacktestResult(ctx context.Context, res *backtest.Result) error {
	params, err := json.Marshal(res.Params)
	if err != nil {
		return fmt.Errorf("marshal backtest params: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO backtest_results (run_id, symbol, params, total_trades, win_rate, total_pnl_usd, max_drawdown_pct, final_balance_usd)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.RunID, res.Symbol, params, res.TotalTrades, res.WinRate,
		res.TotalPnLUSD, res.MaxDrawdownPct, res.FinalBalanceUSD)
	if err != nil {
		return fmt.Errorf("insert backtest result: %w", err)
	}
	return nil
}
