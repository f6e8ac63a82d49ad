// Package risk sizes positions and tracks the open-position budget.
package risk

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/indicators"
)

// Sizing errors. Callers treat these as "skip this entry", not failures.
var (
	ErrInvalidStop  = errors.New("stop distance must be positive")
	ErrMaxPositions = errors.New("maximum open positions reached")
)

// Config configures position sizing.
type Config struct {
	AccountBalanceUSD float64
	RiskFraction      float64 // fraction of balance risked per trade
	MaxNotionalUSD    float64 // hard cap per position
	MaxPositions      int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AccountBalanceUSD: 10_000,
		RiskFraction:      0.02,
		MaxNotionalUSD:    2_000,
		MaxPositions:      5,
	}
}

// Position is a sized position plan.
type Position struct {
	Symbol       string
	Side         string
	EntryPrice   float64
	StopLoss     float64
	TakeProfit   float64
	Size         float64 // base units
	NotionalUSD  float64
	RiskUSD      float64 // actual risk after caps
	PctOfAccount float64
	RiskReward   float64 // 0 when no take profit was given
	Volatility   indicators.VolatilityLevel
}

// Sizer computes position sizes and enforces the position-count budget.
type Sizer struct {
	cfg Config
	log zerolog.Logger

	mu   sync.RWMutex
	open map[string]Position
}

// NewSizer creates a position sizer.
func NewSizer(cfg Config, log zerolog.Logger) *Sizer {
	return &Sizer{
		cfg:  cfg,
		log:  log.With().Str("component", "risk").Logger(),
		open: make(map[string]Position),
	}
}

// Calculate sizes a position: risk budget divided by stop distance,
// scaled by the volatility multiplier, then shrunk proportionally to the
// notional cap. A symbol already held may be re-sized even at the
// position limit; a new symbol at the limit is rejected.
func (s *Sizer) Calculate(symbol, side string, entry, stop, takeProfit float64, level indicators.VolatilityLevel) (Position, error) {
	riskPerUnit := entry - stop
	if riskPerUnit < 0 {
		riskPerUnit = -riskPerUnit
	}
	if entry <= 0 || riskPerUnit <= 0 {
		return Position{}, fmt.Errorf("%w: entry %.6g stop %.6g", ErrInvalidStop, entry, stop)
	}

	s.mu.RLock()
	_, held := s.open[symbol]
	count := len(s.open)
	s.mu.RUnlock()
	if count >= s.cfg.MaxPositions && !held {
		return Position{}, ErrMaxPositions
	}

	riskBudget := s.cfg.AccountBalanceUSD * s.cfg.RiskFraction * volatilityMultiplier(level)
	size := riskBudget / riskPerUnit
	notional := size * entry
	if notional > s.cfg.MaxNotionalUSD {
		size = s.cfg.MaxNotionalUSD / entry
		notional = s.cfg.MaxNotionalUSD
	}

	p := Position{
		Symbol:       symbol,
		Side:         side,
		EntryPrice:   entry,
		StopLoss:     stop,
		TakeProfit:   takeProfit,
		Size:         size,
		NotionalUSD:  notional,
		RiskUSD:      size * riskPerUnit,
		PctOfAccount: notional / s.cfg.AccountBalanceUSD * 100,
		Volatility:   level,
	}
	if takeProfit > 0 {
		reward := takeProfit - entry
		if reward < 0 {
			reward = -reward
		}
		p.RiskReward = reward / riskPerUnit
	}

	s.log.Debug().
		Str("symbol", symbol).
		Float64("size", p.Size).
		Float64("notional_usd", p.NotionalUSD).
		Float64("risk_usd", p.RiskUSD).
		Str("volatility", string(level)).
		Msg("position sized")

	return p, nil
}

// volatilityMultiplier scales the risk budget by market conditions:
// lean in when it is quiet, pull back hard when it is wild.
func volatilityMultiplier(level indicators.VolatilityLevel) float64 {
	switch level {
	case indicators.VolatilityLow:
		return 1.2
	case indicators.VolatilityHigh:
		return 0.5
	default:
		return 1.0
	}
}

// Open registers a position against the budget.
func (s *Sizer) Open(p Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[p.Symbol] = p
}

// Close removes a position from the budget.
func (s *Sizer) Close(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, symbol)
}

// Position returns the open position for symbol, if any.
func (s *Sizer) Position(symbol string) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.open[symbol]
	return p, ok
}

// OpenCount returns how many positions are held.
func (s *Sizer) OpenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.open)
}

// TotalExposureUSD sums the notional of all open positions.
func (s *Sizer) TotalExposureUSD() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0.0
	for _, p := range s.open {
		total += p.NotionalUSD
	}
	return total
}
