// Package monitor runs the live cycle: fetch data for every symbol,
// fuse it through the analyzers, consensus, regime, strategy, and sizing
// layers, and push the results to the collaborator ports.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flow-signal-bot/internal/analyzers"
	"flow-signal-bot/internal/consensus"
	"flow-signal-bot/internal/flow"
	"flow-signal-bot/internal/indicators"
	"flow-signal-bot/internal/market"
	"flow-signal-bot/internal/metrics"
	"flow-signal-bot/internal/regime"
	"flow-signal-bot/internal/risk"
	"flow-signal-bot/internal/signal"
	"flow-signal-bot/internal/strategy"
)

// Config configures the monitor loop.
type Config struct {
	Symbols            []string
	Platforms          []string // every spot platform polled for flow
	PrimaryPlatform    string   // platform whose series feeds the pattern analyzers
	FuturesPlatform    string   // empty disables the spot/futures comparison
	Timeframe          string
	ResonanceTimeframe string
	SteadyTimeframe    string
	CandleLimit        int
	TradeLimit         int
	Interval           time.Duration
	CycleTimeout       time.Duration
	WorkerCount        int
	FetchRetries       uint64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Platforms:          []string{"binance", "coinbase", "okx", "bybit"},
		PrimaryPlatform:    "binance",
		FuturesPlatform:    "binance_futures",
		Timeframe:          "5m",
		ResonanceTimeframe: "1h",
		SteadyTimeframe:    "15m",
		CandleLimit:        100,
		TradeLimit:         200,
		Interval:           time.Minute,
		CycleTimeout:       5 * time.Minute,
		WorkerCount:        4,
		FetchRetries:       3,
	}
}

// Deps are the monitor's wired collaborators. Recorder may be nil.
type Deps struct {
	Source       DataSource
	Notifier     Notifier
	Recorder     Recorder
	Flow         *flow.Analyzer
	VolumeSpike  *analyzers.VolumeSpike
	EarlyPump    *analyzers.EarlyPump
	PanicDump    *analyzers.PanicDump
	SteadyGrowth *analyzers.SteadyGrowth
	SpotFutures  *analyzers.SpotFutures
	Whales       *analyzers.WhaleWatcher
	Consensus    *consensus.Aggregator
	Regime       *regime.Classifier
	Engine       *strategy.Engine
	Sizer        *risk.Sizer
	Metrics      *metrics.Metrics
}

// Monitor orchestrates the per-symbol pipeline at a fixed interval.
// Cycles never overlap; within a cycle a worker pool fans symbols out,
// and each symbol is handled by exactly one worker.
type Monitor struct {
	cfg      Config
	deps     Deps
	log      zerolog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a monitor.
func New(cfg Config, deps Deps, log zerolog.Logger) *Monitor {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	return &Monitor{
		cfg:      cfg,
		deps:     deps,
		log:      log.With().Str("component", "monitor").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start begins the cycle loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.runLoop()
	m.log.Info().
		Int("symbols", len(m.cfg.Symbols)).
		Strs("platforms", m.cfg.Platforms).
		Dur("interval", m.cfg.Interval).
		Msg("monitor started")
}

// Stop shuts the loop down and waits for the current cycle to finish.
func (m *Monitor) Stop() {
	close(m.stopChan)
	m.wg.Wait()
	m.log.Info().Msg("monitor stopped")
}

func (m *Monitor) runLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.RunCycle(context.Background())
	for {
		select {
		case <-ticker.C:
			m.RunCycle(context.Background())
		case <-m.stopChan:
			return
		}
	}
}

// RunCycle executes one full scan of all symbols.
func (m *Monitor) RunCycle(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CycleTimeout)
	defer cancel()

	start := time.Now()
	cycleID := uuid.NewString()
	reg := m.deps.Regime.Regime(ctx)

	symbolChan := make(chan string, len(m.cfg.Symbols))
	var wg sync.WaitGroup
	for i := 0; i < m.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range symbolChan {
				select {
				case <-ctx.Done():
					return
				default:
					m.processSymbol(ctx, cycleID, symbol, reg)
					if m.deps.Metrics != nil {
						m.deps.Metrics.SymbolsProcessed.Inc()
					}
				}
			}
		}()
	}
	for _, symbol := range m.cfg.Symbols {
		symbolChan <- symbol
	}
	close(symbolChan)
	wg.Wait()

	if m.deps.Metrics != nil {
		m.deps.Metrics.ObserveCycle(time.Since(start))
	}
	m.log.Info().
		Str("cycle_id", cycleID).
		Str("regime", string(reg)).
		Dur("duration", time.Since(start)).
		Msg("cycle complete")
}

// processSymbol runs the full pipeline for one symbol. A platform that
// fails to deliver data is skipped for this cycle; the symbol continues
// with whatever platforms answered.
func (m *Monitor) processSymbol(ctx context.Context, cycleID, symbol string, reg regime.Regime) {
	metricsMap := make(map[string]flow.Metrics)
	var primary []market.Candle

	for _, platform := range m.cfg.Platforms {
		candles, err := m.fetchCandles(ctx, platform, symbol, m.cfg.Timeframe)
		if err != nil {
			m.log.Warn().Err(err).Str("platform", platform).Str("symbol", symbol).Msg("candle fetch failed, skipping platform")
			if m.deps.Metrics != nil {
				m.deps.Metrics.FetchErrorsTotal.WithLabelValues(platform).Inc()
			}
			continue
		}
		if platform == m.cfg.PrimaryPlatform {
			primary = candles
		}
		if fm, ok := m.deps.Flow.Analyze(platform, candles); ok {
			metricsMap[platform] = fm
		}
	}

	signals := m.collectSignals(ctx, symbol, primary, metricsMap)

	fastTrend := consensus.TrendUnknown
	if len(primary) > 20 {
		if indicators.IsTrendUp(primary, 20) {
			fastTrend = consensus.TrendUp
		} else {
			fastTrend = consensus.TrendDown
		}
	}

	rec := m.deps.Engine.Evaluate(strategy.Input{
		Symbol:    symbol,
		Metrics:   metricsMap,
		Consensus: m.deps.Consensus.Consensus(metricsMap),
		Signals:   signals,
		Regime:    reg,
		FastTrend: fastTrend,
	})

	m.emitSignals(ctx, cycleID, signals)
	if rec != nil {
		m.emitRecommendation(ctx, cycleID, rec, primary)
	}
}

// collectSignals runs the pattern analyzers and the cross-platform
// detections over the fetched data.
func (m *Monitor) collectSignals(ctx context.Context, symbol string, primary []market.Candle, metricsMap map[string]flow.Metrics) []signal.Signal {
	var signals []signal.Signal

	resonance, err := m.fetchCandles(ctx, m.cfg.PrimaryPlatform, symbol, m.cfg.ResonanceTimeframe)
	if err != nil {
		m.log.Warn().Err(err).Str("symbol", symbol).Msg("resonance fetch failed, continuing without it")
		resonance = nil
	}

	var futures []market.Candle
	if m.cfg.FuturesPlatform != "" {
		if futures, err = m.fetchCandles(ctx, m.cfg.FuturesPlatform, symbol, m.cfg.Timeframe); err != nil {
			futures = nil
		}
	}
	sf := m.deps.SpotFutures.Analyze(primary, futures)

	var whales []market.Trade
	if trades, err := m.deps.Source.Trades(ctx, m.cfg.PrimaryPlatform, symbol, m.cfg.TradeLimit); err == nil {
		whales = m.deps.Whales.Filter(trades)
	}

	if s := m.deps.VolumeSpike.Analyze(symbol, primary); s != nil {
		signals = append(signals, *s)
	}
	if s := m.deps.EarlyPump.Analyze(symbol, primary, analyzers.PumpContext{
		Resonance:   resonance,
		SpotFutures: sf,
		WhaleTrades: whales,
	}); s != nil {
		signals = append(signals, *s)
	}
	if s := m.deps.PanicDump.Analyze(symbol, primary, resonance); s != nil {
		signals = append(signals, *s)
	}
	if steadySeries, err := m.fetchCandles(ctx, m.cfg.PrimaryPlatform, symbol, m.cfg.SteadyTimeframe); err == nil {
		if s := m.deps.SteadyGrowth.Analyze(symbol, steadySeries); s != nil {
			signals = append(signals, *s)
		}
	}
	if s := m.deps.Whales.Signal(symbol, whales); s != nil {
		signals = append(signals, *s)
	}

	htf := consensus.TrendUnknown
	if len(resonance) > 20 {
		if indicators.IsTrendUp(resonance, 20) {
			htf = consensus.TrendUp
		} else {
			htf = consensus.TrendDown
		}
	}
	signals = append(signals, m.deps.Consensus.Signals(symbol, metricsMap, len(m.cfg.Platforms), htf)...)

	return signals
}

func (m *Monitor) emitSignals(ctx context.Context, cycleID string, signals []signal.Signal) {
	for _, s := range signals {
		if m.deps.Metrics != nil {
			m.deps.Metrics.SignalsTotal.WithLabelValues(string(s.Type), string(s.Grade)).Inc()
		}
		if err := m.deps.Notifier.NotifySignal(ctx, s); err != nil {
			m.log.Warn().Err(err).Str("type", string(s.Type)).Msg("signal notification failed")
		}
		if m.deps.Recorder != nil {
			if err := m.deps.Recorder.SaveSignal(ctx, cycleID, s); err != nil {
				m.log.Warn().Err(err).Str("type", string(s.Type)).Msg("signal persistence failed")
			}
		}
	}
}

func (m *Monitor) emitRecommendation(ctx context.Context, cycleID string, rec *strategy.Recommendation, primary []market.Candle) {
	var pos risk.Position
	switch rec.Action {
	case strategy.ActionEntry:
		atrPct, _ := indicators.ATRPercent(primary, 14)
		level := indicators.ClassifyVolatility(atrPct, 3.0, 8.0)
		sized, err := m.deps.Sizer.Calculate(rec.Symbol, string(rec.Side), rec.Price, rec.StopLoss, rec.TakeProfit, level)
		if err != nil {
			m.log.Info().Err(err).Str("symbol", rec.Symbol).Msg("entry recommendation dropped by sizing")
			return
		}
		m.deps.Sizer.Open(sized)
		pos = sized
	case strategy.ActionExit:
		pos, _ = m.deps.Sizer.Position(rec.Symbol)
		m.deps.Sizer.Close(rec.Symbol)
	}

	if m.deps.Metrics != nil {
		m.deps.Metrics.RecommendationsTotal.WithLabelValues(string(rec.Action), string(rec.Side)).Inc()
	}
	if err := m.deps.Notifier.NotifyRecommendation(ctx, *rec, pos); err != nil {
		m.log.Warn().Err(err).Str("symbol", rec.Symbol).Msg("recommendation notification failed")
	}
	if m.deps.Recorder != nil {
		if err := m.deps.Recorder.SaveRecommendation(ctx, cycleID, *rec, pos); err != nil {
			m.log.Warn().Err(err).Str("symbol", rec.Symbol).Msg("recommendation persistence failed")
		}
	}
}

// fetchCandles retries transient fetch failures with exponential backoff
// and jitter. Retries live only at this boundary; everything above sees
// a single success or failure.
func (m *Monitor) fetchCandles(ctx context.Context, platform, symbol, timeframe string) ([]market.Candle, error) {
	var candles []market.Candle
	op := func() error {
		var err error
		candles, err = m.deps.Source.Candles(ctx, platform, symbol, timeframe, m.cfg.CandleLimit)
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), m.cfg.FetchRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("fetch %s %s %s: %w", platform, symbol, timeframe, err)
	}
	return candles, nil
}
