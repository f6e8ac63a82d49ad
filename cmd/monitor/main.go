package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"flow-signal-bot/config"
	"flow-signal-bot/internal/analyzers"
	"flow-signal-bot/internal/consensus"
	"flow-signal-bot/internal/exchange"
	"flow-signal-bot/internal/flow"
	"flow-signal-bot/internal/logging"
	"flow-signal-bot/internal/market"
	"flow-signal-bot/internal/metrics"
	"flow-signal-bot/internal/monitor"
	"flow-signal-bot/internal/regime"
	"flow-signal-bot/internal/risk"
	"flow-signal-bot/internal/state"
	"flow-signal-bot/internal/store"
	"flow-signal-bot/internal/strategy"
)

// regimeSymbol anchors the market-wide regime read. BTC leads the rest
// of the market closely enough to stand in for it.
const regimeSymbol = "BTC/USDT"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(cfg.ToLoggingConfig())
	log.Info().Msg("starting flow signal monitor")

	ctx := context.Background()

	// Shared trigger/streak state: Redis when configured, otherwise
	// process memory.
	var stateStore state.Store = state.NewMemoryStore()
	if cfg.RedisConfig.Enabled {
		redisStore, err := state.NewRedisStore(ctx, cfg.ToRedisConfig(), log)
		if err != nil {
			log.Fatal().Err(err).Msg("redis unavailable")
		}
		stateStore = redisStore
		log.Info().Str("addr", cfg.RedisConfig.Address).Msg("using redis state store")
	}

	var recorder monitor.Recorder
	if cfg.DatabaseConfig.Enabled {
		db, err := store.New(ctx, cfg.ToDatabaseConfig(), log)
		if err != nil {
			log.Fatal().Err(err).Msg("database unavailable")
		}
		defer db.Close()
		recorder = store.NewRepository(db)
		log.Info().Str("database", cfg.DatabaseConfig.Database).Msg("persistence enabled")
	}

	var source monitor.DataSource
	if cfg.ReplayConfig.Enabled {
		source = monitor.NewReplaySource(cfg.ReplayConfig.DataDir)
		log.Info().Str("dir", cfg.ReplayConfig.DataDir).Msg("replaying CSV data")
	} else {
		source = exchange.NewRESTSource(cfg.ExchangeConfig.Endpoints, log)
	}

	var m *metrics.Metrics
	if cfg.MetricsConfig.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		srv := metrics.Serve(cfg.MetricsConfig.Address)
		defer srv.Close()
		log.Info().Str("addr", cfg.MetricsConfig.Address).Msg("metrics endpoint up")
	}

	monCfg := cfg.ToMonitorConfig()
	regimeFetch := func(ctx context.Context) ([]market.Candle, error) {
		return source.Candles(ctx, monCfg.PrimaryPlatform, regimeSymbol, "1h", 200)
	}

	deps := monitor.Deps{
		Source:       source,
		Notifier:     monitor.NewLogNotifier(log),
		Recorder:     recorder,
		Flow:         flow.NewAnalyzer(monCfg.CandleLimit/2, log),
		VolumeSpike:  analyzers.NewVolumeSpike(analyzers.DefaultVolumeSpikeConfig(), stateStore, log),
		EarlyPump:    analyzers.NewEarlyPump(analyzers.DefaultEarlyPumpConfig(), stateStore, log),
		PanicDump:    analyzers.NewPanicDump(analyzers.DefaultPanicDumpConfig(), stateStore, log),
		SteadyGrowth: analyzers.NewSteadyGrowth(analyzers.DefaultSteadyGrowthConfig(), stateStore, log),
		SpotFutures:  analyzers.NewSpotFutures(analyzers.DefaultSpotFuturesConfig(), log),
		Whales:       analyzers.NewWhaleWatcher(analyzers.DefaultWhaleConfig(), log),
		Consensus:    consensus.NewAggregator(consensus.DefaultConfig(), log),
		Regime:       regime.NewClassifier(regimeFetch, time.Duration(cfg.MonitorConfig.RegimeTTLSecs)*time.Second, log),
		Engine:       strategy.NewEngine(cfg.ToStrategyConfig(), stateStore, log),
		Sizer:        risk.NewSizer(cfg.ToRiskConfig(), log),
		Metrics:      m,
	}

	mon := monitor.New(monCfg, deps, log)
	mon.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")
	mon.Stop()
}
