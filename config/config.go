package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"flow-signal-bot/internal/exchange"
	"flow-signal-bot/internal/logging"
	"flow-signal-bot/internal/monitor"
	"flow-signal-bot/internal/risk"
	"flow-signal-bot/internal/state"
	"flow-signal-bot/internal/store"
	"flow-signal-bot/internal/strategy"
)

type Config struct {
	MonitorConfig  MonitorConfig  `json:"monitor"`
	StrategyConfig StrategyConfig `json:"strategy"`
	RiskConfig     RiskConfig     `json:"risk"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	RedisConfig    RedisConfig    `json:"redis"`
	DatabaseConfig DatabaseConfig `json:"database"`
	MetricsConfig  MetricsConfig  `json:"metrics"`
	ReplayConfig   ReplayConfig   `json:"replay"`
	ExchangeConfig ExchangeConfig `json:"exchange"`
}

// ExchangeConfig maps platform names to REST endpoints. Unlisted
// platforms fall back to the built-in Binance endpoints.
type ExchangeConfig struct {
	Endpoints map[string]exchange.Endpoint `json:"endpoints"`
}

// MonitorConfig holds the scan loop configuration
type MonitorConfig struct {
	Symbols            []string `json:"symbols"`
	Platforms          []string `json:"platforms"`
	PrimaryPlatform    string   `json:"primary_platform"`
	FuturesPlatform    string   `json:"futures_platform"` // empty disables spot/futures comparison
	Timeframe          string   `json:"timeframe"`
	ResonanceTimeframe string   `json:"resonance_timeframe"`
	SteadyTimeframe    string   `json:"steady_timeframe"`
	CandleLimit        int      `json:"candle_limit"`
	TradeLimit         int      `json:"trade_limit"`
	IntervalSecs       int      `json:"interval_secs"`      // seconds between scan cycles
	CycleTimeoutSecs   int      `json:"cycle_timeout_secs"` // per-cycle deadline
	WorkerCount        int      `json:"worker_count"`
	FetchRetries       int      `json:"fetch_retries"`
	RegimeTTLSecs      int      `json:"regime_ttl_secs"` // regime classification cache lifetime
}

// StrategyConfig holds the decision engine configuration
type StrategyConfig struct {
	MinTotalFlowUSD   float64 `json:"min_total_flow_usd"`
	MinRatio          float64 `json:"min_ratio"`
	MinActionInterval int     `json:"min_action_interval_secs"`
	MinConsensusBars  int     `json:"min_consensus_bars"`
	ATRStopMult       float64 `json:"atr_stop_mult"`
	ATRTargetMult     float64 `json:"atr_target_mult"`
	TrendRRBoost      float64 `json:"trend_rr_boost"`
	RequireMidband    bool    `json:"require_midband"`
	EnableShort       bool    `json:"enable_short"`
	ShortOnlyInBear   bool    `json:"short_only_in_bear"`
}

// RiskConfig holds position sizing configuration
type RiskConfig struct {
	AccountBalanceUSD float64 `json:"account_balance_usd"`
	RiskFraction      float64 `json:"risk_fraction"` // fraction of balance risked per trade
	MaxNotionalUSD    float64 `json:"max_notional_usd"`
	MaxPositions      int     `json:"max_positions"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // trace, debug, info, warn, error
	Pretty bool   `json:"pretty"` // console output instead of JSON
}

// RedisConfig holds shared-state storage configuration. Disabled means
// cooldowns and streaks live in process memory only.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	TTLHours int    `json:"ttl_hours"`
}

// DatabaseConfig holds Postgres persistence configuration
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"` // listen address for /metrics
}

// ReplayConfig points the monitor at CSV exports instead of a live feed
type ReplayConfig struct {
	Enabled bool   `json:"enabled"`
	DataDir string `json:"data_dir"`
}

// Load builds the configuration: component defaults, overlaid by
// config.json when present, overlaid by environment variables.
func Load() (*Config, error) {
	cfg := Default()

	// No config file is fine, defaults and env cover everything.
	if file, err := os.ReadFile("config.json"); err == nil {
		if err := json.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Default returns the full default configuration, assembled from each
// component's production defaults.
func Default() *Config {
	mon := monitor.DefaultConfig()
	strat := strategy.DefaultConfig()
	rk := risk.DefaultConfig()
	db := store.DefaultConfig()

	return &Config{
		MonitorConfig: MonitorConfig{
			Symbols:            mon.Symbols,
			Platforms:          mon.Platforms,
			PrimaryPlatform:    mon.PrimaryPlatform,
			FuturesPlatform:    mon.FuturesPlatform,
			Timeframe:          mon.Timeframe,
			ResonanceTimeframe: mon.ResonanceTimeframe,
			SteadyTimeframe:    mon.SteadyTimeframe,
			CandleLimit:        mon.CandleLimit,
			TradeLimit:         mon.TradeLimit,
			IntervalSecs:       int(mon.Interval / time.Second),
			CycleTimeoutSecs:   int(mon.CycleTimeout / time.Second),
			WorkerCount:        mon.WorkerCount,
			FetchRetries:       int(mon.FetchRetries),
			RegimeTTLSecs:      300,
		},
		StrategyConfig: StrategyConfig{
			MinTotalFlowUSD:   strat.MinTotalFlowUSD,
			MinRatio:          strat.MinRatio,
			MinActionInterval: int(strat.MinActionInterval / time.Second),
			MinConsensusBars:  strat.MinConsensusBars,
			ATRStopMult:       strat.ATRStopMult,
			ATRTargetMult:     strat.ATRTargetMult,
			TrendRRBoost:      strat.TrendRRBoost,
			RequireMidband:    strat.RequireMidband,
			EnableShort:       strat.EnableShort,
			ShortOnlyInBear:   strat.ShortOnlyInBear,
		},
		RiskConfig: RiskConfig{
			AccountBalanceUSD: rk.AccountBalanceUSD,
			RiskFraction:      rk.RiskFraction,
			MaxNotionalUSD:    rk.MaxNotionalUSD,
			MaxPositions:      rk.MaxPositions,
		},
		LoggingConfig: LoggingConfig{Level: "info"},
		RedisConfig:   RedisConfig{Address: "localhost:6379", TTLHours: 24},
		DatabaseConfig: DatabaseConfig{
			Host:     db.Host,
			Port:     db.Port,
			User:     db.User,
			Database: db.Database,
			SSLMode:  db.SSLMode,
			MaxConns: int(db.MaxConns),
		},
		MetricsConfig:  MetricsConfig{Address: ":9091"},
		ExchangeConfig: ExchangeConfig{Endpoints: exchange.DefaultEndpoints()},
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment takes precedence over config.json.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MONITOR_SYMBOLS"); v != "" {
		cfg.MonitorConfig.Symbols = splitList(v)
	}
	if v := os.Getenv("MONITOR_PLATFORMS"); v != "" {
		cfg.MonitorConfig.Platforms = splitList(v)
	}
	cfg.MonitorConfig.PrimaryPlatform = getEnvOrDefault("MONITOR_PRIMARY_PLATFORM", cfg.MonitorConfig.PrimaryPlatform)
	cfg.MonitorConfig.FuturesPlatform = getEnvOrDefault("MONITOR_FUTURES_PLATFORM", cfg.MonitorConfig.FuturesPlatform)
	cfg.MonitorConfig.Timeframe = getEnvOrDefault("MONITOR_TIMEFRAME", cfg.MonitorConfig.Timeframe)
	cfg.MonitorConfig.IntervalSecs = getEnvIntOrDefault("MONITOR_INTERVAL_SECS", cfg.MonitorConfig.IntervalSecs)
	cfg.MonitorConfig.WorkerCount = getEnvIntOrDefault("MONITOR_WORKER_COUNT", cfg.MonitorConfig.WorkerCount)
	cfg.MonitorConfig.RegimeTTLSecs = getEnvIntOrDefault("MONITOR_REGIME_TTL_SECS", cfg.MonitorConfig.RegimeTTLSecs)

	cfg.StrategyConfig.MinTotalFlowUSD = getEnvFloatOrDefault("STRATEGY_MIN_TOTAL_FLOW_USD", cfg.StrategyConfig.MinTotalFlowUSD)
	cfg.StrategyConfig.MinRatio = getEnvFloatOrDefault("STRATEGY_MIN_RATIO", cfg.StrategyConfig.MinRatio)
	cfg.StrategyConfig.MinActionInterval = getEnvIntOrDefault("STRATEGY_MIN_ACTION_INTERVAL_SECS", cfg.StrategyConfig.MinActionInterval)
	if v := os.Getenv("STRATEGY_ENABLE_SHORT"); v != "" {
		cfg.StrategyConfig.EnableShort = v == "true"
	}

	cfg.RiskConfig.AccountBalanceUSD = getEnvFloatOrDefault("RISK_ACCOUNT_BALANCE_USD", cfg.RiskConfig.AccountBalanceUSD)
	cfg.RiskConfig.RiskFraction = getEnvFloatOrDefault("RISK_FRACTION", cfg.RiskConfig.RiskFraction)
	cfg.RiskConfig.MaxNotionalUSD = getEnvFloatOrDefault("RISK_MAX_NOTIONAL_USD", cfg.RiskConfig.MaxNotionalUSD)
	cfg.RiskConfig.MaxPositions = getEnvIntOrDefault("RISK_MAX_POSITIONS", cfg.RiskConfig.MaxPositions)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		cfg.LoggingConfig.Pretty = v == "true"
	}

	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.RedisConfig.Enabled = v == "true"
	}
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	if v := os.Getenv("DATABASE_ENABLED"); v != "" {
		cfg.DatabaseConfig.Enabled = v == "true"
	}
	cfg.DatabaseConfig.Host = getEnvOrDefault("DATABASE_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DATABASE_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DATABASE_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DATABASE_NAME", cfg.DatabaseConfig.Database)

	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.MetricsConfig.Enabled = v == "true"
	}
	cfg.MetricsConfig.Address = getEnvOrDefault("METRICS_ADDR", cfg.MetricsConfig.Address)

	if v := os.Getenv("REPLAY_ENABLED"); v != "" {
		cfg.ReplayConfig.Enabled = v == "true"
	}
	cfg.ReplayConfig.DataDir = getEnvOrDefault("REPLAY_DATA_DIR", cfg.ReplayConfig.DataDir)
}

// ToMonitorConfig converts to the monitor package's config.
func (c *Config) ToMonitorConfig() monitor.Config {
	return monitor.Config{
		Symbols:            c.MonitorConfig.Symbols,
		Platforms:          c.MonitorConfig.Platforms,
		PrimaryPlatform:    c.MonitorConfig.PrimaryPlatform,
		FuturesPlatform:    c.MonitorConfig.FuturesPlatform,
		Timeframe:          c.MonitorConfig.Timeframe,
		ResonanceTimeframe: c.MonitorConfig.ResonanceTimeframe,
		SteadyTimeframe:    c.MonitorConfig.SteadyTimeframe,
		CandleLimit:        c.MonitorConfig.CandleLimit,
		TradeLimit:         c.MonitorConfig.TradeLimit,
		Interval:           time.Duration(c.MonitorConfig.IntervalSecs) * time.Second,
		CycleTimeout:       time.Duration(c.MonitorConfig.CycleTimeoutSecs) * time.Second,
		WorkerCount:        c.MonitorConfig.WorkerCount,
		FetchRetries:       uint64(c.MonitorConfig.FetchRetries),
	}
}

// ToStrategyConfig converts to the strategy package's config.
func (c *Config) ToStrategyConfig() strategy.Config {
	return strategy.Config{
		MinTotalFlowUSD:   c.StrategyConfig.MinTotalFlowUSD,
		MinRatio:          c.StrategyConfig.MinRatio,
		MinActionInterval: time.Duration(c.StrategyConfig.MinActionInterval) * time.Second,
		MinConsensusBars:  c.StrategyConfig.MinConsensusBars,
		ATRStopMult:       c.StrategyConfig.ATRStopMult,
		ATRTargetMult:     c.StrategyConfig.ATRTargetMult,
		TrendRRBoost:      c.StrategyConfig.TrendRRBoost,
		RequireMidband:    c.StrategyConfig.RequireMidband,
		EnableShort:       c.StrategyConfig.EnableShort,
		ShortOnlyInBear:   c.StrategyConfig.ShortOnlyInBear,
	}
}

// ToRiskConfig converts to the risk package's config.
func (c *Config) ToRiskConfig() risk.Config {
	return risk.Config{
		AccountBalanceUSD: c.RiskConfig.AccountBalanceUSD,
		RiskFraction:      c.RiskConfig.RiskFraction,
		MaxNotionalUSD:    c.RiskConfig.MaxNotionalUSD,
		MaxPositions:      c.RiskConfig.MaxPositions,
	}
}

// ToLoggingConfig converts to the logging package's config.
func (c *Config) ToLoggingConfig() logging.Config {
	return logging.Config{Level: c.LoggingConfig.Level, Pretty: c.LoggingConfig.Pretty}
}

// ToRedisConfig converts to the state package's Redis config.
func (c *Config) ToRedisConfig() state.RedisConfig {
	return state.RedisConfig{
		Addr:     c.RedisConfig.Address,
		Password: c.RedisConfig.Password,
		DB:       c.RedisConfig.DB,
		TTL:      time.Duration(c.RedisConfig.TTLHours) * time.Hour,
	}
}

// ToDatabaseConfig converts to the store package's config.
func (c *Config) ToDatabaseConfig() store.Config {
	return store.Config{
		Host:     c.DatabaseConfig.Host,
		Port:     c.DatabaseConfig.Port,
		User:     c.DatabaseConfig.User,
		Password: c.DatabaseConfig.Password,
		Database: c.DatabaseConfig.Database,
		SSLMode:  c.DatabaseConfig.SSLMode,
		MaxConns: int32(c.DatabaseConfig.MaxConns),
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
