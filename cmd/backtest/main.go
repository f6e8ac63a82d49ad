package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"flow-signal-bot/config"
	"flow-signal-bot/internal/backtest"
	"flow-signal-bot/internal/logging"
	"flow-signal-bot/internal/market"
	"flow-signal-bot/internal/store"
)

func main() {
	_ = godotenv.Load()

	var (
		dataPath  = flag.String("data", "", "candle CSV file, or a directory of <symbol>.csv files")
		symbol    = flag.String("symbol", "BTC/USDT", "symbol for a single-file run")
		grid      = flag.Bool("grid", false, "grid search instead of a single run")
		maxCombos = flag.Int("max-combos", 0, "cap on grid combinations (0 = all)")
		save      = flag.Bool("save", false, "persist results to the configured database")
	)
	flag.Parse()

	if *dataPath == "" {
		fmt.Fprintln(os.Stderr, "usage: backtest -data <csv file or dir> [-symbol BTC/USDT] [-grid] [-max-combos N] [-save]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.ToLoggingConfig())

	var repo *store.Repository
	if *save {
		db, err := store.New(context.Background(), cfg.ToDatabaseConfig(), log)
		if err != nil {
			log.Fatal().Err(err).Msg("database unavailable")
		}
		defer db.Close()
		repo = store.NewRepository(db)
	}

	info, err := os.Stat(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("data path unreadable")
	}

	datasets := map[string]string{*symbol: *dataPath}
	if info.IsDir() {
		datasets = map[string]string{}
		entries, err := os.ReadDir(*dataPath)
		if err != nil {
			log.Fatal().Err(err).Msg("data dir unreadable")
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
				continue
			}
			sym := strings.ReplaceAll(strings.TrimSuffix(e.Name(), ".csv"), "-", "/")
			datasets[sym] = filepath.Join(*dataPath, e.Name())
		}
		if len(datasets) == 0 {
			log.Fatal().Str("dir", *dataPath).Msg("no CSV files found")
		}
	}

	if *grid {
		runGrid(datasets, *maxCombos, repo, log)
		return
	}
	runSingle(datasets, repo, log)
}

func runSingle(datasets map[string]string, repo *store.Repository, log zerolog.Logger) {
	for sym, path := range datasets {
		candles, err := market.LoadCandlesCSV(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("load candles")
		}

		bt := backtest.New(backtest.DefaultConfig(sym), backtest.DefaultParams(), log)
		res, err := bt.Run(candles)
		if err != nil {
			log.Fatal().Err(err).Str("symbol", sym).Msg("backtest failed")
		}
		printResult(res)
		saveResult(repo, res, log)
	}
}

func runGrid(datasets map[string]string, maxCombos int, repo *store.Repository, log zerolog.Logger) {
	results := make(map[string]*backtest.GridResult, len(datasets))
	for sym, path := range datasets {
		candles, err := market.LoadCandlesCSV(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("load candles")
		}

		gr, err := backtest.GridSearch(backtest.DefaultConfig(sym), backtest.DefaultGrid(), candles, maxCombos, log)
		if err != nil {
			log.Fatal().Err(err).Str("symbol", sym).Msg("grid search failed")
		}
		results[sym] = gr

		fmt.Printf("=== %s grid search: %d evaluated, %d skipped ===\n", sym, gr.Evaluated, gr.Skipped)
		if gr.BestRun != nil {
			printParams(gr.Best)
			printResult(gr.BestRun)
			saveResult(repo, gr.BestRun, log)
		} else {
			fmt.Println("no parameter combination produced a trade")
		}
	}

	if len(results) > 1 {
		learner := backtest.NewLearner(log)
		params, voters := learner.Aggregate(results)
		fmt.Printf("=== recommended parameters (%d symbols voting) ===\n", voters)
		printParams(params)
	}
}

func saveResult(repo *store.Repository, res *backtest.Result, log zerolog.Logger) {
	if repo == nil {
		return
	}
	if err := repo.SaveBacktestResult(context.Background(), res); err != nil {
		log.Error().Err(err).Msg("persist backtest result")
	}
}

func printParams(p backtest.Params) {
	fmt.Printf("  min flow $%.0f  min ratio %.2f  stop %.1fx ATR  target %.1fx ATR  consensus bars %d\n",
		p.MinTotalFlowUSD, p.MinRatio, p.ATRStopMult, p.ATRTargetMult, p.MinConsensusBars)
}

func printResult(res *backtest.Result) {
	fmt.Printf("=== %s backtest %s ===\n", res.Symbol, res.RunID)
	fmt.Printf("  trades: %d  wins: %d  win rate: %.1f%%\n", res.TotalTrades, res.Wins, res.WinRate)
	fmt.Printf("  pnl: $%.2f  final balance: $%.2f  max drawdown: %.2f%%\n",
		res.TotalPnLUSD, res.FinalBalanceUSD, res.MaxDrawdownPct)
	for _, tr := range res.Trades {
		fmt.Printf("  %s %-5s %s  entry %.4f  exit %.4f  pnl $%.2f (%.2f%%)  %s\n",
			tr.EntryTime.Format("2006-01-02 15:04"), tr.Side, tr.Symbol,
			tr.EntryPrice, tr.ExitPrice, tr.PnLUSD, tr.PnLPct, tr.Reason)
	}
}
