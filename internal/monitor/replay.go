package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"flow-signal-bot/internal/market"
)

// ReplaySource is a file-backed DataSource for dry runs and demos. It
// reads CSV exports named <platform>_<symbol>_<timeframe>.csv (symbol
// with "/" flattened to "-") from a directory and serves them verbatim.
type ReplaySource struct {
	dir string

	mu    sync.Mutex
	cache map[string][]market.Candle
}

// NewReplaySource creates a replay source over a directory of CSV files.
func NewReplaySource(dir string) *ReplaySource {
	return &ReplaySource{dir: dir, cache: make(map[string][]market.Candle)}
}

// Candles serves the trailing limit bars of the matching file.
func (r *ReplaySource) Candles(_ context.Context, platform, symbol, timeframe string, limit int) ([]market.Candle, error) {
	key := fmt.Sprintf("%s_%s_%s", platform, strings.ReplaceAll(symbol, "/", "-"), timeframe)

	r.mu.Lock()
	candles, ok := r.cache[key]
	r.mu.Unlock()

	if !ok {
		path := filepath.Join(r.dir, key+".csv")
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("replay data %s: %w", key, err)
		}
		var err error
		candles, err = market.LoadCandlesCSV(path)
		if err != nil {
			return nil, err
		}
		for i := range candles {
			candles[i].Platform = platform
		}
		r.mu.Lock()
		r.cache[key] = candles
		r.mu.Unlock()
	}

	return market.LastN(candles, limit), nil
}

// Trades returns no trades: CSV exports carry candles only, and the
// whale watcher treats an empty list as no whale activity.
func (r *ReplaySource) Trades(context.Context, string, string, int) ([]market.Trade, error) {
	return nil, nil
}
