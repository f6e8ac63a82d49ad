// Package exchange fetches candles and trades over binance-style REST
// APIs and adapts them to the monitor's DataSource port.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/market"
)

// Endpoint describes one platform's REST surface. Paths default to the
// spot API layout when empty.
type Endpoint struct {
	BaseURL   string `json:"base_url"`
	KlinePath string `json:"kline_path"`
	TradePath string `json:"trade_path"`
}

// DefaultEndpoints covers Binance spot and USD-M futures. Other venues
// are expected to sit behind a binance-compatible gateway and are added
// through configuration.
func DefaultEndpoints() map[string]Endpoint {
	return map[string]Endpoint{
		"binance": {
			BaseURL: "https://api.binance.com",
		},
		"binance_futures": {
			BaseURL:   "https://fapi.binance.com",
			KlinePath: "/fapi/v1/klines",
			TradePath: "/fapi/v1/trades",
		},
	}
}

// RESTSource is a live DataSource over per-platform REST endpoints.
type RESTSource struct {
	endpoints  map[string]Endpoint
	httpClient *http.Client
	log        zerolog.Logger
}

// NewRESTSource creates a source over the given endpoints.
func NewRESTSource(endpoints map[string]Endpoint, log zerolog.Logger) *RESTSource {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints()
	}
	return &RESTSource{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("component", "exchange").Logger(),
	}
}

// Candles fetches the trailing limit klines for a symbol.
func (s *RESTSource) Candles(ctx context.Context, platform, symbol, timeframe string, limit int) ([]market.Candle, error) {
	ep, ok := s.endpoints[platform]
	if !ok {
		return nil, fmt.Errorf("platform %s has no configured endpoint", platform)
	}
	path := ep.KlinePath
	if path == "" {
		path = "/api/v3/klines"
	}

	params := url.Values{}
	params.Set("symbol", restSymbol(symbol))
	params.Set("interval", timeframe)
	params.Set("limit", strconv.Itoa(limit))

	body, err := s.get(ctx, ep.BaseURL+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", platform, symbol, err)
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("parse klines: %w", err)
	}

	candles := make([]market.Candle, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 6 {
			continue
		}
		c := market.Candle{
			Timestamp: time.UnixMilli(int64(raw[0].(float64))).UTC(),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			Platform:  platform,
		}
		if len(raw) > 9 {
			// Taker buy base volume is reported; the sell side is the
			// remainder of total volume.
			buy := parseFloat(raw[9])
			sell := c.Volume - buy
			if sell < 0 {
				sell = 0
			}
			c.TakerBuyVolume = market.Float64(buy)
			c.TakerSellVolume = market.Float64(sell)
		}
		if len(raw) > 7 {
			c.QuoteVolume = market.Float64(parseFloat(raw[7]))
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// Trades fetches the most recent public trades for a symbol.
func (s *RESTSource) Trades(ctx context.Context, platform, symbol string, limit int) ([]market.Trade, error) {
	ep, ok := s.endpoints[platform]
	if !ok {
		return nil, fmt.Errorf("platform %s has no configured endpoint", platform)
	}
	path := ep.TradePath
	if path == "" {
		path = "/api/v3/trades"
	}

	params := url.Values{}
	params.Set("symbol", restSymbol(symbol))
	params.Set("limit", strconv.Itoa(limit))

	body, err := s.get(ctx, ep.BaseURL+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch trades %s %s: %w", platform, symbol, err)
	}

	var raw []struct {
		Price        float64 `json:"price,string"`
		Qty          float64 `json:"qty,string"`
		QuoteQty     float64 `json:"quoteQty,string"`
		Time         int64   `json:"time"`
		IsBuyerMaker bool    `json:"isBuyerMaker"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse trades: %w", err)
	}

	trades := make([]market.Trade, len(raw))
	for i, t := range raw {
		// Buyer-maker means the taker hit the bid, so the aggressor sold.
		side := "buy"
		if t.IsBuyerMaker {
			side = "sell"
		}
		trades[i] = market.Trade{
			Timestamp: time.UnixMilli(t.Time).UTC(),
			Symbol:    symbol,
			Side:      side,
			Price:     t.Price,
			Amount:    t.Qty,
			Cost:      t.QuoteQty,
			Platform:  platform,
		}
	}
	return trades, nil
}

func (s *RESTSource) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// restSymbol flattens "BTC/USDT" to the exchange's "BTCUSDT" form.
func restSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}
