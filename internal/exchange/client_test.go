package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			http.Error(w, "bad symbol", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`[
			[1709251200000,"100.0","101.0","99.0","100.5","4000","1709251499999","402000","120","3000","301500","0"],
			[1709251500000,"100.5","102.0","100.0","101.5","5000","1709251799999","505000","150","2000","202000","0"]
		]`))
	})
	mux.HandleFunc("/api/v3/trades", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":1,"price":"100.5","qty":"3000","quoteQty":"301500","time":1709251300000,"isBuyerMaker":false},
			{"id":2,"price":"100.4","qty":"10","quoteQty":"1004","time":1709251310000,"isBuyerMaker":true}
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCandlesParsesKlinesWithTakerSplit(t *testing.T) {
	srv := testServer(t)
	source := NewRESTSource(map[string]Endpoint{"binance": {BaseURL: srv.URL}}, zerolog.Nop())

	candles, err := source.Candles(context.Background(), "binance", "BTC/USDT", "5m", 2)
	if err != nil {
		t.Fatalf("Candles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}

	first := candles[0]
	if first.Open != 100.0 || first.Close != 100.5 || first.Volume != 4000 {
		t.Errorf("unexpected OHLCV: %+v", first)
	}
	if !first.HasFlow() {
		t.Fatal("kline with taker field should carry a flow split")
	}
	if *first.TakerBuyVolume != 3000 || *first.TakerSellVolume != 1000 {
		t.Errorf("taker split = %v/%v, want 3000/1000", *first.TakerBuyVolume, *first.TakerSellVolume)
	}
	if first.Platform != "binance" {
		t.Errorf("platform = %q", first.Platform)
	}
}

func TestTradesMapsBuyerMakerToSellSide(t *testing.T) {
	srv := testServer(t)
	source := NewRESTSource(map[string]Endpoint{"binance": {BaseURL: srv.URL}}, zerolog.Nop())

	trades, err := source.Trades(context.Background(), "binance", "BTC/USDT", 10)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].Side != "buy" || trades[1].Side != "sell" {
		t.Errorf("sides = %s/%s, want buy/sell", trades[0].Side, trades[1].Side)
	}
	if trades[0].Notional() != 301500 {
		t.Errorf("notional = %v, want 301500", trades[0].Notional())
	}
}

func TestUnknownPlatformRejected(t *testing.T) {
	source := NewRESTSource(nil, zerolog.Nop())
	if _, err := source.Candles(context.Background(), "kraken", "BTC/USDT", "5m", 10); err == nil {
		t.Fatal("expected error for unconfigured platform")
	}
}
