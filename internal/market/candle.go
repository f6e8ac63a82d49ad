package market

import "time"

// Candle is the platform-neutral OHLCV bar every component consumes.
// Taker buy/sell volumes are optional: connectors that cannot split taker
// flow leave them nil, and downstream flow math skips those bars instead
// of treating the missing side as zero.
type Candle struct {
	Timestamp       time.Time
	Open            float64
	High            float64
	Low             float64
	Close           float64
	Volume          float64
	TakerBuyVolume  *float64
	TakerSellVolume *float64
	QuoteVolume     *float64
	// FlowApprox marks bars whose taker split was derived from a lossy
	// source mapping (e.g. quote volume reported as taker buy volume).
	FlowApprox bool
	Platform   string
}

// HasFlow reports whether the bar carries a usable taker buy/sell split.
func (c Candle) HasFlow() bool {
	return c.TakerBuyVolume != nil && c.TakerSellVolume != nil
}

// TakerBuyUSD returns the taker buy turnover in quote currency.
// ok is false when the split is unknown.
func (c Candle) TakerBuyUSD() (float64, bool) {
	if c.TakerBuyVolume == nil {
		return 0, false
	}
	return *c.TakerBuyVolume * c.Close, true
}

// TakerSellUSD returns the taker sell turnover in quote currency.
// ok is false when the split is unknown.
func (c Candle) TakerSellUSD() (float64, bool) {
	if c.TakerSellVolume == nil {
		return 0, false
	}
	return *c.TakerSellVolume * c.Close, true
}

// ChangePct returns the bar's open-to-close change in percent.
func (c Candle) ChangePct() float64 {
	if c.Open <= 0 {
		return 0
	}
	return (c.Close - c.Open) / c.Open * 100
}

// Float64 returns a pointer to v, for building candles with a known
// taker split.
func Float64(v float64) *float64 {
	return &v
}

// Trade is a single executed market trade, used by the whale watcher.
type Trade struct {
	Timestamp time.Time
	Symbol    string
	Side      string // "buy" or "sell"
	Price     float64
	Amount    float64
	Cost      float64
	Platform  string
}

// Notional returns the trade's quote-currency value.
func (t Trade) Notional() float64 {
	if t.Cost > 0 {
		return t.Cost
	}
	return t.Price * t.Amount
}
