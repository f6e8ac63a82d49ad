package market

import "time"

// Resample aggregates fine-grained candles (typically 1m) into buckets of
// the given interval. Candles must be in ascending time order. OHLC follows
// first/max/min/last, volumes are summed. A bucket's taker split is known
// only when every source bar in it is known; one unknown bar makes the
// whole bucket unknown.
func Resample(candles []Candle, interval time.Duration) []Candle {
	if len(candles) == 0 || interval <= 0 {
		return nil
	}

	var out []Candle
	var cur *Candle
	var bucket time.Time
	flowKnown := false
	var buySum, sellSum, quoteSum float64
	quoteKnown := false

	flush := func() {
		if cur == nil {
			return
		}
		if flowKnown {
			cur.TakerBuyVolume = Float64(buySum)
			cur.TakerSellVolume = Float64(sellSum)
		}
		if quoteKnown {
			cur.QuoteVolume = Float64(quoteSum)
		}
		out = append(out, *cur)
	}

	for _, c := range candles {
		b := c.Timestamp.Truncate(interval)
		if cur == nil || !b.Equal(bucket) {
			flush()
			bucket = b
			cc := Candle{
				Timestamp:  b,
				Open:       c.Open,
				High:       c.High,
				Low:        c.Low,
				Close:      c.Close,
				Volume:     c.Volume,
				FlowApprox: c.FlowApprox,
				Platform:   c.Platform,
			}
			cur = &cc
			flowKnown = c.HasFlow()
			buySum, sellSum = 0, 0
			if flowKnown {
				buySum = *c.TakerBuyVolume
				sellSum = *c.TakerSellVolume
			}
			quoteKnown = c.QuoteVolume != nil
			quoteSum = 0
			if quoteKnown {
				quoteSum = *c.QuoteVolume
			}
			continue
		}

		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
		cur.FlowApprox = cur.FlowApprox || c.FlowApprox
		if flowKnown && c.HasFlow() {
			buySum += *c.TakerBuyVolume
			sellSum += *c.TakerSellVolume
		} else {
			flowKnown = false
		}
		if quoteKnown && c.QuoteVolume != nil {
			quoteSum += *c.QuoteVolume
		} else {
			quoteKnown = false
		}
	}
	flush()

	return out
}

// SliceUpTo returns the prefix of candles whose timestamp is at or before t.
// Candles must be in ascending time order. Backtests use this to build
// higher-timeframe views that cannot see past the bar being replayed.
func SliceUpTo(candles []Candle, t time.Time) []Candle {
	n := len(candles)
	for n > 0 && candles[n-1].Timestamp.After(t) {
		n--
	}
	return candles[:n]
}

// Closes extracts the close series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// LastN returns the trailing n candles (all of them when fewer exist).
func LastN(candles []Candle, n int) []Candle {
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}
