// Package regime classifies the broad market (BTC by convention) into
// bull/bear buckets that gate the short side of the strategy.
package regime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/indicators"
	"flow-signal-bot/internal/market"
)

// Regime is the broad market state.
type Regime string

const (
	Bull        Regime = "BULL"
	Bear        Regime = "BEAR"
	NeutralBull Regime = "NEUTRAL_BULL"
	NeutralBear Regime = "NEUTRAL_BEAR"
	Neutral     Regime = "NEUTRAL"
)

// ShortBias reports whether the regime permits opening shorts.
func (r Regime) ShortBias() bool {
	return r == Bear || r == NeutralBear
}

// Classify buckets the reference series by price vs the 20- and 60-bar
// MAs. Returns Neutral when there are not enough bars to compute them.
func Classify(candles []market.Candle) Regime {
	if len(candles) < 65 {
		return Neutral
	}
	closes := market.Closes(candles)
	price := closes[len(closes)-1]
	ma20 := indicators.SMA(closes, 20)
	ma60 := indicators.SMA(closes, 60)

	switch {
	case price > ma20 && ma20 > ma60:
		return Bull
	case price < ma20 && ma20 < ma60:
		return Bear
	case price > ma60:
		return NeutralBull
	case price < ma60:
		return NeutralBear
	default:
		return Neutral
	}
}

// Fetcher supplies the reference symbol's candle series.
type Fetcher func(ctx context.Context) ([]market.Candle, error)

// Classifier caches the classified regime for a TTL and falls back to
// the last known value when the fetch fails. A fetch failure with no
// history classifies as Neutral, which blocks shorts but not longs.
type Classifier struct {
	fetch Fetcher
	ttl   time.Duration
	log   zerolog.Logger
	now   func() time.Time

	mu       sync.Mutex
	cached   Regime
	cachedAt time.Time
	hasCache bool
}

// NewClassifier creates a regime classifier with the given cache TTL.
func NewClassifier(fetch Fetcher, ttl time.Duration, log zerolog.Logger) *Classifier {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Classifier{
		fetch: fetch,
		ttl:   ttl,
		log:   log.With().Str("component", "regime").Logger(),
		now:   time.Now,
	}
}

// Regime returns the current market regime, served from cache within the
// TTL.
func (c *Classifier) Regime(ctx context.Context) Regime {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.hasCache && now.Sub(c.cachedAt) < c.ttl {
		return c.cached
	}

	candles, err := c.fetch(ctx)
	if err != nil {
		if c.hasCache {
			c.log.Warn().Err(err).Str("stale", string(c.cached)).Msg("regime fetch failed, serving stale value")
			return c.cached
		}
		c.log.Warn().Err(err).Msg("regime fetch failed with no history, defaulting to NEUTRAL")
		return Neutral
	}

	c.cached = Classify(candles)
	c.cachedAt = now
	c.hasCache = true
	return c.cached
}
