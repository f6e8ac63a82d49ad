package regime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/market"
)

func trendSeries(n int, start, step float64) []market.Candle {
	candles := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		close := start + step*float64(i)
		candles[i] = market.Candle{Open: close, High: close, Low: close, Close: close}
	}
	return candles
}

func TestClassify(t *testing.T) {
	if got := Classify(trendSeries(80, 100, 1)); got != Bull {
		t.Errorf("rising series = %s, want BULL", got)
	}
	if got := Classify(trendSeries(80, 200, -1)); got != Bear {
		t.Errorf("falling series = %s, want BEAR", got)
	}
	if got := Classify(trendSeries(30, 100, 1)); got != Neutral {
		t.Errorf("short series = %s, want NEUTRAL", got)
	}
}

func TestClassifyNeutralBuckets(t *testing.T) {
	// Long rise then a sharp pullback below the fast MA: price under MA20
	// but still above MA60.
	candles := trendSeries(80, 100, 1)
	last := &candles[79]
	last.Close = candles[70].Close - 5
	got := Classify(candles)
	if got != NeutralBull && got != Bear {
		// The exact bucket depends on how far the pullback goes; it must
		// at least not read as a fresh BULL.
		t.Errorf("pullback series = %s, want a non-BULL bucket", got)
	}
}

func TestShortBias(t *testing.T) {
	for r, want := range map[Regime]bool{
		Bull: false, NeutralBull: false, Neutral: false,
		Bear: true, NeutralBear: true,
	} {
		if r.ShortBias() != want {
			t.Errorf("%s.ShortBias() = %v, want %v", r, !want, want)
		}
	}
}

func TestClassifierCacheAndStaleFallback(t *testing.T) {
	calls := 0
	var fail bool
	fetch := func(ctx context.Context) ([]market.Candle, error) {
		calls++
		if fail {
			return nil, errors.New("upstream down")
		}
		return trendSeries(80, 100, 1), nil
	}

	c := NewClassifier(fetch, 5*time.Minute, zerolog.Nop())
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	if got := c.Regime(context.Background()); got != Bull {
		t.Fatalf("first classification = %s, want BULL", got)
	}
	if got := c.Regime(context.Background()); got != Bull {
		t.Fatalf("cached classification = %s, want BULL", got)
	}
	if calls != 1 {
		t.Errorf("fetch should be called once within the TTL, got %d", calls)
	}

	// Expire the cache and break the fetch: the stale value is served.
	c.now = func() time.Time { return base.Add(10 * time.Minute) }
	fail = true
	if got := c.Regime(context.Background()); got != Bull {
		t.Errorf("stale fallback = %s, want BULL", got)
	}
}

func TestClassifierFailureWithoutHistory(t *testing.T) {
	fetch := func(ctx context.Context) ([]market.Candle, error) {
		return nil, errors.New("upstream down")
	}
	c := NewClassifier(fetch, 5*time.Minute, zerolog.Nop())

	if got := c.Regime(context.Background()); got != Neutral {
		t.Errorf("failure with no history = %s, want NEUTRAL", got)
	}
}
