package risk

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/indicators"
)

// TestCalculateBasicSizing tests the risk budget divided by stop distance
func TestCalculateBasicSizing(t *testing.T) {
	s := NewSizer(DefaultConfig(), zerolog.Nop())

	// 10000 * 2% = 200 risk, stop distance 2 -> 100 units, but notional
	// 100*100 = 10000 caps at 2000 -> 20 units risking 40.
	p, err := s.Calculate("BTC/USDT", "LONG", 100, 98, 104, indicators.VolatilityNormal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(p.Size-20) > 1e-9 {
		t.Errorf("size = %f, want 20 (notional-capped)", p.Size)
	}
	if math.Abs(p.NotionalUSD-2000) > 1e-9 {
		t.Errorf("notional = %f, want 2000", p.NotionalUSD)
	}
	if math.Abs(p.RiskUSD-40) > 1e-9 {
		t.Errorf("risk shrinks proportionally with the cap: got %f, want 40", p.RiskUSD)
	}
	if math.Abs(p.RiskReward-2) > 1e-9 {
		t.Errorf("risk/reward = %f, want 2", p.RiskReward)
	}
}

// TestCalculateUncapped tests sizing below the notional cap
func TestCalculateUncapped(t *testing.T) {
	s := NewSizer(DefaultConfig(), zerolog.Nop())

	// Stop distance 20 -> 10 units -> notional 1000, under the cap.
	p, err := s.Calculate("BTC/USDT", "LONG", 100, 80, 0, indicators.VolatilityNormal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(p.Size-10) > 1e-9 {
		t.Errorf("size = %f, want 10", p.Size)
	}
	if math.Abs(p.RiskUSD-200) > 1e-9 {
		t.Errorf("risk = %f, want the full 200 budget", p.RiskUSD)
	}
	if p.RiskReward != 0 {
		t.Errorf("no take profit should mean risk/reward 0, got %f", p.RiskReward)
	}
}

// TestVolatilityMultiplier tests LOW leans in and HIGH halves the budget
func TestVolatilityMultiplier(t *testing.T) {
	s := NewSizer(DefaultConfig(), zerolog.Nop())

	low, err := s.Calculate("A/USDT", "LONG", 100, 80, 0, indicators.VolatilityLow)
	if err != nil {
		t.Fatal(err)
	}
	high, err := s.Calculate("A/USDT", "LONG", 100, 80, 0, indicators.VolatilityHigh)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(low.RiskUSD-240) > 1e-9 {
		t.Errorf("LOW risk = %f, want 240 (1.2x)", low.RiskUSD)
	}
	if math.Abs(high.RiskUSD-100) > 1e-9 {
		t.Errorf("HIGH risk = %f, want 100 (0.5x)", high.RiskUSD)
	}
}

// TestMaxPositionsRejectsNewSymbolOnly tests the budget rejects new
// symbols at the limit but allows re-sizing a held one
func TestMaxPositionsRejectsNewSymbolOnly(t *testing.T) {
	s := NewSizer(DefaultConfig(), zerolog.Nop())

	for i := 0; i < 5; i++ {
		sym := fmt.Sprintf("COIN%d/USDT", i)
		p, err := s.Calculate(sym, "LONG", 100, 90, 0, indicators.VolatilityNormal)
		if err != nil {
			t.Fatal(err)
		}
		s.Open(p)
	}

	if _, err := s.Calculate("NEW/USDT", "LONG", 100, 90, 0, indicators.VolatilityNormal); !errors.Is(err, ErrMaxPositions) {
		t.Errorf("new symbol at the limit should be rejected, got %v", err)
	}
	if _, err := s.Calculate("COIN0/USDT", "LONG", 100, 90, 0, indicators.VolatilityNormal); err != nil {
		t.Errorf("held symbol should still size at the limit, got %v", err)
	}

	s.Close("COIN0/USDT")
	if _, err := s.Calculate("NEW/USDT", "LONG", 100, 90, 0, indicators.VolatilityNormal); err != nil {
		t.Errorf("freed slot should admit a new symbol, got %v", err)
	}
	if s.OpenCount() != 4 {
		t.Errorf("open count = %d, want 4", s.OpenCount())
	}
}

// TestInvalidStopDistance tests zero and inverted stops are rejected
func TestInvalidStopDistance(t *testing.T) {
	s := NewSizer(DefaultConfig(), zerolog.Nop())

	if _, err := s.Calculate("BTC/USDT", "LONG", 100, 100, 0, indicators.VolatilityNormal); !errors.Is(err, ErrInvalidStop) {
		t.Errorf("zero stop distance should be rejected, got %v", err)
	}
	if _, err := s.Calculate("BTC/USDT", "LONG", 0, 10, 0, indicators.VolatilityNormal); !errors.Is(err, ErrInvalidStop) {
		t.Errorf("non-positive entry should be rejected, got %v", err)
	}
}

// TestTotalExposure tests the notional sum across open positions
func TestTotalExposure(t *testing.T) {
	s := NewSizer(DefaultConfig(), zerolog.Nop())

	a, _ := s.Calculate("A/USDT", "LONG", 100, 80, 0, indicators.VolatilityNormal)
	b, _ := s.Calculate("B/USDT", "SHORT", 50, 60, 0, indicators.VolatilityNormal)
	s.Open(a)
	s.Open(b)

	want := a.NotionalUSD + b.NotionalUSD
	if got := s.TotalExposureUSD(); math.Abs(got-want) > 1e-9 {
		t.Errorf("total exposure = %f, want %f", got, want)
	}
}
