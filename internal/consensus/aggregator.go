// Package consensus combines per-platform flow metrics into a single
// market read and the cross-platform signals that depend on seeing more
// than one venue at once.
package consensus

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/flow"
	"flow-signal-bot/internal/signal"
)

// Direction is the aggregate flow direction across platforms.
type Direction string

const (
	DirectionBullish Direction = "BULLISH"
	DirectionBearish Direction = "BEARISH"
	DirectionNeutral Direction = "NEUTRAL"
)

// TrendHint is the higher-timeframe trend passed in as a gate for the
// sync signals.
type TrendHint int

const (
	TrendUnknown TrendHint = iota
	TrendUp
	TrendDown
)

// Config configures the consensus aggregator.
type Config struct {
	// MinPlatforms is how many platforms must report flow before any
	// cross-platform claim is made.
	MinPlatforms int
	// SyncRatioFloor is the buy/sell ratio every platform must clear for
	// a global sync signal.
	SyncRatioFloor float64
	// Deadband ignores flows this close to zero when counting platform
	// direction votes, USD.
	Deadband float64
	// LeanThreshold is the total net flow beyond which a mixed picture
	// still leans one way, USD.
	LeanThreshold float64

	InstitutionalPlatform string
	InstitutionalFactor   float64
	InstitutionalFloor    float64

	TrapPrimary   string
	TrapReference string

	EnableGlobalSyncBearish bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinPlatforms:            2,
		SyncRatioFloor:          1.15,
		Deadband:                1000,
		LeanThreshold:           50_000_000,
		InstitutionalPlatform:   "coinbase",
		InstitutionalFactor:     1.5,
		InstitutionalFloor:      1_000_000,
		TrapPrimary:             "binance",
		TrapReference:           "coinbase",
		EnableGlobalSyncBearish: false,
	}
}

// Consensus is the aggregate flow picture across platforms.
type Consensus struct {
	Direction         Direction
	Label             string
	TotalFlowUSD      float64
	PositivePlatforms int
	NegativePlatforms int
	ValidPlatforms    int
}

// Aggregator builds consensus and cross-platform signals from the
// per-platform metrics of one symbol.
type Aggregator struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time
}

// NewAggregator creates a consensus aggregator.
func NewAggregator(cfg Config, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		cfg: cfg,
		log: log.With().Str("component", "consensus").Logger(),
		now: time.Now,
	}
}

// Consensus summarizes the per-platform metrics into a direction and a
// human-readable label. Platforms inside the deadband vote neither way.
func (a *Aggregator) Consensus(metrics map[string]flow.Metrics) Consensus {
	c := Consensus{Direction: DirectionNeutral, ValidPlatforms: len(metrics)}
	if len(metrics) == 0 {
		c.Label = "no flow data"
		return c
	}

	for _, m := range metrics {
		c.TotalFlowUSD += m.NetFlowUSD
		if m.NetFlowUSD > a.cfg.Deadband {
			c.PositivePlatforms++
		} else if m.NetFlowUSD < -a.cfg.Deadband {
			c.NegativePlatforms++
		}
	}

	switch {
	case c.PositivePlatforms == c.ValidPlatforms && c.ValidPlatforms >= a.cfg.MinPlatforms:
		c.Direction = DirectionBullish
		c.Label = fmt.Sprintf("strongly bullish: all %d platforms net inflow", c.ValidPlatforms)
	case c.NegativePlatforms == c.ValidPlatforms && c.ValidPlatforms >= a.cfg.MinPlatforms:
		c.Direction = DirectionBearish
		c.Label = fmt.Sprintf("strongly bearish: all %d platforms net outflow", c.ValidPlatforms)
	case c.TotalFlowUSD > a.cfg.LeanThreshold:
		c.Direction = DirectionBullish
		c.Label = "mixed, leaning bullish on total flow"
	case c.TotalFlowUSD < -a.cfg.LeanThreshold:
		c.Direction = DirectionBearish
		c.Label = "mixed, leaning bearish on total flow"
	default:
		c.Label = "mixed flows, no consensus"
	}

	return c
}

// Signals emits the cross-platform detections. connected is how many
// platforms the monitor is wired to: global sync requires every one of
// them to have reported, not just the ones that happened to answer.
func (a *Aggregator) Signals(symbol string, metrics map[string]flow.Metrics, connected int, htf TrendHint) []signal.Signal {
	var out []signal.Signal
	now := a.now()

	if s := a.globalSync(symbol, metrics, connected, htf, now); s != nil {
		out = append(out, *s)
	}
	if s := a.institutionalAccumulation(symbol, metrics, now); s != nil {
		out = append(out, *s)
	}
	if s := a.singlePlatformTrap(symbol, metrics, now); s != nil {
		out = append(out, *s)
	}

	return out
}

func (a *Aggregator) globalSync(symbol string, metrics map[string]flow.Metrics, connected int, htf TrendHint, now time.Time) *signal.Signal {
	if connected < a.cfg.MinPlatforms || len(metrics) != connected {
		return nil
	}

	allBuying, allSelling := true, true
	total := 0.0
	for _, m := range metrics {
		total += m.NetFlowUSD
		if m.NetFlowUSD <= 0 || m.BuySellRatio <= a.cfg.SyncRatioFloor {
			allBuying = false
		}
		if m.NetFlowUSD >= 0 || m.BuySellRatio >= 1/a.cfg.SyncRatioFloor {
			allSelling = false
		}
	}

	if allBuying && htf != TrendDown {
		a.log.Info().Str("symbol", symbol).Float64("total_flow", total).Int("platforms", connected).Msg("global sync bullish")
		return &signal.Signal{
			Type:      signal.TypeGlobalSyncBullish,
			Grade:     signal.GradeAPlus,
			Symbol:    symbol,
			Timestamp: now,
			Description: fmt.Sprintf("all %d platforms buying, total net inflow $%.0f", connected, total),
			Fields: map[string]float64{
				"total_flow_usd": total,
				"platforms":      float64(connected),
			},
		}
	}

	if allSelling && a.cfg.EnableGlobalSyncBearish && htf != TrendUp {
		a.log.Info().Str("symbol", symbol).Float64("total_flow", total).Int("platforms", connected).Msg("global sync bearish")
		return &signal.Signal{
			Type:      signal.TypeGlobalSyncBearish,
			Grade:     signal.GradeAPlus,
			Symbol:    symbol,
			Timestamp: now,
			Description: fmt.Sprintf("all %d platforms selling, total net outflow $%.0f", connected, total),
			Fields: map[string]float64{
				"total_flow_usd": total,
				"platforms":      float64(connected),
			},
		}
	}

	return nil
}

// institutionalAccumulation fires when the designated institutional venue
// is buying far harder than the rest of the market.
func (a *Aggregator) institutionalAccumulation(symbol string, metrics map[string]flow.Metrics, now time.Time) *signal.Signal {
	inst, ok := metrics[a.cfg.InstitutionalPlatform]
	if !ok || len(metrics) < 2 {
		return nil
	}
	if inst.NetFlowUSD < a.cfg.InstitutionalFloor {
		return nil
	}

	var othersSum float64
	others := 0
	for name, m := range metrics {
		if name == a.cfg.InstitutionalPlatform {
			continue
		}
		othersSum += m.NetFlowUSD
		others++
	}
	othersAvg := othersSum / float64(others)
	if othersAvg > 0 && inst.NetFlowUSD <= othersAvg*a.cfg.InstitutionalFactor {
		return nil
	}

	a.log.Info().Str("symbol", symbol).Float64("inst_flow", inst.NetFlowUSD).Float64("others_avg", othersAvg).Msg("institutional accumulation")
	return &signal.Signal{
		Type:      signal.TypeInstitutionalAccum,
		Grade:     signal.GradeA,
		Symbol:    symbol,
		Platform:  a.cfg.InstitutionalPlatform,
		Timestamp: now,
		Description: fmt.Sprintf("%s net inflow $%.0f vs $%.0f average elsewhere",
			a.cfg.InstitutionalPlatform, inst.NetFlowUSD, othersAvg),
		Fields: map[string]float64{
			"institutional_flow_usd": inst.NetFlowUSD,
			"others_avg_flow_usd":    othersAvg,
		},
	}
}

// singlePlatformTrap warns when the primary venue is buying while the
// reference venue is distributing: retail chasing on one exchange while
// another sells into it.
func (a *Aggregator) singlePlatformTrap(symbol string, metrics map[string]flow.Metrics, now time.Time) *signal.Signal {
	primary, okP := metrics[a.cfg.TrapPrimary]
	reference, okR := metrics[a.cfg.TrapReference]
	if !okP || !okR {
		return nil
	}
	if primary.NetFlowUSD <= a.cfg.Deadband || reference.NetFlowUSD >= -a.cfg.Deadband {
		return nil
	}

	a.log.Info().Str("symbol", symbol).Float64("primary_flow", primary.NetFlowUSD).Float64("reference_flow", reference.NetFlowUSD).Msg("single platform trap")
	return &signal.Signal{
		Type:      signal.TypeSinglePlatformTrap,
		Grade:     signal.GradeC,
		Symbol:    symbol,
		Timestamp: now,
		Description: fmt.Sprintf("%s buying ($%.0f) while %s sells ($%.0f)",
			a.cfg.TrapPrimary, primary.NetFlowUSD, a.cfg.TrapReference, reference.NetFlowUSD),
		Fields: map[string]float64{
			"primary_flow_usd":   primary.NetFlowUSD,
			"reference_flow_usd": reference.NetFlowUSD,
		},
	}
}

// MedianPrice returns the median current price across platforms, 0 when
// there are none. Used by the strategy engine so one bad feed cannot
// drag the aggregate price.
func MedianPrice(metrics map[string]flow.Metrics) float64 {
	if len(metrics) == 0 {
		return 0
	}
	prices := make([]float64, 0, len(metrics))
	for _, m := range metrics {
		prices = append(prices, m.CurrentPrice)
	}
	sort.Float64s(prices)
	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return prices[mid]
	}
	return (prices[mid-1] + prices[mid]) / 2
}

// AverageFiniteRatio returns the mean buy/sell ratio across platforms,
// skipping the +Inf all-buy sentinel. ok is false when no finite ratio
// exists.
func AverageFiniteRatio(metrics map[string]flow.Metrics) (float64, bool) {
	sum, n := 0.0, 0
	for _, m := range metrics {
		if math.IsInf(m.BuySellRatio, 0) {
			continue
		}
		sum += m.BuySellRatio
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
