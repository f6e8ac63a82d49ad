package signal

import "time"

// Type identifies which detector produced a signal.
type Type string

const (
	TypeVolumeSpike         Type = "VOLUME_SPIKE"
	TypeEarlyPump           Type = "EARLY_PUMP"
	TypePanicDump           Type = "PANIC_DUMP"
	TypeSteadyGrowth        Type = "STEADY_GROWTH"
	TypeGlobalSyncBullish   Type = "GLOBAL_SYNC_BULLISH"
	TypeGlobalSyncBearish   Type = "GLOBAL_SYNC_BEARISH"
	TypeInstitutionalAccum  Type = "US_INSTITUTIONAL_ACCUMULATION"
	TypeSinglePlatformTrap  Type = "SINGLE_PLATFORM_TRAP"
	TypeWhaleTrade          Type = "WHALE_TRADE"
)

// Grade ranks signal quality from C (observational) to A+ (strongest).
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeBPlus Grade = "B+"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
)

// Rank returns the grade's position in the quality ordering, higher is
// better. Unknown grades rank below C.
func (g Grade) Rank() int {
	switch g {
	case GradeAPlus:
		return 5
	case GradeA:
		return 4
	case GradeBPlus:
		return 3
	case GradeB:
		return 2
	case GradeC:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether g is the same grade as other or better.
func (g Grade) AtLeast(other Grade) bool {
	return g.Rank() >= other.Rank()
}

// Suggestion is an optional trade plan attached to a signal.
type Suggestion struct {
	Side       string // "LONG" or "SHORT"
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	RiskReward float64
	ATR        float64
}

// Signal is a graded detection emitted by a pattern analyzer or the
// consensus aggregator.
type Signal struct {
	Type        Type
	Grade       Grade
	Symbol      string
	Platform    string
	Timestamp   time.Time
	Description string
	// Fields carries the numeric evidence behind the detection
	// (ratios, percentages, flows) for logging and persistence.
	Fields     map[string]float64
	Suggestion *Suggestion
}
