// Package state holds the small pieces of mutable per-symbol state shared
// between monitor cycles: analyzer cooldowns, the strategy engine's last
// action time, and consensus streaks. Keys are (scope, symbol) pairs so
// detectors never collide on the same symbol.
package state

import "time"

// Streak tracks how many consecutive evaluations agreed on a consensus
// direction.
type Streak struct {
	Direction string
	Count     int
}

// Store is the keyed state shared by analyzers and the strategy engine.
// Implementations must be safe for concurrent use.
type Store interface {
	// LastTrigger returns when the given scope last fired for symbol.
	LastTrigger(scope, symbol string) (time.Time, bool)
	SetLastTrigger(scope, symbol string, t time.Time)

	Streak(symbol string) Streak
	SetStreak(symbol string, s Streak)
}
