package state

import (
	"sync"
	"time"
)

// MemoryStore is the in-process Store used by single-instance deployments
// and by backtests, which need fully isolated state per run.
type MemoryStore struct {
	mu       sync.RWMutex
	triggers map[string]time.Time
	streaks  map[string]Streak
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		triggers: make(map[string]time.Time),
		streaks:  make(map[string]Streak),
	}
}

func triggerKey(scope, symbol string) string {
	return scope + ":" + symbol
}

// LastTrigger returns when the given scope last fired for symbol.
func (m *MemoryStore) LastTrigger(scope, symbol string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.triggers[triggerKey(scope, symbol)]
	return t, ok
}

// SetLastTrigger records a trigger time for (scope, symbol).
func (m *MemoryStore) SetLastTrigger(scope, symbol string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers[triggerKey(scope, symbol)] = t
}

// Streak returns the stored consensus streak for symbol, zero when unset.
func (m *MemoryStore) Streak(symbol string) Streak {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.streaks[symbol]
}

// SetStreak stores the consensus streak for symbol.
func (m *MemoryStore) SetStreak(symbol string, s Streak) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaks[symbol] = s
}
