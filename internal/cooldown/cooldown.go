package cooldown

import (
	"context"
	"sync"
	"time"
)

// Tracker remembers when each symbol last produced a signal
type Tracker interface {
	LastSignal(ctx context.Context, symbol string) (time.Time, bool, error)
	Record(ctx context.Context, symbol string, at time.Time) error
}

// Active reports whether symbol signalled less than interval before now
func Active(ctx context.Context, tr Tracker, symbol string, now time.Time, interval time.Duration) (bool, error) {
	last, ok, err := tr.LastSignal(ctx, symbol)
	if err != nil || !ok {
		return false, err
	}
	return now.Sub(last) < interval, nil
}

// MemoryTracker is a process-local tracker. Last write wins per symbol.
type MemoryTracker struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewMemoryTracker creates an empty tracker
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{last: make(map[string]time.Time)}
}

// LastSignal returns the recorded time for symbol
func (m *MemoryTracker) LastSignal(_ context.Context, symbol string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.last[symbol]
	return t, ok, nil
}

// Record stores at for symbol
func (m *MemoryTracker) Record(_ context.Context, symbol string, at time.Time) error {
	m.mu.Lock()
	m.last[symbol] = at
	m.mu.Unlock()
	return nil
}
