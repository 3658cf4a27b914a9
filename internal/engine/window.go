package engine

import (
	"sync"

	"github.com/Alias1177/Forecaster/models"
)

// seenLimit bounds the per-window set of delivered timestamps
const seenLimit = 100

type windowKey struct {
	symbol    string
	timeframe string
}

type window struct {
	candles []models.Candle
	seen    map[int64]struct{}
	order   []int64
	// forming is set while the last candle came from REST and may still be open
	forming bool
}

// WindowStore holds the most recent candles per (symbol, timeframe).
// Appends and snapshots are atomic with respect to each other.
type WindowStore struct {
	mu      sync.RWMutex
	size    int
	windows map[windowKey]*window
}

// NewWindowStore keeps at most size candles per window
func NewWindowStore(size int) *WindowStore {
	return &WindowStore{
		size:    size,
		windows: make(map[windowKey]*window),
	}
}

// Seed replaces a window with candles fetched over REST. The last of them
// may still be forming, so the closed kline for that bar replaces it.
func (s *WindowStore) Seed(symbol, timeframe string, candles []models.Candle) {
	if len(candles) > s.size {
		candles = candles[len(candles)-s.size:]
	}
	w := &window{
		candles: append([]models.Candle(nil), candles...),
		seen:    make(map[int64]struct{}, seenLimit),
		forming: len(candles) > 0,
	}
	for i, c := range w.candles {
		if i == len(w.candles)-1 {
			break
		}
		w.markSeen(c.Timestamp.UnixMilli())
	}

	s.mu.Lock()
	s.windows[windowKey{symbol, timeframe}] = w
	s.mu.Unlock()
}

// Append adds a streamed candle. A candle for the seeded, possibly forming
// last bar replaces it. Duplicates and candles older than the window's last
// bar are dropped and reported as false.
func (s *WindowStore) Append(ev models.KlineEvent) bool {
	ts := ev.Candle.Timestamp.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := windowKey{ev.Symbol, ev.Timeframe}
	w, ok := s.windows[key]
	if !ok {
		w = &window{seen: make(map[int64]struct{}, seenLimit)}
		s.windows[key] = w
	}

	if _, dup := w.seen[ts]; dup {
		return false
	}
	n := len(w.candles)
	if w.forming && n > 0 && ev.Candle.Timestamp.Equal(w.candles[n-1].Timestamp) {
		w.markSeen(ts)
		w.candles[n-1] = ev.Candle
		w.forming = false
		return true
	}
	if n > 0 && !ev.Candle.Timestamp.After(w.candles[n-1].Timestamp) {
		return false
	}

	w.markSeen(ts)
	w.forming = false
	w.candles = append(w.candles, ev.Candle)
	if len(w.candles) > s.size {
		w.candles = append(w.candles[:0:0], w.candles[len(w.candles)-s.size:]...)
	}
	return true
}

// Snapshot returns a copy of the window, oldest first
func (s *WindowStore) Snapshot(symbol, timeframe string) []models.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[windowKey{symbol, timeframe}]
	if !ok {
		return nil
	}
	return append([]models.Candle(nil), w.candles...)
}

func (w *window) markSeen(ts int64) {
	if _, ok := w.seen[ts]; ok {
		return
	}
	w.seen[ts] = struct{}{}
	w.order = append(w.order, ts)
	if len(w.order) > seenLimit {
		delete(w.seen, w.order[0])
		w.order = w.order[1:]
	}
}
