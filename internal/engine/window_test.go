package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/Alias1177/Forecaster/models"
)

func kline(i int) models.KlineEvent {
	return models.KlineEvent{
		Symbol:    "BTC/USDT",
		Timeframe: "5m",
		Candle: models.Candle{
			Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute),
			Close:     float64(100 + i),
		},
	}
}

func TestWindowStoreAppend(t *testing.T) {
	s := NewWindowStore(3)

	for i := 0; i < 5; i++ {
		if !s.Append(kline(i)) {
			t.Fatalf("Append(%d) = false, want true", i)
		}
	}
	if s.Append(kline(4)) {
		t.Error("Append(duplicate) = true, want false")
	}
	if s.Append(kline(2)) {
		t.Error("Append(older) = true, want false")
	}

	got := s.Snapshot("BTC/USDT", "5m")
	if len(got) != 3 {
		t.Fatalf("Snapshot() len = %d, want 3", len(got))
	}
	for i, c := range got {
		if want := float64(102 + i); c.Close != want {
			t.Errorf("Snapshot()[%d].Close = %v, want %v", i, c.Close, want)
		}
	}
}

func TestWindowStoreSeed(t *testing.T) {
	s := NewWindowStore(100)
	candles := bars(120, rangeUp)
	s.Seed("BTC/USDT", "5m", candles)

	got := s.Snapshot("BTC/USDT", "5m")
	if len(got) != 100 {
		t.Fatalf("Snapshot() len = %d, want 100", len(got))
	}
	if !got[0].Timestamp.Equal(candles[20].Timestamp) {
		t.Errorf("first candle = %v, want %v", got[0].Timestamp, candles[20].Timestamp)
	}

	if s.Append(models.KlineEvent{Symbol: "BTC/USDT", Timeframe: "5m", Candle: candles[118]}) {
		t.Error("Append(seeded closed candle) = true, want false")
	}

	next := models.KlineEvent{Symbol: "BTC/USDT", Timeframe: "5m", Candle: candles[119]}
	next.Candle.Timestamp = candles[119].Timestamp.Add(5 * time.Minute)
	if !s.Append(next) {
		t.Error("Append(new candle) = false, want true")
	}
	if got := len(s.Snapshot("BTC/USDT", "5m")); got != 100 {
		t.Errorf("window len after append = %d, want 100", got)
	}
}

func TestWindowStoreSnapshotIsCopy(t *testing.T) {
	s := NewWindowStore(10)
	s.Append(kline(0))

	snap := s.Snapshot("BTC/USDT", "5m")
	snap[0].Close = -1
	if got := s.Snapshot("BTC/USDT", "5m")[0].Close; got != 100 {
		t.Errorf("stored Close = %v, want 100", got)
	}
	if s.Snapshot("ETH/USDT", "5m") != nil {
		t.Error("Snapshot(unknown) != nil")
	}
}

func TestWindowStoreConcurrent(t *testing.T) {
	s := NewWindowStore(100)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Append(kline(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if n := len(s.Snapshot("BTC/USDT", "5m")); n > 100 {
				t.Errorf("Snapshot() len = %d, want <= 100", n)
				return
			}
		}
	}()
	wg.Wait()

	if got := len(s.Snapshot("BTC/USDT", "5m")); got != 100 {
		t.Errorf("final len = %d, want 100", got)
	}
}

func TestWindowStoreSeedFormingBar(t *testing.T) {
	s := NewWindowStore(10)
	seeded := []models.Candle{kline(0).Candle, kline(1).Candle, kline(2).Candle}
	seeded[2].Close = 999 // still forming when fetched
	s.Seed("BTC/USDT", "5m", seeded)

	if !s.Append(kline(2)) {
		t.Fatal("Append(closed kline for forming bar) = false, want true")
	}
	got := s.Snapshot("BTC/USDT", "5m")
	if len(got) != 3 {
		t.Fatalf("Snapshot() len = %d, want 3", len(got))
	}
	if got[2].Close != 102 {
		t.Errorf("last Close = %v, want closed value 102", got[2].Close)
	}

	if s.Append(kline(2)) {
		t.Error("Append(repeat of closed bar) = true, want false")
	}
	if s.Append(kline(1)) {
		t.Error("Append(seeded bar) = true, want false")
	}
	if !s.Append(kline(3)) {
		t.Error("Append(next bar) = false, want true")
	}
}
