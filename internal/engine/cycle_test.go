package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Alias1177/Forecaster/models"
)

type recordingNotifier struct {
	mu      sync.Mutex
	signals []models.Signal
	err     error
}

func (r *recordingNotifier) Send(_ context.Context, s models.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
	return r.err
}

func (r *recordingNotifier) RecordSignal(ctx context.Context, s models.Signal) error {
	return r.Send(ctx, s)
}

func TestCycleTickSignalCap(t *testing.T) {
	f := newFixture(breakoutUp(), bars(100, trendUp))
	notifier := &recordingNotifier{}
	journal := &recordingNotifier{}
	c := NewCycle(f.engine, CycleOptions{
		Symbols:    []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"},
		Timeframes: []string{"5m"},
		MaxSignals: 2,
	}, notifier, journal, nil)

	report, err := c.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if report.Signals != 2 || report.Analyzed != 2 {
		t.Errorf("Tick() = %+v, want 2 analyzed and 2 signals", report)
	}
	if len(notifier.signals) != 2 || len(journal.signals) != 2 {
		t.Errorf("delivered %d notified, %d journaled, want 2 each", len(notifier.signals), len(journal.signals))
	}
	if _, ok, _ := f.cooldowns.LastSignal(context.Background(), "SOL/USDT"); ok {
		t.Error("symbol past the cap was analyzed")
	}
}

func TestCycleTickSkipsOtherTimeframesAfterSignal(t *testing.T) {
	f := newFixture(breakoutUp(), bars(100, trendUp))
	c := NewCycle(f.engine, CycleOptions{
		Symbols:    []string{"BTC/USDT"},
		Timeframes: []string{"5m", "1h"},
		MaxSignals: 10,
	}, &recordingNotifier{}, nil, nil)

	report, err := c.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if report.Analyzed != 1 || report.Signals != 1 {
		t.Errorf("Tick() = %+v, want 1 analyzed and 1 signal", report)
	}
	if f.market.fetches["1h"] != 0 {
		t.Errorf("1h fetched %d times after the symbol signalled", f.market.fetches["1h"])
	}
}

func TestCycleTickCountsOutcomes(t *testing.T) {
	f := newFixture(breakoutUp(), bars(100, trendUp))
	f.market.errs["1h"] = errors.New("timeout")
	notifier := &recordingNotifier{err: models.ErrTransportFailure}
	c := NewCycle(f.engine, CycleOptions{
		Symbols:    []string{"BTC/USDT"},
		Timeframes: []string{"1h", "4h", "5m"},
		MaxSignals: 10,
	}, notifier, nil, nil)

	report, err := c.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	want := CycleReport{Analyzed: 3, Signals: 1, Skipped: 1, Failed: 1}
	if report != want {
		t.Errorf("Tick() = %+v, want %+v", report, want)
	}
	if len(notifier.signals) != 1 {
		t.Errorf("notifier got %d signals, want 1 despite its error", len(notifier.signals))
	}
}

func TestCycleTickLowLiquidityHours(t *testing.T) {
	f := newFixture(breakoutUp(), bars(100, trendUp))
	f.engine.now = func() time.Time { return night }
	c := NewCycle(f.engine, CycleOptions{
		Symbols:    []string{"BTC/USDT"},
		Timeframes: []string{"5m"},
		MaxSignals: 10,
	}, &recordingNotifier{}, nil, nil)

	report, err := c.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if report != (CycleReport{}) {
		t.Errorf("Tick() = %+v, want empty report", report)
	}
	if f.market.fetches["5m"] != 0 {
		t.Error("market fetched during low liquidity hours")
	}
}

func TestCycleRunStopsOnCancel(t *testing.T) {
	f := newFixture(breakoutUp(), bars(100, trendUp))
	c := NewCycle(f.engine, CycleOptions{
		Symbols:    []string{"BTC/USDT"},
		Timeframes: []string{"5m"},
		MaxSignals: 10,
	}, &recordingNotifier{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx, time.Minute); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
}

func TestCycleHandleKline(t *testing.T) {
	f := newFixture(breakoutUp(), bars(100, trendUp))
	c := NewCycle(f.engine, CycleOptions{}, nil, nil, nil)

	c.HandleKline(kline(0))
	c.HandleKline(kline(0))
	c.HandleKline(kline(1))

	if got := len(f.windows.Snapshot("BTC/USDT", "5m")); got != 2 {
		t.Errorf("window len = %d, want 2", got)
	}
}
