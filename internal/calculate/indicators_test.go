package calculate

import (
	"math"
	"testing"
	"time"

	"github.com/Alias1177/Forecaster/models"
)

func TestBuildFeatures(t *testing.T) {
	tests := []struct {
		name     string
		candles  []models.Candle
		wantRows int
	}{
		{
			name:     "empty window",
			candles:  nil,
			wantRows: 0,
		},
		{
			name:     "49 candles",
			candles:  generateTestCandles(49, waveCandle),
			wantRows: 0,
		},
		{
			name:     "exactly 50 candles",
			candles:  generateTestCandles(50, waveCandle),
			wantRows: 1,
		},
		{
			name:     "100 candles",
			candles:  generateTestCandles(100, waveCandle),
			wantRows: 51,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := BuildFeatures(tt.candles)
			if len(rows) != tt.wantRows {
				t.Fatalf("BuildFeatures() returned %d rows, want %d", len(rows), tt.wantRows)
			}
			if got := RowsFor(len(tt.candles)); got != tt.wantRows {
				t.Errorf("RowsFor(%d) = %d, want %d", len(tt.candles), got, tt.wantRows)
			}
			for i, r := range rows {
				if !finite(r.Vector()) {
					t.Errorf("row %d has undefined features: %v", i, r.Vector())
				}
				if len(r.Vector()) != len(FeatureNames) {
					t.Errorf("row %d vector has %d values, want %d", i, len(r.Vector()), len(FeatureNames))
				}
			}
			if len(rows) > 0 {
				last := rows[len(rows)-1]
				if !last.Candle.Timestamp.Equal(tt.candles[len(tt.candles)-1].Timestamp) {
					t.Errorf("last row timestamp = %v, want latest candle", last.Candle.Timestamp)
				}
			}
		})
	}
}

func TestBuildFeaturesDropsZeroVolumePrefix(t *testing.T) {
	candles := generateTestCandles(80, func(i int) models.Candle {
		c := waveCandle(i)
		if i < 60 {
			c.Volume = 0
		}
		return c
	})
	rows := BuildFeatures(candles)
	for _, r := range rows {
		if math.IsNaN(r.VWAP) {
			t.Fatalf("VWAP is NaN at %v", r.Candle.Timestamp)
		}
		if r.Candle.Timestamp.Before(candles[60].Timestamp) {
			t.Errorf("row at %v should have been dropped", r.Candle.Timestamp)
		}
	}
}

func TestRollingReturnStdDev(t *testing.T) {
	closes := []float64{100, 101, 100, 102, 101}
	got := RollingReturnStdDev(closes, 2)

	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Errorf("leading values = %v, %v, want NaN", got[0], got[1])
	}

	r1 := 101.0/100 - 1
	r2 := 100.0/101 - 1
	mean := (r1 + r2) / 2
	want := math.Sqrt(((r1-mean)*(r1-mean) + (r2-mean)*(r2-mean)) / 1)
	if math.Abs(got[2]-want) > 1e-12 {
		t.Errorf("RollingReturnStdDev()[2] = %v, want %v", got[2], want)
	}
}

func TestNormATR(t *testing.T) {
	rows := BuildFeatures(generateTestCandles(60, waveCandle))
	for _, r := range rows {
		if math.Abs(r.NormATR-r.ATR/r.AvgPrice) > 1e-12 {
			t.Fatalf("NormATR = %v, want ATR/AvgPrice = %v", r.NormATR, r.ATR/r.AvgPrice)
		}
	}
}

func waveCandle(i int) models.Candle {
	base := 100 + 3*math.Sin(float64(i)/4)
	return models.Candle{
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * 5 * time.Minute),
		Open:      base - 0.2,
		High:      base + 0.6,
		Low:       base - 0.7,
		Close:     base + 0.1*math.Cos(float64(i)),
		Volume:    1000 + float64(i%7)*50,
	}
}

func generateTestCandles(n int, generator func(int) models.Candle) []models.Candle {
	candles := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = generator(i)
	}
	return candles
}
