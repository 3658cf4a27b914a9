package risk

import (
	"errors"
	"math"
	"testing"

	"github.com/Alias1177/Forecaster/models"
)

var defaultLimits = Limits{MinStopSize: 0.003, MinTakeSize: 0.0075, MaxTakeRange: 5}

func TestCalculateLevels(t *testing.T) {
	tests := []struct {
		name     string
		in       Input
		lim      Limits
		wantStop float64
		wantTake float64
		wantRR   float64
		wantErr  bool
	}{
		{
			name:     "buy round trip",
			in:       Input{Direction: models.DirectionBuy, Entry: 100, NormATR: 0.01, Score: 0.8, Support: 98, Resistance: 103},
			lim:      defaultLimits,
			wantStop: 98.98,
			wantTake: 101.97,
			wantRR:   1.97 / 1.02,
		},
		{
			name:     "sell mirror",
			in:       Input{Direction: models.DirectionSell, Entry: 100, NormATR: 0.01, Score: -0.8, Support: 98, Resistance: 103},
			lim:      defaultLimits,
			wantStop: 101.97,
			wantTake: 98.98,
			wantRR:   1.02 / 1.97,
		},
		{
			name:     "buy take floored by minimum size",
			in:       Input{Direction: models.DirectionBuy, Entry: 100, NormATR: 0.005, Score: 0.1, Support: 90, Resistance: 100.2},
			lim:      defaultLimits,
			wantStop: 99,
			wantTake: 100.75,
			wantRR:   0.75,
		},
		{
			name:    "zero atr collapses take onto entry",
			in:      Input{Direction: models.DirectionBuy, Entry: 100, NormATR: 0, Score: 0.9, Support: 90, Resistance: 110},
			lim:     defaultLimits,
			wantErr: true,
		},
		{
			name:    "support above entry without minimum stop",
			in:      Input{Direction: models.DirectionBuy, Entry: 100, NormATR: 0.01, Score: 0.9, Support: 99.5, Resistance: 110},
			lim:     Limits{MinStopSize: 0, MinTakeSize: 0.0075, MaxTakeRange: 5},
			wantErr: true,
		},
		{
			name:    "no direction",
			in:      Input{Entry: 100, NormATR: 0.01},
			lim:     defaultLimits,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lv, err := CalculateLevels(tt.in, tt.lim)
			if tt.wantErr {
				if !errors.Is(err, models.ErrInvalidRiskLevels) {
					t.Fatalf("CalculateLevels() error = %v, want ErrInvalidRiskLevels", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CalculateLevels() unexpected error: %v", err)
			}
			if !almostEqual(lv.StopLoss, tt.wantStop) {
				t.Errorf("StopLoss = %v, want %v", lv.StopLoss, tt.wantStop)
			}
			if !almostEqual(lv.TakeProfit, tt.wantTake) {
				t.Errorf("TakeProfit = %v, want %v", lv.TakeProfit, tt.wantTake)
			}
			if !almostEqual(lv.RiskReward, tt.wantRR) {
				t.Errorf("RiskReward = %v, want %v", lv.RiskReward, tt.wantRR)
			}

			switch tt.in.Direction {
			case models.DirectionBuy:
				if !(lv.StopLoss < tt.in.Entry && tt.in.Entry < lv.TakeProfit) {
					t.Errorf("buy ordering violated: stop=%v entry=%v take=%v", lv.StopLoss, tt.in.Entry, lv.TakeProfit)
				}
			case models.DirectionSell:
				if !(lv.TakeProfit < tt.in.Entry && tt.in.Entry < lv.StopLoss) {
					t.Errorf("sell ordering violated: stop=%v entry=%v take=%v", lv.StopLoss, tt.in.Entry, lv.TakeProfit)
				}
			}
		})
	}
}

func TestBuyStopBounds(t *testing.T) {
	in := Input{Direction: models.DirectionBuy, Entry: 100, NormATR: 0.01, Score: 0.8, Support: 98, Resistance: 103}
	lv, err := CalculateLevels(in, defaultLimits)
	if err != nil {
		t.Fatal(err)
	}
	if lv.StopLoss < 98*1.01-1e-9 {
		t.Errorf("StopLoss = %v, want >= support buffer 98.98", lv.StopLoss)
	}
	if lv.StopLoss > 100*(1-defaultLimits.MinStopSize)+1e-9 {
		t.Errorf("StopLoss = %v, want <= %v", lv.StopLoss, 100*(1-defaultLimits.MinStopSize))
	}
}

func TestPredictedReturn(t *testing.T) {
	if got := PredictedReturn(-0.5, 0.02, 200); !almostEqual(got, 2) {
		t.Errorf("PredictedReturn() = %v, want 2", got)
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
