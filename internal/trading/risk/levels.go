package risk

import (
	"fmt"
	"math"

	"github.com/Alias1177/Forecaster/models"
)

const (
	stopATRMultiple = 2.0
	takeATRMultiple = 8.0
	levelBuffer     = 0.01
)

// Limits bound the distance of stop and take from entry
type Limits struct {
	MinStopSize  float64
	MinTakeSize  float64
	MaxTakeRange float64
}

// Input describes the candidate being sized. NormATR is expected to be
// floored by the caller.
type Input struct {
	Direction  models.Direction
	Entry      float64
	NormATR    float64
	Score      float64
	Support    float64
	Resistance float64
}

// Levels is the sized trade
type Levels struct {
	StopLoss        float64 `json:"stop_loss"`
	TakeProfit      float64 `json:"take_profit"`
	Risk            float64 `json:"risk"`
	Reward          float64 `json:"reward"`
	RiskReward      float64 `json:"rr_ratio"`
	PredictedReturn float64 `json:"predicted_return"`
}

// PredictedReturn is the price move implied by the classifier confidence
func PredictedReturn(score, normATR, entry float64) float64 {
	return math.Abs(score) * normATR * entry
}

// CalculateLevels derives stop-loss and take-profit around entry.
// Stops hug support/resistance with a 1% buffer, takes aim at 8 ATR or the
// predicted move, and both are clamped to the configured size limits.
// Inverted levels are reported as ErrInvalidRiskLevels.
func CalculateLevels(in Input, lim Limits) (Levels, error) {
	e := in.Entry
	atrMove := in.NormATR * e
	predicted := PredictedReturn(in.Score, in.NormATR, e)

	var stop, take float64
	switch in.Direction {
	case models.DirectionBuy:
		stop = math.Max(e-stopATRMultiple*atrMove, in.Support*(1+levelBuffer))
		take = math.Min(e+math.Max(takeATRMultiple*atrMove, predicted), in.Resistance*(1-levelBuffer))
		stop = math.Min(stop, e*(1-lim.MinStopSize))
		take = math.Max(take, e*(1+lim.MinTakeSize))
		take = math.Min(take, e+lim.MaxTakeRange*atrMove)
		if take <= e || stop >= e {
			return Levels{}, fmt.Errorf("%w: buy take=%.8f stop=%.8f entry=%.8f", models.ErrInvalidRiskLevels, take, stop, e)
		}
	case models.DirectionSell:
		stop = math.Min(e+stopATRMultiple*atrMove, in.Resistance*(1-levelBuffer))
		take = math.Max(e-math.Max(takeATRMultiple*atrMove, predicted), in.Support*(1+levelBuffer))
		stop = math.Max(stop, e*(1+lim.MinStopSize))
		take = math.Min(take, e*(1-lim.MinTakeSize))
		take = math.Max(take, e-lim.MaxTakeRange*atrMove)
		if take >= e || stop <= e {
			return Levels{}, fmt.Errorf("%w: sell take=%.8f stop=%.8f entry=%.8f", models.ErrInvalidRiskLevels, take, stop, e)
		}
	default:
		return Levels{}, fmt.Errorf("%w: no direction", models.ErrInvalidRiskLevels)
	}

	lv := Levels{
		StopLoss:        stop,
		TakeProfit:      take,
		Risk:            math.Abs(e - stop),
		Reward:          math.Abs(take - e),
		PredictedReturn: predicted,
	}
	if lv.Risk > 0 {
		lv.RiskReward = lv.Reward / lv.Risk
	}
	return lv, nil
}
