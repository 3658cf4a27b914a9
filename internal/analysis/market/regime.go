package market

import (
	"math"

	"github.com/Alias1177/Forecaster/internal/calculate"
	"github.com/Alias1177/Forecaster/models"
)

const (
	adxSmoothingWindow = 5
	volatilityWindow   = 20
)

// RegimeThresholds are the boundaries used to classify a market
type RegimeThresholds struct {
	ADX        float64
	Volatility float64
}

// RegimeMetrics are the measurements behind a classification
type RegimeMetrics struct {
	ADXMean    float64 `json:"adx_mean"`
	Volatility float64 `json:"volatility"`
}

// Classify maps measurements to a regime. First match wins: trend, then volatile, then flat.
// Non-finite inputs give RegimeUnknown.
func Classify(m RegimeMetrics, th RegimeThresholds) models.Regime {
	if math.IsNaN(m.ADXMean) || math.IsNaN(m.Volatility) || math.IsInf(m.ADXMean, 0) || math.IsInf(m.Volatility, 0) {
		return models.RegimeUnknown
	}
	switch {
	case m.ADXMean > th.ADX:
		return models.RegimeTrend
	case m.Volatility > th.Volatility:
		return models.RegimeVolatile
	default:
		return models.RegimeFlat
	}
}

// DetectRegime classifies the latest feature window.
// ADX is smoothed with a 5-period mean at the last row; volatility is the
// average of the 20-period rolling return stdev across the window.
func DetectRegime(rows []calculate.Row, th RegimeThresholds) (models.Regime, RegimeMetrics) {
	metrics := RegimeMetrics{ADXMean: math.NaN(), Volatility: math.NaN()}
	if len(rows) < calculate.MinFeatureCandles {
		return models.RegimeUnknown, metrics
	}

	adx := calculate.Column(rows, func(r calculate.Row) float64 { return r.ADX })
	if v, ok := calculate.TailMean(adx, adxSmoothingWindow); ok {
		metrics.ADXMean = v
	}

	closes := calculate.Column(rows, func(r calculate.Row) float64 { return r.Candle.Close })
	if v, ok := calculate.MeanReturnVolatility(closes, volatilityWindow); ok {
		metrics.Volatility = v
	}

	return Classify(metrics, th), metrics
}

// BranchRegime picks the decision branch from the latest ADX reading:
// below the threshold the market is treated as a range, otherwise as a trend.
func BranchRegime(latestADX, adxThreshold float64) models.Regime {
	if latestADX < adxThreshold {
		return models.RegimeFlat
	}
	return models.RegimeTrend
}
