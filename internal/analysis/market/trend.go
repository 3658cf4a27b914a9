package market

import (
	"github.com/Alias1177/Forecaster/internal/calculate"
	"github.com/Alias1177/Forecaster/models"
)

// ConfirmTrend checks that the latest row of a higher-timeframe window agrees
// with direction: fast EMA on the right side of slow EMA and ADX above threshold.
// Missing data never confirms.
func ConfirmTrend(rows []calculate.Row, direction models.Direction, adxThreshold float64) bool {
	if len(rows) == 0 {
		return false
	}
	latest := rows[len(rows)-1]
	if latest.ADX <= adxThreshold {
		return false
	}

	switch direction {
	case models.DirectionBuy:
		return latest.EMAFast > latest.EMASlow
	case models.DirectionSell:
		return latest.EMAFast < latest.EMASlow
	default:
		return false
	}
}
