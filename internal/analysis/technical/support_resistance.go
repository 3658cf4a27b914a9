package technical

import (
	"github.com/Alias1177/Forecaster/internal/calculate"
)

// Levels are the rolling support and resistance of a window
type Levels struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
}

// RollingLevels takes the lowest low and highest high of the window bars that
// precede the latest one, so a breakout bar can close beyond them.
func RollingLevels(rows []calculate.Row, window int) (Levels, bool) {
	end := len(rows) - 2
	lows := calculate.Column(rows, func(r calculate.Row) float64 { return r.Candle.Low })
	highs := calculate.Column(rows, func(r calculate.Row) float64 { return r.Candle.High })

	support, ok := calculate.WindowMin(lows, end, window)
	if !ok {
		return Levels{}, false
	}
	resistance, ok := calculate.WindowMax(highs, end, window)
	if !ok {
		return Levels{}, false
	}
	return Levels{Support: support, Resistance: resistance}, true
}

// PriorHigh is the highest high over the window bars before the latest one
func PriorHigh(rows []calculate.Row, window int) (float64, bool) {
	highs := calculate.Column(rows, func(r calculate.Row) float64 { return r.Candle.High })
	return calculate.WindowMax(highs, len(rows)-2, window)
}

// PriorLow is the lowest low over the window bars before the latest one
func PriorLow(rows []calculate.Row, window int) (float64, bool) {
	lows := calculate.Column(rows, func(r calculate.Row) float64 { return r.Candle.Low })
	return calculate.WindowMin(lows, len(rows)-2, window)
}

// NearLevels reports whether price sits within half an ATR of support or resistance
func NearLevels(price, normATR float64, lv Levels) bool {
	buffer := 0.5 * normATR * price
	return price < lv.Support+buffer || price > lv.Resistance-buffer
}
