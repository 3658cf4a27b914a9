package pattern

import (
	"math"

	"github.com/Alias1177/Forecaster/models"
)

// Candle labels attached to signals
const (
	LabelBullish = "Bullish"
	LabelBearish = "Bearish"
	LabelNeutral = "Neutral"
)

// minBodyShare is the body size, as a share of the full range, a confirming candle needs
const minBodyShare = 0.5

// IsBullishCandle reports whether the last candle closed up with a dominant body
// and above the previous close
func IsBullishCandle(candles []models.Candle) bool {
	if len(candles) < 2 {
		return false
	}
	latest := candles[len(candles)-1]
	prev := candles[len(candles)-2]

	body := math.Abs(latest.Close - latest.Open)
	return latest.Close > latest.Open &&
		body > minBodyShare*(latest.High-latest.Low) &&
		latest.Close > prev.Close
}

// IsBearishCandle mirrors IsBullishCandle
func IsBearishCandle(candles []models.Candle) bool {
	if len(candles) < 2 {
		return false
	}
	latest := candles[len(candles)-1]
	prev := candles[len(candles)-2]

	body := math.Abs(latest.Close - latest.Open)
	return latest.Close < latest.Open &&
		body > minBodyShare*(latest.High-latest.Low) &&
		latest.Close < prev.Close
}

// CandleLabel names the shape of the last candle
func CandleLabel(candles []models.Candle) string {
	switch {
	case IsBullishCandle(candles):
		return LabelBullish
	case IsBearishCandle(candles):
		return LabelBearish
	default:
		return LabelNeutral
	}
}
