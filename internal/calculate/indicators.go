package calculate

import (
	"math"

	"github.com/Alias1177/Forecaster/models"
	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// MinFeatureCandles is the shortest window the feature builder accepts
const MinFeatureCandles = 50

const (
	rocPeriod        = 12
	atrPeriod        = 14
	avgPricePeriod   = 50
	adxPeriod        = 14
	momentumPeriod   = 10
	volatilityPeriod = 20
	emaFastPeriod    = 12
	emaSlowPeriod    = 26
	rsiPeriod        = 14
	macdFast         = 12
	macdSlow         = 26
	macdSignalPeriod = 9
	bbPeriod         = 20
	bbDeviation      = 2.0
)

// first index at which every indicator is defined
var warmup = maxInt(
	rocPeriod,
	atrPeriod,
	avgPricePeriod-1,
	2*adxPeriod-1,
	momentumPeriod,
	volatilityPeriod,
	emaSlowPeriod-1,
	rsiPeriod,
	macdSlow-1+macdSignalPeriod-1,
	bbPeriod-1,
)

// RowsFor is the most feature rows a window of n candles can produce
func RowsFor(n int) int {
	if n < MinFeatureCandles {
		return 0
	}
	return n - warmup
}

// Row is a candle with every indicator defined
type Row struct {
	Candle models.Candle

	VWAP       float64
	ROC        float64
	ATR        float64
	AvgPrice   float64
	NormATR    float64
	ADX        float64
	Momentum   float64
	Volatility float64
	EMAFast    float64
	EMASlow    float64
	OBV        float64
	RSI        float64
	MACD       float64
	MACDSignal float64
	BBUpper    float64
	BBMiddle   float64
	BBLower    float64
}

// BuildFeatures computes indicator rows for the window.
// Rows whose lookback is incomplete or that contain a non-finite value are dropped.
// Windows shorter than MinFeatureCandles produce nil.
func BuildFeatures(candles []models.Candle) []Row {
	if len(candles) < MinFeatureCandles {
		return nil
	}

	n := len(candles)
	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		opens[i] = c.Open
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	vwap := cumulativeVWAP(closes, volumes)
	roc := talib.Roc(closes, rocPeriod)
	atr := talib.Atr(highs, lows, closes, atrPeriod)
	avgPrice := talib.Sma(closes, avgPricePeriod)
	adx := talib.Adx(highs, lows, closes, adxPeriod)
	mom := talib.Mom(closes, momentumPeriod)
	volatility := RollingReturnStdDev(closes, volatilityPeriod)
	emaFast := talib.Ema(closes, emaFastPeriod)
	emaSlow := talib.Ema(closes, emaSlowPeriod)
	obv := talib.Obv(closes, volumes)
	rsi := talib.Rsi(closes, rsiPeriod)
	macd, macdSignal, _ := talib.Macd(closes, macdFast, macdSlow, macdSignalPeriod)
	bbUpper, bbMiddle, bbLower := talib.BBands(closes, bbPeriod, bbDeviation, bbDeviation, talib.SMA)

	rows := make([]Row, 0, n-warmup)
	for i := warmup; i < n; i++ {
		row := Row{
			Candle:     candles[i],
			VWAP:       vwap[i],
			ROC:        roc[i],
			ATR:        atr[i],
			AvgPrice:   avgPrice[i],
			ADX:        adx[i],
			Momentum:   mom[i],
			Volatility: volatility[i],
			EMAFast:    emaFast[i],
			EMASlow:    emaSlow[i],
			OBV:        obv[i],
			RSI:        rsi[i],
			MACD:       macd[i],
			MACDSignal: macdSignal[i],
			BBUpper:    bbUpper[i],
			BBMiddle:   bbMiddle[i],
			BBLower:    bbLower[i],
		}
		row.NormATR = row.ATR / row.AvgPrice
		if !finite(row.Vector()) || !finite([]float64{row.ATR, row.AvgPrice, opens[i], highs[i], lows[i]}) {
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil
	}
	return rows
}

// RollingReturnStdDev is the sample standard deviation of one-step percentage
// returns over the trailing period. Undefined positions are NaN.
func RollingReturnStdDev(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(closes) < period+1 || period < 2 {
		return out
	}

	returns := make([]float64, len(closes))
	returns[0] = math.NaN()
	for i := 1; i < len(closes); i++ {
		returns[i] = closes[i]/closes[i-1] - 1
	}

	for i := period; i < len(closes); i++ {
		out[i] = stat.StdDev(returns[i-period+1:i+1], nil)
	}
	return out
}

// MeanReturnVolatility averages the rolling return stdev over the whole window
func MeanReturnVolatility(closes []float64, period int) (float64, bool) {
	return nanMean(RollingReturnStdDev(closes, period))
}

func cumulativeVWAP(closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	var pv, vol float64
	for i := range closes {
		pv += closes[i] * volumes[i]
		vol += volumes[i]
		if vol == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = pv / vol
	}
	return out
}

func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func maxInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
