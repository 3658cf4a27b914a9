package calculate

import (
	"fmt"
	"hash/fnv"
	"strings"
)

const schemaRevision = 1

// FeatureNames is the ordered classifier input schema
var FeatureNames = []string{
	"vwap", "roc", "norm_atr", "adx", "momentum", "volatility",
	"ema_fast", "ema_slow", "obv", "close", "volume", "rsi",
	"macd", "macd_signal", "bb_upper", "bb_middle", "bb_lower",
}

// SchemaVersion identifies the feature layout produced by Vector.
// A persisted classifier fit under a different version must be retrained.
var SchemaVersion = schemaVersion(FeatureNames)

func schemaVersion(names []string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.Join(names, ",")))
	return fmt.Sprintf("v%d-%08x", schemaRevision, h.Sum32())
}

// Vector lays the row out in FeatureNames order
func (r Row) Vector() []float64 {
	return []float64{
		r.VWAP, r.ROC, r.NormATR, r.ADX, r.Momentum, r.Volatility,
		r.EMAFast, r.EMASlow, r.OBV, r.Candle.Close, r.Candle.Volume, r.RSI,
		r.MACD, r.MACDSignal, r.BBUpper, r.BBMiddle, r.BBLower,
	}
}
