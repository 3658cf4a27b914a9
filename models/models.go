package models

import (
	"time"
)

// Candle represents a single OHLCV bar
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// KlineEvent is a single closed candle delivered by the streaming feed
type KlineEvent struct {
	Symbol    string
	Timeframe string
	Candle    Candle
}

// Direction of a trade signal
type Direction string

const (
	DirectionNone Direction = ""
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Regime is the classified market condition for a timeframe
type Regime string

const (
	RegimeUnknown  Regime = "unknown"
	RegimeTrend    Regime = "trend"
	RegimeVolatile Regime = "volatile"
	RegimeFlat     Regime = "flat"
)

// BookMetrics summarises the top of the order book.
// When Valid is false the book was unusable and Spread is +Inf.
type BookMetrics struct {
	Liquidity float64 `json:"liquidity"`
	Spread    float64 `json:"spread"`
	Valid     bool    `json:"valid"`
}

// Signal is an accepted trade idea. It is never mutated after the engine returns it.
type Signal struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Direction  Direction `json:"direction"`
	Regime     Regime    `json:"regime"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Score      float64   `json:"score"`
	NormATR    float64   `json:"atr_norm"`

	RiskReward      float64   `json:"rr_ratio"`
	Risk            float64   `json:"risk"`
	Reward          float64   `json:"reward"`
	PredictedReturn float64   `json:"predicted_return"`
	RSI             float64   `json:"rsi"`
	MACD            float64   `json:"macd"`
	Volume          float64   `json:"volume"`
	CandleLabel     string    `json:"candle"`
	CreatedAt       time.Time `json:"created_at"`
}

// TimeframeStatus is a snapshot of the retraining state of one timeframe
type TimeframeStatus struct {
	Timeframe   string    `json:"timeframe"`
	Regime      Regime    `json:"regime"`
	State       string    `json:"state"`
	HasModel    bool      `json:"has_model"`
	Accuracy    float64   `json:"accuracy"`
	Samples     int       `json:"samples"`
	LastRetrain time.Time `json:"last_retrain"`
	LastError   string    `json:"last_error,omitempty"`
}
