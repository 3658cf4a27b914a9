package engine

import "github.com/Alias1177/Forecaster/models"

// Outcome of analyzing one (symbol, timeframe)
type Outcome int

const (
	Skipped Outcome = iota
	Accepted
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Failed:
		return "failed"
	default:
		return "skipped"
	}
}

// SkipReason names the filter that rejected a candidate
type SkipReason string

const (
	SkipLowLiquidityHours   SkipReason = "low_liquidity_hours"
	SkipCooldown            SkipReason = "cooldown"
	SkipInsufficientHistory SkipReason = "insufficient_history"
	SkipOrderBook           SkipReason = "order_book"
	SkipModelUnready        SkipReason = "model_unready"
	SkipImbalanced          SkipReason = "imbalanced_labels"
	SkipLowVolatility       SkipReason = "low_volatility"
	SkipLowVolume           SkipReason = "low_volume"
	SkipLowATR              SkipReason = "low_atr"
	SkipNearLevels          SkipReason = "near_levels"
	SkipNoCandidate         SkipReason = "no_candidate"
	SkipCandleUnconfirmed   SkipReason = "candle_unconfirmed"
	SkipHigherTimeframe     SkipReason = "higher_timeframe"
	SkipRiskLevels          SkipReason = "risk_levels"
	SkipRiskReward          SkipReason = "risk_reward"
)

// Result is Accepted with a Signal, Skipped with a Reason, or Failed with Err.
// A skip may carry Err as context.
type Result struct {
	Outcome Outcome
	Signal  *models.Signal
	Reason  SkipReason
	Err     error
}

func accepted(s models.Signal) Result {
	return Result{Outcome: Accepted, Signal: &s}
}

func skipped(reason SkipReason, err error) Result {
	return Result{Outcome: Skipped, Reason: reason, Err: err}
}

func failed(err error) Result {
	return Result{Outcome: Failed, Err: err}
}
