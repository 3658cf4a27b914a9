package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Alias1177/Forecaster/internal/analysis/market"
	"github.com/Alias1177/Forecaster/internal/analysis/pattern"
	"github.com/Alias1177/Forecaster/internal/analysis/technical"
	"github.com/Alias1177/Forecaster/internal/calculate"
	"github.com/Alias1177/Forecaster/internal/config"
	"github.com/Alias1177/Forecaster/internal/cooldown"
	"github.com/Alias1177/Forecaster/internal/metrics"
	"github.com/Alias1177/Forecaster/internal/ml"
	"github.com/Alias1177/Forecaster/internal/trading/risk"
	"github.com/Alias1177/Forecaster/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// minDecisionCandles is the history the decision stages need
	minDecisionCandles = 100
	volatilityMeanWindow = 50
	volumeMeanWindow     = 20
	atrMeanWindow        = 50
	// quietVolatilityShare of the rolling mean below which the market is too quiet
	quietVolatilityShare = 0.5
)

// Models is the engine's view of the retraining controller
type Models interface {
	Model(timeframe string) *ml.State
	Observe(timeframe string, rows []calculate.Row) models.Regime
	RequestRetrain(timeframe, reason string) bool
}

// Options are the decision thresholds
type Options struct {
	LowLiquidityHours       []config.HourRange
	MinSignalInterval       time.Duration
	AnalysisLimit           int
	MinLiquidity            float64
	SpreadThreshold         float64
	MinClassRatio           float64
	ReturnThresholdFactor   float64
	VolumeThreshold         float64
	MinATRFactor            float64
	SupportResistanceWindow int
	BreakoutWindow          int
	ADXThreshold            float64
	ScoreThreshold          float64
	HigherTimeframes        map[string]string
	HigherTimeframeLimit    int
	MinRRRatio              float64
	Risk                    risk.Limits
}

// OptionsFromConfig collects the engine thresholds from configuration
func OptionsFromConfig(cfg *config.Config) Options {
	s := cfg.Strategy
	return Options{
		LowLiquidityHours:       s.LowLiquidityHours,
		MinSignalInterval:       s.MinSignalInterval,
		AnalysisLimit:           s.AnalysisLimit,
		MinLiquidity:            s.MinLiquidity,
		SpreadThreshold:         s.SpreadThreshold,
		MinClassRatio:           cfg.Training.MinClassRatio,
		ReturnThresholdFactor:   cfg.Training.ReturnThresholdFactor,
		VolumeThreshold:         s.VolumeThreshold,
		MinATRFactor:            s.MinATRFactor,
		SupportResistanceWindow: s.SupportResistanceWindow,
		BreakoutWindow:          s.BreakoutWindow,
		ADXThreshold:            s.ADXThreshold,
		ScoreThreshold:          s.ScoreThreshold,
		HigherTimeframes:        s.HigherTimeframes,
		HigherTimeframeLimit:    s.HigherTimeframeLimit,
		MinRRRatio:              s.MinRRRatio,
		Risk: risk.Limits{
			MinStopSize:  s.MinStopSize,
			MinTakeSize:  s.MinTakeSize,
			MaxTakeRange: s.MaxTakeRange,
		},
	}
}

// Engine runs the ordered filter chain for one (symbol, timeframe)
type Engine struct {
	opts      Options
	market    models.MarketData
	models    Models
	cooldowns cooldown.Tracker
	windows   *WindowStore
	metrics   *metrics.Recorder
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates an engine. windows may be nil when streaming is off.
func New(opts Options, market models.MarketData, mdl Models, cooldowns cooldown.Tracker, windows *WindowStore, rec *metrics.Recorder) *Engine {
	if opts.AnalysisLimit < minDecisionCandles {
		opts.AnalysisLimit = minDecisionCandles
	}
	return &Engine{
		opts:      opts,
		market:    market,
		models:    mdl,
		cooldowns: cooldowns,
		windows:   windows,
		metrics:   rec,
		now:       time.Now,
		logger:    log.With().Str("component", "signal_engine").Logger(),
	}
}

// InLowLiquidityHours reports whether t falls into a configured quiet UTC window
func (e *Engine) InLowLiquidityHours(t time.Time) bool {
	hour := t.UTC().Hour()
	for _, r := range e.opts.LowLiquidityHours {
		if r.Contains(hour) {
			return true
		}
	}
	return false
}

// Analyze evaluates one symbol on one timeframe
func (e *Engine) Analyze(ctx context.Context, symbol, timeframe string) Result {
	now := e.now().UTC()

	if e.InLowLiquidityHours(now) {
		return skipped(SkipLowLiquidityHours, nil)
	}

	active, err := cooldown.Active(ctx, e.cooldowns, symbol, now, e.opts.MinSignalInterval)
	if err != nil {
		return failed(fmt.Errorf("cooldown lookup: %w", err))
	}
	if active {
		return skipped(SkipCooldown, nil)
	}

	candles, err := e.history(ctx, symbol, timeframe)
	if err != nil {
		return failed(err)
	}
	if len(candles) < minDecisionCandles {
		return skipped(SkipInsufficientHistory, fmt.Errorf("%w: %d candles", models.ErrDataInsufficient, len(candles)))
	}

	book, err := e.market.FetchOrderBook(ctx, symbol)
	if err != nil {
		return failed(fmt.Errorf("order book: %w", err))
	}
	if !book.Valid || book.Liquidity < e.opts.MinLiquidity || book.Spread > e.opts.SpreadThreshold {
		e.logger.Debug().
			Str("symbol", symbol).
			Bool("valid", book.Valid).
			Float64("liquidity", book.Liquidity).
			Float64("spread", book.Spread).
			Msg("Order book rejected")
		return skipped(SkipOrderBook, nil)
	}

	rows := calculate.BuildFeatures(candles)
	if len(rows) == 0 {
		return skipped(SkipInsufficientHistory, fmt.Errorf("%w: no feature rows", models.ErrDataInsufficient))
	}
	// regime tracking and stale-regime retrains need no usable model
	e.models.Observe(timeframe, rows)

	state := e.models.Model(timeframe)
	if err := state.Compatible(calculate.SchemaVersion); err != nil {
		e.models.RequestRetrain(timeframe, models.ErrorKind(err))
		return skipped(SkipModelUnready, err)
	}

	if labeled := calculate.Label(rows, e.opts.ReturnThresholdFactor, e.opts.MinClassRatio); !labeled.Balanced {
		return skipped(SkipImbalanced, fmt.Errorf("%w: class counts %v", models.ErrImbalancedTrainingData, labeled.Counts))
	}

	latest := rows[len(rows)-1]

	volMean, ok := calculate.TailMean(calculate.Column(rows, func(r calculate.Row) float64 { return r.Volatility }), volatilityMeanWindow)
	if !ok {
		return skipped(SkipInsufficientHistory, models.ErrDataInsufficient)
	}
	if latest.Volatility < quietVolatilityShare*volMean {
		return skipped(SkipLowVolatility, nil)
	}

	volumeMean, ok := calculate.TailMean(calculate.Column(rows, func(r calculate.Row) float64 { return r.Candle.Volume }), volumeMeanWindow)
	if !ok {
		return skipped(SkipInsufficientHistory, models.ErrDataInsufficient)
	}
	if latest.Candle.Volume < e.opts.VolumeThreshold*volumeMean {
		return skipped(SkipLowVolume, nil)
	}

	normATR := math.Max(latest.NormATR, e.opts.MinATRFactor)
	atrMean, ok := calculate.TailMean(calculate.Column(rows, func(r calculate.Row) float64 { return r.NormATR }), atrMeanWindow)
	if !ok {
		return skipped(SkipInsufficientHistory, models.ErrDataInsufficient)
	}
	if normATR < atrMean {
		return skipped(SkipLowATR, nil)
	}

	levels, ok := technical.RollingLevels(rows, e.opts.SupportResistanceWindow)
	if !ok {
		return skipped(SkipInsufficientHistory, models.ErrDataInsufficient)
	}

	score, err := state.Score(latest.Vector())
	if err != nil {
		return failed(fmt.Errorf("score: %w", err))
	}

	branch := market.BranchRegime(latest.ADX, e.opts.ADXThreshold)
	direction, reason := e.candidate(branch, rows, levels, normATR, score)
	if direction == models.DirectionNone {
		return skipped(reason, nil)
	}

	if !e.confirmCandle(direction, candles, rows) {
		return skipped(SkipCandleUnconfirmed, nil)
	}

	if err := e.confirmHigherTimeframe(ctx, symbol, timeframe, direction); err != nil {
		return skipped(SkipHigherTimeframe, err)
	}

	entry := latest.Candle.Close
	lv, err := risk.CalculateLevels(risk.Input{
		Direction:  direction,
		Entry:      entry,
		NormATR:    normATR,
		Score:      score,
		Support:    levels.Support,
		Resistance: levels.Resistance,
	}, e.opts.Risk)
	if err != nil {
		return skipped(SkipRiskLevels, err)
	}
	if lv.RiskReward < e.opts.MinRRRatio {
		return skipped(SkipRiskReward, nil)
	}

	if err := e.cooldowns.Record(ctx, symbol, now); err != nil {
		return failed(fmt.Errorf("cooldown record: %w", err))
	}

	signal := models.Signal{
		ID:              uuid.NewString(),
		Symbol:          symbol,
		Timeframe:       timeframe,
		Direction:       direction,
		Regime:          branch,
		EntryPrice:      entry,
		StopLoss:        lv.StopLoss,
		TakeProfit:      lv.TakeProfit,
		Score:           score,
		NormATR:         normATR,
		RiskReward:      lv.RiskReward,
		Risk:            lv.Risk,
		Reward:          lv.Reward,
		PredictedReturn: lv.PredictedReturn,
		RSI:             latest.RSI,
		MACD:            latest.MACD,
		Volume:          latest.Candle.Volume,
		CandleLabel:     pattern.CandleLabel(candles),
		CreatedAt:       now,
	}
	return accepted(signal)
}

// history fetches the analysis window, falling back to the streamed window
func (e *Engine) history(ctx context.Context, symbol, timeframe string) ([]models.Candle, error) {
	candles, err := e.market.FetchCandles(ctx, symbol, timeframe, e.opts.AnalysisLimit)
	if err == nil {
		if e.windows != nil && len(candles) > 0 {
			e.windows.Seed(symbol, timeframe, candles)
		}
		return candles, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	if e.windows != nil {
		if streamed := e.windows.Snapshot(symbol, timeframe); len(streamed) > 0 {
			e.logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).Msg("Candle fetch failed, using streamed window")
			return streamed, nil
		}
	}
	if !errors.Is(err, models.ErrMarketUnavailable) {
		err = fmt.Errorf("%w: %v", models.ErrMarketUnavailable, err)
	}
	return nil, fmt.Errorf("candles %s %s: %w", symbol, timeframe, err)
}

// candidate applies the branch rule. In a range the score is not used for direction.
func (e *Engine) candidate(branch models.Regime, rows []calculate.Row, levels technical.Levels, normATR, score float64) (models.Direction, SkipReason) {
	latest := rows[len(rows)-1]
	price := latest.Candle.Close

	if branch == models.RegimeTrend {
		if technical.NearLevels(price, normATR, levels) {
			return models.DirectionNone, SkipNearLevels
		}
		switch {
		case score > e.opts.ScoreThreshold && latest.EMAFast > latest.EMASlow:
			return models.DirectionBuy, ""
		case score < -e.opts.ScoreThreshold && latest.EMAFast < latest.EMASlow:
			return models.DirectionSell, ""
		}
		return models.DirectionNone, SkipNoCandidate
	}

	priorHigh, okHigh := technical.PriorHigh(rows, e.opts.BreakoutWindow)
	priorLow, okLow := technical.PriorLow(rows, e.opts.BreakoutWindow)
	switch {
	case okHigh && price > levels.Resistance && price > priorHigh:
		return models.DirectionBuy, ""
	case okLow && price < levels.Support && price < priorLow:
		return models.DirectionSell, ""
	}
	return models.DirectionNone, SkipNoCandidate
}

// confirmCandle requires a directional candle that also clears the breakout window
func (e *Engine) confirmCandle(direction models.Direction, candles []models.Candle, rows []calculate.Row) bool {
	price := rows[len(rows)-1].Candle.Close
	switch direction {
	case models.DirectionBuy:
		high, ok := technical.PriorHigh(rows, e.opts.BreakoutWindow)
		return ok && pattern.IsBullishCandle(candles) && price > high
	case models.DirectionSell:
		low, ok := technical.PriorLow(rows, e.opts.BreakoutWindow)
		return ok && pattern.IsBearishCandle(candles) && price < low
	}
	return false
}

// confirmHigherTimeframe fails closed on any fetch or data problem
func (e *Engine) confirmHigherTimeframe(ctx context.Context, symbol, timeframe string, direction models.Direction) error {
	higher, mapped := models.HigherTimeframe(timeframe, e.opts.HigherTimeframes)
	if !mapped {
		e.logger.Warn().Str("timeframe", timeframe).Str("fallback", higher).Msg("No higher timeframe mapping, using fallback")
	}

	candles, err := e.market.FetchCandles(ctx, symbol, higher, e.opts.HigherTimeframeLimit)
	if err != nil {
		return fmt.Errorf("higher timeframe %s: %w", higher, err)
	}
	rows := calculate.BuildFeatures(candles)
	if len(rows) == 0 {
		return fmt.Errorf("higher timeframe %s: %w", higher, models.ErrDataInsufficient)
	}
	if !market.ConfirmTrend(rows, direction, e.opts.ADXThreshold) {
		return fmt.Errorf("higher timeframe %s does not confirm %s", higher, direction)
	}
	return nil
}
