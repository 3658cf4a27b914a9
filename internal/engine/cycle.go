package engine

import (
	"context"
	"time"

	"github.com/Alias1177/Forecaster/internal/metrics"
	"github.com/Alias1177/Forecaster/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CycleReport counts what one pass over the universe produced
type CycleReport struct {
	Analyzed int
	Signals  int
	Skipped  int
	Failed   int
}

// CycleOptions configure the analysis loop
type CycleOptions struct {
	Symbols    []string
	Timeframes []string
	MaxSignals int
}

// Cycle drives the engine over every (symbol, timeframe) pair
type Cycle struct {
	engine   *Engine
	opts     CycleOptions
	notifier models.Notifier
	journal  models.SignalJournal
	metrics  *metrics.Recorder
	logger   zerolog.Logger
}

// NewCycle creates the loop. journal may be nil.
func NewCycle(engine *Engine, opts CycleOptions, notifier models.Notifier, journal models.SignalJournal, rec *metrics.Recorder) *Cycle {
	return &Cycle{
		engine:   engine,
		opts:     opts,
		notifier: notifier,
		journal:  journal,
		metrics:  rec,
		logger:   log.With().Str("component", "analysis_cycle").Logger(),
	}
}

// Tick runs one pass. Symbols are processed sequentially; a symbol that
// signals is not analyzed on its remaining timeframes.
func (c *Cycle) Tick(ctx context.Context) (CycleReport, error) {
	var report CycleReport
	start := time.Now()
	defer func() { c.metrics.ObserveCycle(time.Since(start).Seconds()) }()

	if c.engine.InLowLiquidityHours(c.engine.now()) {
		c.logger.Info().Msg("Low liquidity hours, skipping cycle")
		c.metrics.RecordSkip(string(SkipLowLiquidityHours))
		return report, nil
	}

	signaled := make(map[string]bool, len(c.opts.Symbols))

	for _, symbol := range c.opts.Symbols {
		for _, tf := range c.opts.Timeframes {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if c.opts.MaxSignals > 0 && report.Signals >= c.opts.MaxSignals {
				c.logger.Info().Int("signals", report.Signals).Msg("Signal cap reached, ending cycle")
				return report, nil
			}
			if signaled[symbol] {
				break
			}

			res := c.engine.Analyze(ctx, symbol, tf)
			report.Analyzed++

			switch res.Outcome {
			case Accepted:
				report.Signals++
				signaled[symbol] = true
				c.deliver(ctx, *res.Signal)
			case Failed:
				report.Failed++
				kind := models.ErrorKind(res.Err)
				c.metrics.RecordError(kind)
				c.logger.Warn().Err(res.Err).Str("symbol", symbol).Str("timeframe", tf).Str("kind", kind).Msg("Analysis failed")
			default:
				report.Skipped++
				c.metrics.RecordSkip(string(res.Reason))
				ev := c.logger.Info().Str("symbol", symbol).Str("timeframe", tf).Str("reason", string(res.Reason))
				if res.Err != nil {
					ev = ev.AnErr("cause", res.Err)
				}
				ev.Msg("Skipped")
			}
		}
	}

	c.logger.Info().
		Int("analyzed", report.Analyzed).
		Int("signals", report.Signals).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Dur("took", time.Since(start)).
		Msg("Cycle complete")
	return report, nil
}

// deliver hands the signal downstream. Failures never abort the cycle.
func (c *Cycle) deliver(ctx context.Context, s models.Signal) {
	c.metrics.RecordSignal(s.Symbol, s.Timeframe, string(s.Direction))
	c.logger.Info().
		Str("id", s.ID).
		Str("symbol", s.Symbol).
		Str("timeframe", s.Timeframe).
		Str("direction", string(s.Direction)).
		Str("regime", string(s.Regime)).
		Float64("entry", s.EntryPrice).
		Float64("stop_loss", s.StopLoss).
		Float64("take_profit", s.TakeProfit).
		Float64("score", s.Score).
		Float64("rr", s.RiskReward).
		Msg("Signal accepted")

	if c.notifier != nil {
		if err := c.notifier.Send(ctx, s); err != nil {
			c.metrics.RecordError("notify")
			c.logger.Error().Err(err).Str("id", s.ID).Msg("Failed to send signal")
		}
	}
	if c.journal != nil {
		if err := c.journal.RecordSignal(ctx, s); err != nil {
			c.metrics.RecordError("journal")
			c.logger.Error().Err(err).Str("id", s.ID).Msg("Failed to record signal")
		}
	}
}

// Run ticks immediately and then every interval until ctx is done
func (c *Cycle) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// HandleKline feeds a streamed candle into the shared windows
func (c *Cycle) HandleKline(ev models.KlineEvent) {
	if c.engine.windows == nil {
		return
	}
	if c.engine.windows.Append(ev) {
		c.metrics.RecordKline(ev.Timeframe)
	}
}
