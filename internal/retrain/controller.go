package retrain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Alias1177/Forecaster/internal/analysis/market"
	"github.com/Alias1177/Forecaster/internal/calculate"
	"github.com/Alias1177/Forecaster/internal/metrics"
	"github.com/Alias1177/Forecaster/internal/ml"
	"github.com/Alias1177/Forecaster/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// State of a timeframe's model
type State string

const (
	StateStale    State = "stale"
	StateTraining State = "training"
	StateFresh    State = "fresh"
)

// Trainer produces a new classifier state for a timeframe
type Trainer interface {
	Train(ctx context.Context, timeframe string, prior *ml.State) (*ml.State, error)
}

// Options configure the controller
type Options struct {
	Timeframes      []string
	Thresholds      market.RegimeThresholds
	RetrainInterval time.Duration
	MinSpacing      time.Duration
	FailureBackoff  time.Duration
	Workers         int
}

type frame struct {
	regime      models.Regime
	state       State
	model       *ml.State
	lastRetrain time.Time
	lastAttempt time.Time
	lastErr     error
	pending     bool
}

// Controller owns the per-timeframe model, regime and retrain bookkeeping.
// Retrains run on a worker pool so other timeframes stay analyzable.
type Controller struct {
	mu      sync.RWMutex
	opts    Options
	frames  map[string]*frame
	trainer Trainer
	store   ml.Store
	jobs    chan string
	metrics *metrics.Recorder
	now     func() time.Time
	logger  zerolog.Logger
}

// NewController creates a controller with every timeframe stale and no model
func NewController(opts Options, trainer Trainer, store ml.Store, rec *metrics.Recorder) *Controller {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MinSpacing == 0 {
		opts.MinSpacing = time.Hour
	}

	frames := make(map[string]*frame, len(opts.Timeframes))
	for _, tf := range opts.Timeframes {
		frames[tf] = &frame{regime: models.RegimeUnknown, state: StateStale}
	}

	return &Controller{
		opts:    opts,
		frames:  frames,
		trainer: trainer,
		store:   store,
		jobs:    make(chan string, len(opts.Timeframes)),
		metrics: rec,
		now:     time.Now,
		logger:  log.With().Str("component", "retrain_controller").Logger(),
	}
}

// LoadModels restores persisted states. A stored model counts as trained at its TrainedAt.
func (c *Controller) LoadModels(ctx context.Context) error {
	for _, tf := range c.opts.Timeframes {
		state, err := c.store.Load(ctx, tf)
		if err != nil {
			return fmt.Errorf("load model %s: %w", tf, err)
		}
		if state == nil {
			c.logger.Info().Str("timeframe", tf).Msg("No stored model")
			continue
		}

		c.mu.Lock()
		f := c.frames[tf]
		f.model = state
		f.lastRetrain = state.TrainedAt
		f.state = StateFresh
		c.mu.Unlock()

		c.metrics.SetModelAccuracy(tf, state.Accuracy())
		c.logger.Info().
			Str("timeframe", tf).
			Time("trained_at", state.TrainedAt).
			Float64("cv_accuracy", state.Accuracy()).
			Msg("Model loaded")
	}
	return nil
}

// Model returns the serving state for timeframe, nil when none exists
func (c *Controller) Model(timeframe string) *ml.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if f, ok := c.frames[timeframe]; ok {
		return f.model
	}
	return nil
}

// ShouldRetrain decides whether a refit is due for timeframe given the
// currently observed regime. It does not change any state.
func (c *Controller) ShouldRetrain(timeframe string, regime models.Regime, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.frames[timeframe]
	if !ok {
		return false
	}
	return c.due(f, regime, now)
}

func (c *Controller) due(f *frame, regime models.Regime, now time.Time) bool {
	if f.model == nil {
		return true
	}
	elapsed := now.Sub(f.lastRetrain)
	if elapsed < c.opts.MinSpacing {
		return false
	}
	if regime != models.RegimeUnknown && regime != f.regime {
		return true
	}
	return elapsed >= c.opts.RetrainInterval
}

// Observe classifies rows and queues a retrain when one is due.
// The regime is recorded only when a retrain is queued.
func (c *Controller) Observe(timeframe string, rows []calculate.Row) models.Regime {
	regime, m := market.DetectRegime(rows, c.opts.Thresholds)
	if regime == models.RegimeUnknown {
		return regime
	}
	now := c.now()

	c.mu.Lock()
	f, ok := c.frames[timeframe]
	if !ok || !c.due(f, regime, now) || !c.ready(f, now) {
		c.mu.Unlock()
		return regime
	}
	previous := f.regime
	f.regime = regime
	queued := c.enqueue(timeframe, f)
	c.mu.Unlock()

	if queued {
		c.logger.Info().
			Str("timeframe", timeframe).
			Str("from", string(previous)).
			Str("to", string(regime)).
			Float64("adx_mean", m.ADXMean).
			Float64("volatility", m.Volatility).
			Msg("Retrain queued")
	}
	return regime
}

// RequestRetrain queues a refit regardless of regime, e.g. after a schema mismatch
func (c *Controller) RequestRetrain(timeframe, reason string) bool {
	c.mu.Lock()
	f, ok := c.frames[timeframe]
	if !ok || !c.ready(f, c.now()) {
		c.mu.Unlock()
		return false
	}
	queued := c.enqueue(timeframe, f)
	c.mu.Unlock()

	if queued {
		c.logger.Info().Str("timeframe", timeframe).Str("reason", reason).Msg("Retrain requested")
	}
	return queued
}

// ready reports whether a new job may be queued: nothing in flight and not
// inside the backoff after a failed attempt
func (c *Controller) ready(f *frame, now time.Time) bool {
	if f.pending {
		return false
	}
	return f.lastErr == nil || now.Sub(f.lastAttempt) >= c.opts.FailureBackoff
}

// enqueue must be called with c.mu held
func (c *Controller) enqueue(timeframe string, f *frame) bool {
	select {
	case c.jobs <- timeframe:
		f.pending = true
		f.state = StateTraining
		return true
	default:
		return false
	}
}

// Run drains retrain jobs with the configured number of workers until ctx is done
func (c *Controller) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.opts.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case tf := <-c.jobs:
					_ = c.retrain(gctx, tf)
				}
			}
		})
	}
	return g.Wait()
}

// TrainNow retrains synchronously; used for initial training
func (c *Controller) TrainNow(ctx context.Context, timeframe string) error {
	c.mu.Lock()
	f, ok := c.frames[timeframe]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("unknown timeframe %q", timeframe)
	}
	if f.pending {
		c.mu.Unlock()
		return fmt.Errorf("retrain for %s already in progress", timeframe)
	}
	f.pending = true
	f.state = StateTraining
	c.mu.Unlock()

	return c.retrain(ctx, timeframe)
}

// EnsureModels trains every timeframe that has no model yet
func (c *Controller) EnsureModels(ctx context.Context) {
	for _, tf := range c.opts.Timeframes {
		if c.Model(tf) != nil {
			continue
		}
		if err := c.TrainNow(ctx, tf); err != nil {
			c.logger.Warn().Err(err).Str("timeframe", tf).Msg("Initial training failed")
		}
	}
}

// retrain runs the trainer; on failure the previous model keeps serving
func (c *Controller) retrain(ctx context.Context, timeframe string) error {
	prior := c.Model(timeframe)
	start := c.now()

	state, err := c.trainer.Train(ctx, timeframe, prior)
	if err == nil {
		if saveErr := c.store.Save(ctx, timeframe, state); saveErr != nil {
			c.logger.Error().Err(saveErr).Str("timeframe", timeframe).Msg("Failed to persist model")
		}
	}

	c.mu.Lock()
	f := c.frames[timeframe]
	f.pending = false
	f.lastAttempt = c.now()
	if err != nil {
		// any previous model keeps serving
		f.lastErr = err
		f.state = StateStale
	} else {
		f.lastErr = nil
		f.model = state
		f.lastRetrain = f.lastAttempt
		f.state = StateFresh
	}
	c.mu.Unlock()

	if err != nil {
		c.metrics.RecordRetrain(timeframe, models.ErrorKind(err))
		c.logger.Warn().Err(err).Str("timeframe", timeframe).Bool("prior_model", prior != nil).Msg("Retrain failed")
		return err
	}

	c.metrics.RecordRetrain(timeframe, "ok")
	c.metrics.SetModelAccuracy(timeframe, state.Accuracy())
	c.logger.Info().
		Str("timeframe", timeframe).
		Dur("took", c.now().Sub(start)).
		Float64("cv_accuracy", state.Accuracy()).
		Msg("Retrain complete")
	return nil
}

// Statuses snapshots every timeframe in configuration order
func (c *Controller) Statuses() []models.TimeframeStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.TimeframeStatus, 0, len(c.opts.Timeframes))
	for _, tf := range c.opts.Timeframes {
		f := c.frames[tf]
		st := models.TimeframeStatus{
			Timeframe:   tf,
			Regime:      f.regime,
			State:       string(f.state),
			HasModel:    f.model != nil,
			LastRetrain: f.lastRetrain,
		}
		if f.model != nil {
			st.Accuracy = f.model.Accuracy()
			st.Samples = f.model.Samples
		}
		if f.lastErr != nil {
			st.LastError = f.lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}

// Status returns the state machine position for one timeframe
func (c *Controller) Status(timeframe string) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if f, ok := c.frames[timeframe]; ok {
		return f.state
	}
	return StateStale
}
