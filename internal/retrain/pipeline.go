package retrain

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Alias1177/Forecaster/internal/calculate"
	"github.com/Alias1177/Forecaster/internal/ml"
	"github.com/Alias1177/Forecaster/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// PipelineOptions control how training data is gathered
type PipelineOptions struct {
	HistoryLimit          int
	MinSymbolCandles      int
	MinSamples            int
	MinClassRatio         float64
	ReturnThresholdFactor float64
	Concurrency           int
	Params                ml.Params
}

// Pipeline fetches history for every symbol, labels it and fits a classifier
type Pipeline struct {
	market  models.MarketData
	symbols []string
	opts    PipelineOptions
	now     func() time.Time
	logger  zerolog.Logger
}

// NewPipeline creates a training pipeline over the given symbols
func NewPipeline(market models.MarketData, symbols []string, opts PipelineOptions) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Pipeline{
		market:  market,
		symbols: symbols,
		opts:    opts,
		now:     time.Now,
		logger:  log.With().Str("component", "training_pipeline").Logger(),
	}
}

// symbolSet is the labeled data of one symbol
type symbolSet struct {
	X [][]float64
	Y []int
}

// Train builds a new state for timeframe. When the aggregate labels are
// imbalanced and prior is set, ErrImbalancedTrainingData is returned so the
// caller keeps prior.
func (p *Pipeline) Train(ctx context.Context, timeframe string, prior *ml.State) (*ml.State, error) {
	sets := make([]*symbolSet, len(p.symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, symbol := range p.symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			set, err := p.collect(gctx, symbol, timeframe)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.logger.Info().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).Msg("Skipping symbol for training")
				return nil
			}
			sets[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		X [][]float64
		y []int
	)
	for _, set := range sets {
		if set == nil {
			continue
		}
		X = append(X, set.X...)
		y = append(y, set.Y...)
	}

	return p.fit(timeframe, X, y, prior)
}

// collect fetches and labels one symbol. Imbalanced symbols are left out.
func (p *Pipeline) collect(ctx context.Context, symbol, timeframe string) (*symbolSet, error) {
	candles, err := p.market.FetchCandles(ctx, symbol, timeframe, p.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if len(candles) < p.opts.MinSymbolCandles {
		return nil, fmt.Errorf("%w: %d candles", models.ErrDataInsufficient, len(candles))
	}

	rows := calculate.BuildFeatures(candles)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no feature rows", models.ErrDataInsufficient)
	}

	labeled := calculate.Label(rows, p.opts.ReturnThresholdFactor, p.opts.MinClassRatio)
	if len(labeled.X) == 0 {
		return nil, fmt.Errorf("%w: no labeled rows", models.ErrDataInsufficient)
	}
	if !labeled.Balanced {
		return nil, fmt.Errorf("%w: class counts %v", models.ErrImbalancedTrainingData, labeled.Counts)
	}

	p.logger.Debug().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("candles", len(candles)).
		Int("samples", len(labeled.X)).
		Msg("Collected training data")

	return &symbolSet{X: labeled.X, Y: labeled.Y}, nil
}

// fit validates the aggregate and trains
func (p *Pipeline) fit(timeframe string, X [][]float64, y []int, prior *ml.State) (*ml.State, error) {
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d feature rows, %d labels", models.ErrDataInsufficient, len(X), len(y))
	}
	if len(X) < p.opts.MinSamples {
		return nil, fmt.Errorf("%w: %d samples, need %d", models.ErrDataInsufficient, len(X), p.opts.MinSamples)
	}
	for i, row := range X {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: non-finite feature in sample %d", models.ErrDataInsufficient, i)
			}
		}
	}

	balanced, counts := calculate.IsBalanced(y, p.opts.MinClassRatio)
	if !balanced {
		if prior != nil {
			return nil, fmt.Errorf("%w: class counts %v", models.ErrImbalancedTrainingData, counts)
		}
		p.logger.Warn().Str("timeframe", timeframe).Interface("counts", counts).Msg("Imbalanced classes, training anyway")
	}

	state, err := ml.Train(timeframe, calculate.SchemaVersion, X, y, p.opts.Params, p.now())
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("timeframe", timeframe).
		Int("samples", state.Samples).
		Float64("cv_accuracy", state.Accuracy()).
		Int("failed_folds", state.CV.FailedFolds).
		Msg("Model trained")
	return state, nil
}
