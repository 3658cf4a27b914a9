package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Alias1177/Forecaster/internal/analysis/market"
	"github.com/Alias1177/Forecaster/internal/api/binance"
	"github.com/Alias1177/Forecaster/internal/config"
	"github.com/Alias1177/Forecaster/internal/database"
	"github.com/Alias1177/Forecaster/internal/modelstore"
	"github.com/Alias1177/Forecaster/internal/retrain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", envOr("FORECASTER_CONFIG", "config.yaml"), "path to the YAML config")
	only := flag.String("timeframes", "", "comma separated subset of timeframes to train")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
	}

	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		log.Logger = log.Logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeframes := cfg.Strategy.Timeframes
	if *only != "" {
		timeframes = strings.Split(*only, ",")
	}

	client := binance.NewClient(binance.ClientOptions{
		APIKey:          cfg.Exchange.APIKey,
		APISecret:       cfg.Exchange.APISecret,
		BaseURL:         cfg.Exchange.BaseURL,
		RequestTimeout:  cfg.Exchange.RequestTimeout,
		RequestsPerSec:  cfg.Exchange.RequestsPerSec,
		MaxRetryTimeout: cfg.Exchange.MaxRetryTimeout,
	})

	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.New(database.ParamsFromConfig(cfg.Database))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
	}

	store, err := modelstore.Open(cfg.Training, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open model store")
	}

	pipeline := retrain.NewPipeline(client, cfg.Strategy.Symbols, retrain.PipelineOptions{
		HistoryLimit:          cfg.Training.HistoryLimit,
		MinSymbolCandles:      cfg.Training.MinSymbolCandles,
		MinSamples:            cfg.Training.MinSamples,
		MinClassRatio:         cfg.Training.MinClassRatio,
		ReturnThresholdFactor: cfg.Training.ReturnThresholdFactor,
		Concurrency:           cfg.Training.FetchConcurrency,
		Params:                cfg.Training.Params,
	})
	controller := retrain.NewController(retrain.Options{
		Timeframes: timeframes,
		Thresholds: market.RegimeThresholds{
			ADX:        cfg.Strategy.ADXThreshold,
			Volatility: cfg.Strategy.VolatilityThreshold,
		},
		RetrainInterval: cfg.Training.RetrainInterval,
		MinSpacing:      cfg.Training.MinRetrainSpacing,
	}, pipeline, store, nil)

	if err := controller.LoadModels(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load models")
	}

	failed := 0
	for _, tf := range timeframes {
		if err := controller.TrainNow(ctx, tf); err != nil {
			failed++
			log.Error().Err(err).Str("timeframe", tf).Msg("Training failed")
		}
	}

	for _, st := range controller.Statuses() {
		log.Info().
			Str("timeframe", st.Timeframe).
			Bool("has_model", st.HasModel).
			Int("samples", st.Samples).
			Float64("cv_accuracy", st.Accuracy).
			Msg("Model status")
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
