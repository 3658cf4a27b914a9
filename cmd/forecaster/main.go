package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Alias1177/Forecaster/internal/analysis/market"
	"github.com/Alias1177/Forecaster/internal/api/binance"
	"github.com/Alias1177/Forecaster/internal/config"
	"github.com/Alias1177/Forecaster/internal/cooldown"
	"github.com/Alias1177/Forecaster/internal/database"
	"github.com/Alias1177/Forecaster/internal/engine"
	"github.com/Alias1177/Forecaster/internal/metrics"
	"github.com/Alias1177/Forecaster/internal/modelstore"
	"github.com/Alias1177/Forecaster/internal/notify"
	"github.com/Alias1177/Forecaster/internal/retrain"
	"github.com/Alias1177/Forecaster/internal/server"
	"github.com/Alias1177/Forecaster/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", envOr("FORECASTER_CONFIG", "config.yaml"), "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
	}
	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := binance.NewClient(binance.ClientOptions{
		APIKey:          cfg.Exchange.APIKey,
		APISecret:       cfg.Exchange.APISecret,
		BaseURL:         cfg.Exchange.BaseURL,
		RequestTimeout:  cfg.Exchange.RequestTimeout,
		RequestsPerSec:  cfg.Exchange.RequestsPerSec,
		MaxRetryTimeout: cfg.Exchange.MaxRetryTimeout,
	})

	if cfg.Exchange.ValidateCredentials {
		if err := client.ValidateCredentials(ctx); err != nil {
			log.Fatal().Err(err).Msg("Exchange credentials rejected")
		}
		log.Info().Msg("Exchange credentials verified")
	}

	symbols := cfg.Strategy.Symbols
	if u := cfg.Exchange.Universe; u.Enabled {
		loaded, err := client.LoadSymbols(ctx, symbols, binance.UniverseFilter{
			QuoteAsset:     u.QuoteAsset,
			MinQuoteVolume: u.MinQuoteVolume,
			MinVolatility:  u.MinVolatility,
			Fallback:       u.Fallback,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Symbol universe filter failed, using configured symbols")
		} else {
			symbols = loaded
		}
	}
	log.Info().Strs("symbols", symbols).Strs("timeframes", cfg.Strategy.Timeframes).Msg("Trading universe")

	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.New(database.ParamsFromConfig(cfg.Database))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("Connected to database")
	}

	store, err := modelstore.Open(cfg.Training, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open model store")
	}

	var tracker cooldown.Tracker = cooldown.NewMemoryTracker()
	if cfg.Redis.Enabled {
		rt, err := cooldown.NewRedisTracker(cooldown.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Strategy.MinSignalInterval,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer rt.Close()
		tracker = rt
	}

	notifier, closeNotifier := buildNotifier(cfg)
	defer closeNotifier()

	var journal models.SignalJournal
	if db != nil {
		journal = db
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.New(reg)

	pipeline := retrain.NewPipeline(client, symbols, retrain.PipelineOptions{
		HistoryLimit:          cfg.Training.HistoryLimit,
		MinSymbolCandles:      cfg.Training.MinSymbolCandles,
		MinSamples:            cfg.Training.MinSamples,
		MinClassRatio:         cfg.Training.MinClassRatio,
		ReturnThresholdFactor: cfg.Training.ReturnThresholdFactor,
		Concurrency:           cfg.Training.FetchConcurrency,
		Params:                cfg.Training.Params,
	})
	controller := retrain.NewController(retrain.Options{
		Timeframes: cfg.Strategy.Timeframes,
		Thresholds: market.RegimeThresholds{
			ADX:        cfg.Strategy.ADXThreshold,
			Volatility: cfg.Strategy.VolatilityThreshold,
		},
		RetrainInterval: cfg.Training.RetrainInterval,
		MinSpacing:      cfg.Training.MinRetrainSpacing,
		FailureBackoff:  cfg.Training.FailureBackoff,
		Workers:         cfg.Training.Workers,
	}, pipeline, store, rec)

	if err := controller.LoadModels(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load models")
	}
	controller.EnsureModels(ctx)

	var windows *engine.WindowStore
	if cfg.Exchange.StreamEnabled {
		windows = engine.NewWindowStore(cfg.Exchange.WindowSize)
	}

	eng := engine.New(engine.OptionsFromConfig(cfg), client, controller, tracker, windows, rec)
	cycle := engine.NewCycle(eng, engine.CycleOptions{
		Symbols:    symbols,
		Timeframes: cfg.Strategy.Timeframes,
		MaxSignals: cfg.Strategy.MaxSignalsPerCycle,
	}, notifier, journal, rec)

	var ops *server.Server
	if cfg.Server.Enabled {
		ops = server.New(cfg.Server.Addr, reg, controller)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return controller.Run(gctx)
	})

	if windows != nil {
		stream := binance.NewStream(binance.StreamOptions{
			URL:            cfg.Exchange.StreamURL,
			Symbols:        symbols,
			Timeframes:     cfg.Strategy.Timeframes,
			ReconnectDelay: cfg.Exchange.ReconnectDelay,
		})
		g.Go(func() error {
			return stream.Run(gctx, cycle.HandleKline)
		})
	}

	g.Go(func() error {
		return engine.Supervise(gctx, "analysis_cycle", cfg.Supervisor.MaxRestarts, cfg.Supervisor.RestartDelay,
			func(ctx context.Context) error {
				return cycle.Run(ctx, cfg.Strategy.UpdateInterval)
			})
	})

	if ops != nil {
		g.Go(ops.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return ops.Shutdown(shutdownCtx)
		})
	}

	log.Info().Dur("interval", cfg.Strategy.UpdateInterval).Msg("Forecaster started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Forecaster stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Forecaster stopped")
}

// buildNotifier fans out to every enabled channel, or logs when none is
func buildNotifier(cfg *config.Config) (models.Notifier, func()) {
	var (
		multi   notify.Multi
		closers []func() error
	)

	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Telegram notifier")
		}
		multi = append(multi, tg)
	}
	if cfg.Kafka.Enabled {
		k, err := notify.NewKafka(notify.KafkaOptions{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Kafka notifier")
		}
		multi = append(multi, k)
		closers = append(closers, k.Close)
	}
	if len(multi) == 0 {
		multi = append(multi, notify.NewLog())
	}

	return multi, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn().Err(err).Msg("Failed to close notifier")
			}
		}
	}
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
