package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Alias1177/Forecaster/internal/calculate"
	"github.com/Alias1177/Forecaster/internal/ml"
	"github.com/Alias1177/Forecaster/models"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
// Decision thresholds have no struct defaults and must come from the file.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	Training   TrainingConfig   `yaml:"training"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
}

type ExchangeConfig struct {
	BaseURL             string         `yaml:"base_url" default:"https://api.binance.com" validate:"url"`
	StreamURL           string         `yaml:"stream_url" default:"wss://stream.binance.com:9443/ws" validate:"url"`
	APIKey              string         `yaml:"api_key"`
	APISecret           string         `yaml:"api_secret"`
	RequestTimeout      time.Duration  `yaml:"request_timeout" default:"10s"`
	RequestsPerSec      int            `yaml:"requests_per_sec" default:"10" validate:"gt=0"`
	MaxRetryTimeout     time.Duration  `yaml:"max_retry_timeout" default:"30s"`
	ReconnectDelay      time.Duration  `yaml:"reconnect_delay" default:"5s"`
	WindowSize          int            `yaml:"window_size" default:"100" validate:"gte=100"`
	StreamEnabled       bool           `yaml:"stream_enabled" default:"true"`
	ValidateCredentials bool           `yaml:"validate_credentials" default:"true"`
	Universe            UniverseConfig `yaml:"universe"`
}

// UniverseConfig filters the configured symbols at startup
type UniverseConfig struct {
	Enabled        bool     `yaml:"enabled" default:"true"`
	QuoteAsset     string   `yaml:"quote_asset" default:"USDT"`
	MinQuoteVolume float64  `yaml:"min_quote_volume" default:"10000"`
	MinVolatility  float64  `yaml:"min_volatility" default:"0.0001"`
	Fallback       []string `yaml:"fallback"`
}

// HourRange is a [Start, End) window of UTC hours
type HourRange struct {
	Start int `yaml:"start" validate:"gte=0,lte=23"`
	End   int `yaml:"end" validate:"gte=1,lte=24"`
}

// Contains reports whether hour falls inside the range
func (h HourRange) Contains(hour int) bool {
	return h.Start <= hour && hour < h.End
}

type StrategyConfig struct {
	Symbols                 []string          `yaml:"symbols" validate:"required,min=1,dive,required"`
	Timeframes              []string          `yaml:"timeframes" validate:"required,min=1,dive,required"`
	HigherTimeframes        map[string]string `yaml:"higher_timeframes"`
	UpdateInterval          time.Duration     `yaml:"update_interval" validate:"gt=0"`
	MinLiquidity            float64           `yaml:"min_liquidity" validate:"gt=0"`
	SpreadThreshold         float64           `yaml:"spread_threshold" validate:"gt=0"`
	LowLiquidityHours       []HourRange       `yaml:"low_liquidity_hours" validate:"dive"`
	MinRRRatio              float64           `yaml:"min_rr_ratio" validate:"gt=0"`
	MinSignalInterval       time.Duration     `yaml:"min_signal_interval" validate:"gt=0"`
	MinStopSize             float64           `yaml:"min_stop_size" validate:"gt=0,lt=1"`
	MinTakeSize             float64           `yaml:"min_take_size" validate:"gt=0,lt=1"`
	MaxTakeRange            float64           `yaml:"max_take_range" validate:"gt=0"`
	VolatilityThreshold     float64           `yaml:"volatility_threshold" validate:"gt=0"`
	ADXThreshold            float64           `yaml:"adx_threshold" validate:"gt=0"`
	ScoreThreshold          float64           `yaml:"score_threshold" validate:"gt=0,lt=1"`
	MaxSignalsPerCycle      int               `yaml:"max_signals_per_cycle" validate:"gt=0"`
	MinATRFactor            float64           `yaml:"min_atr_factor" validate:"gt=0"`
	VolumeThreshold         float64           `yaml:"volume_threshold" validate:"gt=0"`
	BreakoutWindow          int               `yaml:"breakout_window" validate:"gt=0"`
	SupportResistanceWindow int               `yaml:"support_resistance_window" validate:"gt=0"`
	AnalysisLimit           int               `yaml:"analysis_limit" default:"100" validate:"gte=100"`
	HigherTimeframeLimit    int               `yaml:"higher_timeframe_limit" default:"100" validate:"gte=50"`
}

type TrainingConfig struct {
	RetrainInterval       time.Duration `yaml:"retrain_interval" validate:"gt=0"`
	MinRetrainSpacing     time.Duration `yaml:"min_retrain_spacing" default:"1h"`
	FailureBackoff        time.Duration `yaml:"failure_backoff" default:"5m"`
	HistoryLimit          int           `yaml:"history_limit" validate:"gte=100"`
	MinClassRatio         float64       `yaml:"min_class_ratio" validate:"gt=0,lt=1"`
	ReturnThresholdFactor float64       `yaml:"return_threshold_factor" validate:"gt=0"`
	MinSamples            int           `yaml:"min_samples" default:"100" validate:"gt=0"`
	MinSymbolCandles      int           `yaml:"min_symbol_candles" default:"100" validate:"gt=0"`
	Workers               int           `yaml:"workers" default:"1" validate:"gt=0"`
	FetchConcurrency      int           `yaml:"fetch_concurrency" default:"4" validate:"gt=0"`
	Store                 string        `yaml:"store" default:"file" validate:"oneof=file postgres"`
	ModelDir              string        `yaml:"model_dir" default:"models"`
	Params                ml.Params     `yaml:"params"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"forecaster.signals"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"forecaster"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Host     string `yaml:"host" default:"localhost"`
	Port     string `yaml:"port" default:"5432"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	Name     string `yaml:"name" default:"forecaster"`
	SSLMode  string `yaml:"sslmode" default:"disable"`
}

type ServerConfig struct {
	Enabled         bool          `yaml:"enabled" default:"true"`
	Addr            string        `yaml:"addr" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

type SupervisorConfig struct {
	MaxRestarts  int           `yaml:"max_restarts" default:"10" validate:"gte=0"`
	RestartDelay time.Duration `yaml:"restart_delay" default:"5s"`
}

var validate = validator.New()

// Load reads the YAML file at path, applies defaults and environment
// overrides, then validates the result
func Load(path string) (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse builds a validated Config from YAML bytes
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// applyEnv lets secrets and a few operational values come from the environment
func (c *Config) applyEnv() {
	c.Exchange.APIKey = getEnvWithDefault("BINANCE_API_KEY", c.Exchange.APIKey)
	c.Exchange.APISecret = getEnvWithDefault("BINANCE_API_SECRET", c.Exchange.APISecret)
	c.Telegram.BotToken = getEnvWithDefault("TELEGRAM_BOT_TOKEN", c.Telegram.BotToken)
	c.Telegram.ChatID = getEnvInt64WithDefault("TELEGRAM_CHAT_ID", c.Telegram.ChatID)
	c.Telegram.Enabled = getEnvBoolWithDefault("TELEGRAM_ENABLED", c.Telegram.Enabled)
	c.Redis.Addr = getEnvWithDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvWithDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Database.URL = getEnvWithDefault("DATABASE_URL", c.Database.URL)
	c.Database.Host = getEnvWithDefault("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvWithDefault("DB_PORT", c.Database.Port)
	c.Database.User = getEnvWithDefault("DB_USER", c.Database.User)
	c.Database.Password = getEnvWithDefault("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnvWithDefault("DB_NAME", c.Database.Name)
	c.Log.Level = getEnvWithDefault("LOG_LEVEL", c.Log.Level)
	c.Training.ModelDir = getEnvWithDefault("MODEL_DIR", c.Training.ModelDir)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Strategy.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("TIMEFRAMES"); v != "" {
		c.Strategy.Timeframes = strings.Split(v, ",")
	}
}

// Validate checks struct tags and cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	for _, tf := range c.Strategy.Timeframes {
		if !models.IsValidTimeframe(tf) {
			return fmt.Errorf("strategy.timeframes: unknown timeframe %q", tf)
		}
		higher, mapped := models.HigherTimeframe(tf, c.Strategy.HigherTimeframes)
		if !mapped {
			return fmt.Errorf("strategy.higher_timeframes: no confirmation timeframe for %q", tf)
		}
		if !models.IsValidTimeframe(higher) {
			return fmt.Errorf("strategy.higher_timeframes: unknown timeframe %q for %q", higher, tf)
		}
	}

	// level windows end on the bar before the latest row
	rows := calculate.RowsFor(c.Strategy.AnalysisLimit)
	if w := c.Strategy.SupportResistanceWindow; w > rows-1 {
		return fmt.Errorf("strategy.support_resistance_window: %d does not fit the %d feature rows of analysis_limit %d", w, rows, c.Strategy.AnalysisLimit)
	}
	if w := c.Strategy.BreakoutWindow; w > rows-1 {
		return fmt.Errorf("strategy.breakout_window: %d does not fit the %d feature rows of analysis_limit %d", w, rows, c.Strategy.AnalysisLimit)
	}

	for i, r := range c.Strategy.LowLiquidityHours {
		if r.Start >= r.End {
			return fmt.Errorf("strategy.low_liquidity_hours[%d]: start %d must be before end %d", i, r.Start, r.End)
		}
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram: bot_token and chat_id are required when enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka: brokers are required when enabled")
	}
	if c.Training.Store == "postgres" && !c.Database.Enabled {
		return fmt.Errorf("training.store postgres requires database.enabled")
	}
	return nil
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
