package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Alias1177/Forecaster/internal/config"
	"github.com/Alias1177/Forecaster/internal/ml"
	"github.com/Alias1177/Forecaster/models"
	_ "github.com/lib/pq"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	// DSN, when set, is used as is and the other fields are ignored
	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ParamsFromConfig maps the database section of the config
func ParamsFromConfig(cfg config.DatabaseConfig) ConnectionParams {
	return ConnectionParams{
		DSN:      cfg.URL,
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		DBName:   cfg.Name,
		SSLMode:  cfg.SSLMode,
	}
}

// New creates a new database connection
func New(params ConnectionParams) (*DB, error) {
	connStr := params.DSN
	if connStr == "" {
		connStr = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
		)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS classifier_states (
			timeframe TEXT PRIMARY KEY,
			schema_version TEXT NOT NULL,
			payload BYTEA NOT NULL,
			samples INTEGER NOT NULL,
			accuracy DOUBLE PRECISION,
			trained_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			direction TEXT NOT NULL,
			regime TEXT,
			entry_price DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL,
			take_profit DOUBLE PRECISION NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			norm_atr DOUBLE PRECISION NOT NULL,
			rr_ratio DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS signals_symbol_created_idx ON signals (symbol, created_at DESC)`)
	return nil
}

// SaveClassifierState upserts the state for its timeframe
func (db *DB) SaveClassifierState(ctx context.Context, timeframe string, state *ml.State) error {
	payload, err := ml.Marshal(state)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO classifier_states (
			timeframe, schema_version, payload, samples, accuracy, trained_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (timeframe)
		DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			payload = EXCLUDED.payload,
			samples = EXCLUDED.samples,
			accuracy = EXCLUDED.accuracy,
			trained_at = EXCLUDED.trained_at
	`,
		timeframe, state.SchemaVersion, payload, state.Samples, state.Accuracy(), state.TrainedAt)

	return err
}

// GetClassifierState retrieves the state for a timeframe
func (db *DB) GetClassifierState(ctx context.Context, timeframe string) (*ml.State, error) {
	var payload []byte

	err := db.QueryRowContext(ctx, `
		SELECT payload
		FROM classifier_states
		WHERE timeframe = $1
	`, timeframe).Scan(&payload)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No model trained yet
		}
		return nil, err
	}

	return ml.Unmarshal(payload)
}

// RecordSignal stores an accepted signal
func (db *DB) RecordSignal(ctx context.Context, s models.Signal) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO signals (
			id, symbol, timeframe, direction, regime, entry_price, stop_loss,
			take_profit, score, norm_atr, rr_ratio, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`,
		s.ID, s.Symbol, s.Timeframe, string(s.Direction), string(s.Regime), s.EntryPrice, s.StopLoss,
		s.TakeProfit, s.Score, s.NormATR, s.RiskReward, s.CreatedAt)

	return err
}

// ModelStore adapts the database to the classifier store contract
type ModelStore struct {
	db *DB
}

// ModelStore returns a classifier store backed by this database
func (db *DB) ModelStore() *ModelStore {
	return &ModelStore{db: db}
}

// Load returns nil, nil when no state is stored
func (s *ModelStore) Load(ctx context.Context, timeframe string) (*ml.State, error) {
	return s.db.GetClassifierState(ctx, timeframe)
}

// Save upserts the state
func (s *ModelStore) Save(ctx context.Context, timeframe string, state *ml.State) error {
	return s.db.SaveClassifierState(ctx, timeframe, state)
}
