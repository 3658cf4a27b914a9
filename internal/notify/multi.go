package notify

import (
	"context"
	"errors"

	"github.com/Alias1177/Forecaster/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Multi delivers to every notifier and joins their errors
type Multi []models.Notifier

// Send tries every notifier even when an earlier one fails
func (m Multi) Send(ctx context.Context, s models.Signal) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes signals to the application log. Used when no channel is configured.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a log-only notifier
func NewLog() *Log {
	return &Log{logger: log.With().Str("component", "signal_log").Logger()}
}

// Send logs the signal
func (l *Log) Send(_ context.Context, s models.Signal) error {
	l.logger.Info().
		Str("id", s.ID).
		Str("symbol", s.Symbol).
		Str("timeframe", s.Timeframe).
		Str("direction", string(s.Direction)).
		Float64("entry", s.EntryPrice).
		Float64("stop_loss", s.StopLoss).
		Float64("take_profit", s.TakeProfit).
		Float64("score", s.Score).
		Float64("rr", s.RiskReward).
		Msg("Signal")
	return nil
}
