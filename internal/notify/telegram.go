package notify

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Alias1177/Forecaster/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// sender is the part of tgbotapi.BotAPI the notifier uses
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts signals to a single chat
type Telegram struct {
	bot    sender
	chatID int64
	logger zerolog.Logger
}

// NewTelegram connects to the Bot API with the given token
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("Authorized on Telegram account")
	return newTelegram(bot, chatID), nil
}

func newTelegram(bot sender, chatID int64) *Telegram {
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: log.With().Str("component", "telegram_notifier").Logger(),
	}
}

// Send formats and posts the signal
func (t *Telegram) Send(ctx context.Context, s models.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, FormatSignal(s))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("%w: telegram send: %v", models.ErrTransportFailure, err)
	}

	t.logger.Info().
		Str("symbol", s.Symbol).
		Str("timeframe", s.Timeframe).
		Str("direction", string(s.Direction)).
		Msg("Signal sent")
	return nil
}

// FormatSignal renders the chat message for a signal
func FormatSignal(s models.Signal) string {
	places := PricePrecision(s.EntryPrice)
	low, high := EntryRange(s.EntryPrice, s.NormATR)

	side := "Buy"
	if s.Direction == models.DirectionSell {
		side = "Sell"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📩 %s %s | %s\n", s.Symbol, s.Timeframe, models.PositionHorizon(s.Timeframe))
	fmt.Fprintf(&b, "💰 Price: $%s\n", formatPrice(s.EntryPrice, places))
	fmt.Fprintf(&b, "🔥 Signal strength: %.2f\n", s.Score)
	fmt.Fprintf(&b, "📉 Entry: $%s–$%s\n", formatPrice(low, places), formatPrice(high, places))
	fmt.Fprintf(&b, "🔥 Signal: %s\n", side)
	fmt.Fprintf(&b, "⏳ Take profit: $%s\n", formatPrice(s.TakeProfit, places))
	fmt.Fprintf(&b, "❌ Stop loss: $%s", formatPrice(s.StopLoss, places))
	return b.String()
}

// EntryRange is entry ± min(0.5% of entry, half an ATR)
func EntryRange(entry, normATR float64) (float64, float64) {
	d := math.Min(0.005*entry, 0.5*normATR*entry)
	return entry - d, entry + d
}

// PricePrecision picks decimal places by price magnitude
func PricePrecision(price float64) int32 {
	switch {
	case price < 0.001:
		return 8
	case price < 1:
		return 6
	default:
		return 3
	}
}

func formatPrice(price float64, places int32) string {
	return decimal.NewFromFloat(price).StringFixed(places)
}
