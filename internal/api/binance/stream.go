package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Alias1177/Forecaster/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// KlineHandler receives every closed kline
type KlineHandler func(models.KlineEvent)

// Stream subscribes to kline channels for every (symbol, timeframe) pair
type Stream struct {
	url            string
	symbols        map[string]string // exchange symbol -> configured symbol
	timeframes     []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         zerolog.Logger
}

// StreamOptions holds options for creating a new Stream
type StreamOptions struct {
	URL            string
	Symbols        []string
	Timeframes     []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// NewStream creates a kline stream
func NewStream(opts StreamOptions) *Stream {
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = 3 * time.Minute
	}

	symbols := make(map[string]string, len(opts.Symbols))
	for _, s := range opts.Symbols {
		symbols[models.ExchangeSymbol(s)] = s
	}

	return &Stream{
		url:            opts.URL,
		symbols:        symbols,
		timeframes:     opts.Timeframes,
		reconnectDelay: opts.ReconnectDelay,
		pingInterval:   opts.PingInterval,
		logger:         log.With().Str("component", "binance_stream").Logger(),
	}
}

// Channels lists the subscription names, e.g. "btcusdt@kline_5m"
func (s *Stream) Channels() []string {
	channels := make([]string, 0, len(s.symbols)*len(s.timeframes))
	for exchangeSymbol := range s.symbols {
		for _, tf := range s.timeframes {
			channels = append(channels, fmt.Sprintf("%s@kline_%s", strings.ToLower(exchangeSymbol), tf))
		}
	}
	return channels
}

// Run consumes the stream until ctx is done, reconnecting after every failure
func (s *Stream) Run(ctx context.Context, handle KlineHandler) error {
	operation := func() error {
		err := s.session(ctx, handle)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		s.logger.Warn().Err(err).Dur("reconnect_in", wait).Msg("Stream disconnected")
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.NewConstantBackOff(s.reconnectDelay), ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// session runs one connection; it returns when the connection fails
func (s *Stream) session(ctx context.Context, handle KlineHandler) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeRequest{Method: "SUBSCRIBE", Params: s.Channels(), ID: 1}); err != nil {
		return fmt.Errorf("stream subscribe: %w", err)
	}
	s.logger.Info().Int("channels", len(s.symbols)*len(s.timeframes)).Msg("Stream subscribed")

	done := make(chan struct{})
	defer close(done)

	// ping loop; closing the connection on ctx unblocks ReadMessage
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream read: %w", err)
		}

		event, ok, err := s.parseKline(data)
		if err != nil {
			s.logger.Debug().Err(err).Msg("Ignoring malformed frame")
			continue
		}
		if ok {
			handle(event)
		}
	}
}

// Binance reuses letters in both cases ("t"/"T", "l"/"L", "v"/"V"), so every
// key needs its own exact-case field or encoding/json folds it into the wrong one.
type klinePayload struct {
	StartTime      int64  `json:"t"`
	CloseTime      int64  `json:"T"`
	Symbol         string `json:"s"`
	Interval       string `json:"i"`
	FirstTradeID   int64  `json:"f"`
	LastTradeID    int64  `json:"L"`
	Open           string `json:"o"`
	Close          string `json:"c"`
	High           string `json:"h"`
	Low            string `json:"l"`
	Volume         string `json:"v"`
	Trades         int64  `json:"n"`
	Closed         bool   `json:"x"`
	QuoteVolume    string `json:"q"`
	TakerBuyVolume string `json:"V"`
	TakerBuyQuote  string `json:"Q"`
	Ignore         string `json:"B"`
}

type klineMessage struct {
	Event     string       `json:"e"`
	EventTime int64        `json:"E"`
	Symbol    string       `json:"s"`
	Kline     klinePayload `json:"k"`
}

// parseKline decodes a frame. ok is false for acks, other events and
// klines that are still forming.
func (s *Stream) parseKline(data []byte) (models.KlineEvent, bool, error) {
	var msg klineMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.KlineEvent{}, false, err
	}
	if msg.Event != "kline" || !msg.Kline.Closed {
		return models.KlineEvent{}, false, nil
	}

	symbol, known := s.symbols[msg.Kline.Symbol]
	if !known {
		return models.KlineEvent{}, false, nil
	}

	return models.KlineEvent{
		Symbol:    symbol,
		Timeframe: msg.Kline.Interval,
		Candle: models.Candle{
			Timestamp: time.UnixMilli(msg.Kline.StartTime).UTC(),
			Open:      parseFloat(msg.Kline.Open),
			High:      parseFloat(msg.Kline.High),
			Low:       parseFloat(msg.Kline.Low),
			Close:     parseFloat(msg.Kline.Close),
			Volume:    parseFloat(msg.Kline.Volume),
		},
	}, true, nil
}
