package models

import "context"

// MarketData fetches candles and order-book summaries
type MarketData interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	FetchOrderBook(ctx context.Context, symbol string) (BookMetrics, error)
}

// Notifier delivers accepted signals downstream
type Notifier interface {
	Send(ctx context.Context, signal Signal) error
}

// SignalJournal keeps an audit trail of accepted signals
type SignalJournal interface {
	RecordSignal(ctx context.Context, signal Signal) error
}
