package models

import (
	"strings"
	"time"
)

// DefaultHigherTimeframe is used when a timeframe has no mapping
const DefaultHigherTimeframe = "1h"

var higherTimeframes = map[string]string{
	"5m":  "15m",
	"15m": "1h",
	"1h":  "4h",
	"4h":  "1d",
	"2h":  "8h",
	"8h":  "1d",
	"1d":  "1w",
}

// HigherTimeframes returns a copy of the built-in confirmation table
func HigherTimeframes() map[string]string {
	out := make(map[string]string, len(higherTimeframes))
	for k, v := range higherTimeframes {
		out[k] = v
	}
	return out
}

// HigherTimeframe looks tf up in overrides first, then in the built-in table.
// The bool is false when the fallback was used.
func HigherTimeframe(tf string, overrides map[string]string) (string, bool) {
	if v, ok := overrides[tf]; ok && v != "" {
		return v, true
	}
	if v, ok := higherTimeframes[tf]; ok {
		return v, true
	}
	return DefaultHigherTimeframe, false
}

// TimeframeDuration converts an exchange interval such as "15m" or "1d"
func TimeframeDuration(tf string) time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "8h":
		return 8 * time.Hour
	case "12h":
		return 12 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "3d":
		return 72 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	}
	return 0
}

// IsValidTimeframe reports whether tf is a known exchange interval
func IsValidTimeframe(tf string) bool {
	return TimeframeDuration(tf) > 0
}

// PositionHorizon labels the holding period implied by a timeframe
func PositionHorizon(tf string) string {
	switch tf {
	case "1h":
		return "Short-term"
	case "2h", "4h":
		return "Mid-term"
	default:
		return "Long-term"
	}
}

// ExchangeSymbol turns "BTC/USDT" into "BTCUSDT"
func ExchangeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

// QuoteAsset returns the part after the slash, or "" for unsplit symbols
func QuoteAsset(symbol string) string {
	if i := strings.Index(symbol, "/"); i >= 0 {
		return strings.ToUpper(symbol[i+1:])
	}
	return ""
}
