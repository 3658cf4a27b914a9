package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/Alias1177/Forecaster/internal/calculate"
	httpClient "github.com/Alias1177/Forecaster/internal/platform/http"
	"github.com/Alias1177/Forecaster/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// maxKlinesPerRequest is the exchange cap on a single klines call
	maxKlinesPerRequest = 1000
	// orderBookDepth is the number of levels summed for liquidity
	orderBookDepth = 5
	// activityCandles is the hourly history used by the universe filter
	activityCandles = 100
)

// Client is the Binance spot REST client
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *httpClient.Client
	logger     zerolog.Logger
	now        func() time.Time
}

// ClientOptions holds options for creating a new Binance client
type ClientOptions struct {
	APIKey          string
	APISecret       string
	BaseURL         string
	RequestTimeout  time.Duration
	RequestsPerSec  int
	MaxRetryTimeout time.Duration
}

// NewClient creates a new Binance API client
func NewClient(options ClientOptions) *Client {
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}

	return &Client{
		apiKey:    options.APIKey,
		secretKey: options.APISecret,
		baseURL:   baseURL,
		httpClient: httpClient.NewClient(httpClient.ClientOptions{
			Timeout:         options.RequestTimeout,
			RequestsPerSec:  options.RequestsPerSec,
			MaxRetryTimeout: options.MaxRetryTimeout,
		}),
		logger: log.With().Str("component", "binance_client").Logger(),
		now:    time.Now,
	}
}

// FetchCandles returns up to limit closed-or-forming candles, oldest first.
// Limits above the per-request cap are paged backwards with endTime.
func (c *Client) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		return nil, nil
	}

	var (
		candles []models.Candle
		endTime int64
	)
	for len(candles) < limit {
		batch := limit - len(candles)
		if batch > maxKlinesPerRequest {
			batch = maxKlinesPerRequest
		}

		params := url.Values{}
		params.Set("symbol", models.ExchangeSymbol(symbol))
		params.Set("interval", timeframe)
		params.Set("limit", strconv.Itoa(batch))
		if endTime > 0 {
			params.Set("endTime", strconv.FormatInt(endTime, 10))
		}

		c.logger.Debug().
			Str("symbol", symbol).
			Str("timeframe", timeframe).
			Int("limit", batch).
			Msg("Fetching klines")

		var raw [][]interface{}
		if err := c.httpClient.GetJSON(ctx, c.baseURL+"/api/v3/klines", params, nil, &raw); err != nil {
			return nil, c.classify(err, "klines "+symbol)
		}

		page, err := parseKlines(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing klines for %s: %w", symbol, err)
		}
		if len(page) == 0 {
			break
		}

		candles = append(page, candles...)
		if len(page) < batch {
			break
		}
		endTime = page[0].Timestamp.UnixMilli() - 1
	}

	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// parseKlines converts the positional kline arrays into candles
func parseKlines(raw [][]interface{}) ([]models.Candle, error) {
	candles := make([]models.Candle, 0, len(raw))
	for i, k := range raw {
		if len(k) < 6 {
			return nil, fmt.Errorf("kline %d: expected at least 6 fields, got %d", i, len(k))
		}
		openTime, ok := k[0].(float64)
		if !ok {
			return nil, fmt.Errorf("kline %d: invalid open time", i)
		}

		candle := models.Candle{
			Timestamp: time.UnixMilli(int64(openTime)).UTC(),
			Open:      parseFloat(k[1]),
			High:      parseFloat(k[2]),
			Low:       parseFloat(k[3]),
			Close:     parseFloat(k[4]),
			Volume:    parseFloat(k[5]),
		}
		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

type depthResponse struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

// FetchOrderBook summarises the top levels of the book.
// An empty side, a non-positive price or a crossed book is returned with Valid=false.
func (c *Client) FetchOrderBook(ctx context.Context, symbol string) (models.BookMetrics, error) {
	params := url.Values{}
	params.Set("symbol", models.ExchangeSymbol(symbol))
	params.Set("limit", strconv.Itoa(orderBookDepth))

	var depth depthResponse
	if err := c.httpClient.GetJSON(ctx, c.baseURL+"/api/v3/depth", params, nil, &depth); err != nil {
		return models.BookMetrics{}, c.classify(err, "depth "+symbol)
	}
	return BookMetricsFromLevels(parseLevels(depth.Bids), parseLevels(depth.Asks)), nil
}

// Level is a price and quantity pair
type Level struct {
	Price    float64
	Quantity float64
}

func parseLevels(raw [][]string) []Level {
	levels := make([]Level, 0, len(raw))
	for _, l := range raw {
		if len(l) < 2 {
			continue
		}
		levels = append(levels, Level{Price: parseFloat(l[0]), Quantity: parseFloat(l[1])})
	}
	return levels
}

// BookMetricsFromLevels computes liquidity as the quote value of the top five
// levels on both sides and spread as (bestAsk-bestBid)/bestBid
func BookMetricsFromLevels(bids, asks []Level) models.BookMetrics {
	invalid := models.BookMetrics{Spread: math.Inf(1)}
	if len(bids) == 0 || len(asks) == 0 {
		return invalid
	}

	bestBid, bestAsk := bids[0].Price, asks[0].Price
	if bestBid <= 0 || bestAsk <= 0 || bestAsk < bestBid {
		return invalid
	}

	var liquidity float64
	for i := 0; i < len(bids) && i < orderBookDepth; i++ {
		liquidity += bids[i].Price * bids[i].Quantity
	}
	for i := 0; i < len(asks) && i < orderBookDepth; i++ {
		liquidity += asks[i].Price * asks[i].Quantity
	}

	return models.BookMetrics{
		Liquidity: liquidity,
		Spread:    (bestAsk - bestBid) / bestBid,
		Valid:     true,
	}
}

// SymbolInfo is the subset of exchangeInfo the bot needs
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// ExchangeInfo returns tradable symbols keyed by exchange symbol
func (c *Client) ExchangeInfo(ctx context.Context) (map[string]SymbolInfo, error) {
	var resp struct {
		Symbols []SymbolInfo `json:"symbols"`
	}
	if err := c.httpClient.GetJSON(ctx, c.baseURL+"/api/v3/exchangeInfo", nil, nil, &resp); err != nil {
		return nil, c.classify(err, "exchangeInfo")
	}

	out := make(map[string]SymbolInfo, len(resp.Symbols))
	for _, s := range resp.Symbols {
		out[s.Symbol] = s
	}
	return out, nil
}

// ValidateCredentials performs a signed account call. Any rejection is
// reported as ErrInvalidCredentials.
func (c *Client) ValidateCredentials(ctx context.Context) error {
	if c.apiKey == "" || c.secretKey == "" {
		return fmt.Errorf("%w: api key or secret is empty", models.ErrInvalidCredentials)
	}

	params := url.Values{}
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	payload := params.Encode()

	// signature must follow the signed payload verbatim
	_, err := c.httpClient.Do(ctx, httpClient.Request{
		URL:     c.baseURL + "/api/v3/account?" + payload + "&signature=" + c.sign(payload),
		Headers: map[string]string{"X-MBX-APIKEY": c.apiKey},
	})
	if err != nil {
		var statusErr *httpClient.HTTPStatusError
		if errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusUnauthorized ||
			statusErr.StatusCode == http.StatusForbidden || statusErr.StatusCode == http.StatusBadRequest) {
			return fmt.Errorf("%w: %v", models.ErrInvalidCredentials, err)
		}
		return c.classify(err, "account")
	}

	c.logger.Info().Msg("API credentials validated")
	return nil
}

// sign creates the HMAC-SHA256 signature of the encoded query
func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// UniverseFilter controls LoadSymbols
type UniverseFilter struct {
	QuoteAsset     string
	MinQuoteVolume float64
	MinVolatility  float64
	Fallback       []string
}

// LoadSymbols keeps the configured symbols that are trading on the exchange
// with enough hourly quote volume and volatility. When nothing survives
// the fallback list is returned.
func (c *Client) LoadSymbols(ctx context.Context, symbols []string, f UniverseFilter) ([]string, error) {
	info, err := c.ExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}

	var selected []string
	for _, symbol := range symbols {
		si, ok := info[models.ExchangeSymbol(symbol)]
		if !ok || si.Status != "TRADING" {
			c.logger.Warn().Str("symbol", symbol).Msg("Symbol not tradable, skipping")
			continue
		}
		if f.QuoteAsset != "" && si.QuoteAsset != f.QuoteAsset {
			continue
		}

		candles, err := c.FetchCandles(ctx, symbol, "1h", activityCandles)
		if err != nil {
			c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch volume history")
			continue
		}

		quoteVolume, volatility := dailyActivity(candles)
		if quoteVolume <= f.MinQuoteVolume || volatility <= f.MinVolatility {
			c.logger.Info().
				Str("symbol", symbol).
				Float64("quote_volume", quoteVolume).
				Float64("volatility", volatility).
				Msg("Symbol filtered out")
			continue
		}
		selected = append(selected, symbol)
	}

	if len(selected) == 0 {
		c.logger.Warn().Strs("fallback", f.Fallback).Msg("No symbols passed the filter, using fallback")
		return append([]string(nil), f.Fallback...), nil
	}
	return selected, nil
}

// dailyActivity returns the mean hourly quote volume of the last day and the
// mean 20-period return stdev across the window
func dailyActivity(candles []models.Candle) (float64, float64) {
	closes := make([]float64, len(candles))
	quoteVolumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		quoteVolumes[i] = c.Close * c.Volume
	}

	quoteVolume, ok := calculate.TailMean(quoteVolumes, 24)
	if !ok {
		return 0, 0
	}
	volatility, ok := calculate.MeanReturnVolatility(closes, 20)
	if !ok {
		return quoteVolume, 0
	}
	return quoteVolume, volatility
}

// classify maps transport errors onto domain kinds
func (c *Client) classify(err error, op string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var statusErr *httpClient.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%s: %w: %v", op, models.ErrMarketUnavailable, err)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrTransportFailure, err)
}

func parseFloat(val interface{}) float64 {
	switch v := val.(type) {
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}
