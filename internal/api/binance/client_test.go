package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/Alias1177/Forecaster/models"
)

func newTestClient(baseURL string) *Client {
	return NewClient(ClientOptions{
		APIKey:          "key",
		APISecret:       "secret",
		BaseURL:         baseURL,
		RequestTimeout:  2 * time.Second,
		RequestsPerSec:  1000,
		MaxRetryTimeout: 50 * time.Millisecond,
	})
}

// klineServer serves total one-minute bars starting at t=0
func klineServer(t *testing.T, total int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			http.NotFound(w, r)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit > maxKlinesPerRequest {
			http.Error(w, "limit too large", http.StatusBadRequest)
			return
		}
		end := total - 1
		if v := r.URL.Query().Get("endTime"); v != "" {
			ms, _ := strconv.ParseInt(v, 10, 64)
			end = int(ms / 60000)
		}
		start := end - limit + 1
		if start < 0 {
			start = 0
		}

		var out [][]interface{}
		for i := start; i <= end; i++ {
			p := 100 + float64(i%10)
			out = append(out, []interface{}{
				int64(i) * 60000,
				fmt.Sprintf("%.2f", p),
				fmt.Sprintf("%.2f", p+1),
				fmt.Sprintf("%.2f", p-1),
				fmt.Sprintf("%.2f", p+0.5),
				"10.5",
				int64(i)*60000 + 59999,
			})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func TestFetchCandles(t *testing.T) {
	srv := klineServer(t, 30)
	defer srv.Close()

	candles, err := newTestClient(srv.URL).FetchCandles(context.Background(), "BTC/USDT", "1m", 10)
	if err != nil {
		t.Fatalf("FetchCandles() error = %v", err)
	}
	if len(candles) != 10 {
		t.Fatalf("len(candles) = %d, want 10", len(candles))
	}

	last := candles[9]
	if !last.Timestamp.Equal(time.UnixMilli(29 * 60000).UTC()) {
		t.Errorf("last timestamp = %v, want minute 29", last.Timestamp)
	}
	if last.Open != 109 || last.High != 110 || last.Low != 108 || last.Close != 109.5 || last.Volume != 10.5 {
		t.Errorf("last candle = %+v, want o=109 h=110 l=108 c=109.5 v=10.5", last)
	}
}

func TestFetchCandlesPaginates(t *testing.T) {
	srv := klineServer(t, 1200)
	defer srv.Close()

	candles, err := newTestClient(srv.URL).FetchCandles(context.Background(), "BTC/USDT", "1m", 1500)
	if err != nil {
		t.Fatalf("FetchCandles() error = %v", err)
	}
	if len(candles) != 1200 {
		t.Fatalf("len(candles) = %d, want 1200", len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i].Timestamp.After(candles[i-1].Timestamp) {
			t.Fatalf("candles not strictly ordered at %d", i)
		}
	}

	trimmed, err := newTestClient(srv.URL).FetchCandles(context.Background(), "BTC/USDT", "1m", 1100)
	if err != nil {
		t.Fatalf("FetchCandles() error = %v", err)
	}
	if len(trimmed) != 1100 {
		t.Errorf("len(trimmed) = %d, want 1100", len(trimmed))
	}
}

func TestFetchCandlesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "server error", status: http.StatusInternalServerError, want: models.ErrTransportFailure},
		{name: "unknown symbol", status: http.StatusBadRequest, want: models.ErrMarketUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, tt.status)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).FetchCandles(context.Background(), "NOPE/USDT", "5m", 10)
			if !errors.Is(err, tt.want) {
				t.Errorf("FetchCandles() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFetchOrderBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("depth limit = %v, want 5", got)
		}
		_, _ = w.Write([]byte(`{"bids":[["100","10"],["99","5"]],"asks":[["101","2"]]}`))
	}))
	defer srv.Close()

	book, err := newTestClient(srv.URL).FetchOrderBook(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("FetchOrderBook() error = %v", err)
	}
	if !book.Valid {
		t.Fatal("book.Valid = false, want true")
	}
	if math.Abs(book.Liquidity-1697) > 1e-9 {
		t.Errorf("Liquidity = %v, want 1697", book.Liquidity)
	}
	if math.Abs(book.Spread-0.01) > 1e-12 {
		t.Errorf("Spread = %v, want 0.01", book.Spread)
	}
}

func TestBookMetricsFromLevels(t *testing.T) {
	tests := []struct {
		name  string
		bids  []Level
		asks  []Level
		valid bool
	}{
		{name: "empty bids", asks: []Level{{Price: 101, Quantity: 1}}},
		{name: "empty asks", bids: []Level{{Price: 100, Quantity: 1}}},
		{name: "zero bid", bids: []Level{{Price: 0, Quantity: 1}}, asks: []Level{{Price: 101, Quantity: 1}}},
		{name: "crossed", bids: []Level{{Price: 102, Quantity: 1}}, asks: []Level{{Price: 101, Quantity: 1}}},
		{name: "valid", bids: []Level{{Price: 100, Quantity: 1}}, asks: []Level{{Price: 100.1, Quantity: 1}}, valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BookMetricsFromLevels(tt.bids, tt.asks)
			if got.Valid != tt.valid {
				t.Errorf("Valid = %v, want %v", got.Valid, tt.valid)
			}
			if !tt.valid && !math.IsInf(got.Spread, 1) {
				t.Errorf("Spread = %v, want +Inf", got.Spread)
			}
		})
	}

	// only the first five levels per side count
	var bids, asks []Level
	for i := 0; i < 8; i++ {
		bids = append(bids, Level{Price: 100, Quantity: 1})
		asks = append(asks, Level{Price: 100, Quantity: 1})
	}
	if got := BookMetricsFromLevels(bids, asks).Liquidity; got != 1000 {
		t.Errorf("Liquidity = %v, want 1000", got)
	}
}

func TestValidateCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-MBX-APIKEY") != "key" {
			http.Error(w, `{"code":-2015,"msg":"Invalid API-key"}`, http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		if q.Get("timestamp") == "" || q.Get("signature") == "" {
			http.Error(w, `{"code":-1102}`, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"canTrade":true}`))
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).ValidateCredentials(context.Background()); err != nil {
		t.Errorf("ValidateCredentials() error = %v, want nil", err)
	}

	bad := newTestClient(srv.URL)
	bad.apiKey = "wrong"
	if err := bad.ValidateCredentials(context.Background()); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Errorf("ValidateCredentials() error = %v, want ErrInvalidCredentials", err)
	}

	empty := NewClient(ClientOptions{BaseURL: srv.URL})
	if err := empty.ValidateCredentials(context.Background()); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Errorf("ValidateCredentials() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestSign(t *testing.T) {
	c := newTestClient("http://unused")
	// HMAC-SHA256("secret", "timestamp=1")
	got := c.sign("timestamp=1")
	if len(got) != 64 {
		t.Errorf("sign() length = %d, want 64", len(got))
	}
	if got != c.sign("timestamp=1") {
		t.Error("sign() is not deterministic")
	}
	if got == c.sign("timestamp=2") {
		t.Error("sign() ignores payload")
	}
}

func TestLoadSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/exchangeInfo":
			_, _ = w.Write([]byte(`{"symbols":[
				{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"},
				{"symbol":"ETHUSDT","status":"BREAK","baseAsset":"ETH","quoteAsset":"USDT"},
				{"symbol":"DOGEUSDT","status":"TRADING","baseAsset":"DOGE","quoteAsset":"USDT"}
			]}`))
		case "/api/v3/klines":
			var out [][]interface{}
			for i := 0; i < 100; i++ {
				price, volume := 100+float64(i%3), "500"
				if r.URL.Query().Get("symbol") == "DOGEUSDT" {
					price, volume = 0.1, "1"
				}
				out = append(out, []interface{}{
					int64(i) * 3600000, "100", "103", "99", strconv.FormatFloat(price, 'f', -1, 64), volume,
				})
			}
			_ = json.NewEncoder(w).Encode(out)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	filter := UniverseFilter{QuoteAsset: "USDT", MinQuoteVolume: 10000, MinVolatility: 0.0001, Fallback: []string{"BTC/USDT", "ETH/USDT"}}
	c := newTestClient(srv.URL)

	got, err := c.LoadSymbols(context.Background(), []string{"BTC/USDT", "ETH/USDT", "DOGE/USDT", "XYZ/USDT"}, filter)
	if err != nil {
		t.Fatalf("LoadSymbols() error = %v", err)
	}
	if len(got) != 1 || got[0] != "BTC/USDT" {
		t.Errorf("LoadSymbols() = %v, want [BTC/USDT]", got)
	}

	got, err = c.LoadSymbols(context.Background(), []string{"DOGE/USDT"}, filter)
	if err != nil {
		t.Fatalf("LoadSymbols() error = %v", err)
	}
	if len(got) != 2 || got[1] != "ETH/USDT" {
		t.Errorf("LoadSymbols() = %v, want fallback", got)
	}
}
