package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Alias1177/Forecaster/internal/metrics"
	"github.com/Alias1177/Forecaster/models"
	"github.com/prometheus/client_golang/prometheus"
)

type staticStatus []models.TimeframeStatus

func (s staticStatus) Statuses() []models.TimeframeStatus { return s }

func newTestServer() *Server {
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	rec.RecordSkip("cooldown")

	status := staticStatus{
		{Timeframe: "5m", Regime: models.RegimeFlat, State: "fresh", HasModel: true, Accuracy: 0.58},
		{Timeframe: "15m", Regime: models.RegimeUnknown, State: "stale"},
	}
	return New(":0", reg, status)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestServer(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	rec := get(t, newTestServer(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `forecaster_skips_total{reason="cooldown"} 1`) {
		t.Errorf("metrics body missing skip counter:\n%s", rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	rec := get(t, newTestServer(), "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Timeframes []models.TimeframeStatus `json:"timeframes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Timeframes) != 2 {
		t.Fatalf("timeframes = %d, want 2", len(body.Timeframes))
	}
	if got := body.Timeframes[0]; got.Timeframe != "5m" || !got.HasModel || got.Regime != models.RegimeFlat {
		t.Errorf("timeframes[0] = %+v", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	if rec := get(t, newTestServer(), "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
