package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes the bot's Prometheus metrics.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	signalsTotal  *prometheus.CounterVec
	skipsTotal    *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	retrainsTotal *prometheus.CounterVec
	klinesTotal   *prometheus.CounterVec
	modelAccuracy *prometheus.GaugeVec
	cycleDuration prometheus.Histogram
}

// New creates a recorder registered on reg
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		signalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_signals_total",
				Help: "Total number of accepted signals",
			},
			[]string{"symbol", "timeframe", "direction"},
		),
		skipsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_skips_total",
				Help: "Total number of analyses that ended without a signal",
			},
			[]string{"reason"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"kind"},
		),
		retrainsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_retrains_total",
				Help: "Total number of retraining attempts",
			},
			[]string{"timeframe", "result"},
		),
		klinesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_stream_klines_total",
				Help: "Closed klines received from the stream",
			},
			[]string{"timeframe"},
		),
		modelAccuracy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forecaster_model_cv_accuracy",
				Help: "Cross-validated accuracy of the active model",
			},
			[]string{"timeframe"},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "forecaster_cycle_duration_seconds",
				Help:    "Duration of a full analysis cycle in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordSignal counts an accepted signal
func (r *Recorder) RecordSignal(symbol, timeframe, direction string) {
	if r == nil {
		return
	}
	r.signalsTotal.WithLabelValues(symbol, timeframe, direction).Inc()
}

// RecordSkip counts a rejected analysis by reason
func (r *Recorder) RecordSkip(reason string) {
	if r == nil {
		return
	}
	r.skipsTotal.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	if r == nil {
		return
	}
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordRetrain counts a retrain attempt; result is "ok" or an error kind
func (r *Recorder) RecordRetrain(timeframe, result string) {
	if r == nil {
		return
	}
	r.retrainsTotal.WithLabelValues(timeframe, result).Inc()
}

// RecordKline counts a closed kline from the stream
func (r *Recorder) RecordKline(timeframe string) {
	if r == nil {
		return
	}
	r.klinesTotal.WithLabelValues(timeframe).Inc()
}

// SetModelAccuracy publishes the CV accuracy of the active model
func (r *Recorder) SetModelAccuracy(timeframe string, accuracy float64) {
	if r == nil {
		return
	}
	r.modelAccuracy.WithLabelValues(timeframe).Set(accuracy)
}

// ObserveCycle records cycle latency in seconds.
func (r *Recorder) ObserveCycle(seconds float64) {
	if r == nil {
		return
	}
	r.cycleDuration.Observe(seconds)
}
