package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/Alias1177/Forecaster/models"
)

// Class labels the score is built from
const (
	classDown = -1
	classUp   = 1
)

// State is the persisted (model, scaler) pair for one timeframe
type State struct {
	Timeframe     string      `json:"timeframe"`
	SchemaVersion string      `json:"schema_version"`
	Scaler        Scaler      `json:"scaler"`
	Model         *Classifier `json:"model"`
	CV            CVReport    `json:"cv"`
	Samples       int         `json:"samples"`
	ClassCounts   map[int]int `json:"class_counts"`
	TrainedAt     time.Time   `json:"trained_at"`
}

// Store persists classifier state by timeframe.
// Load returns nil, nil when nothing is stored.
type Store interface {
	Load(ctx context.Context, timeframe string) (*State, error)
	Save(ctx context.Context, timeframe string, state *State) error
}

// Train standardizes X, reports k-fold accuracy, then fits on all samples.
// A failed cross-validation is reported in CV but does not stop the final fit.
func Train(timeframe, schema string, X [][]float64, y []int, p Params, now time.Time) (*State, error) {
	scaler, err := FitScaler(X)
	if err != nil {
		return nil, err
	}
	scaled, err := scaler.TransformAll(X)
	if err != nil {
		return nil, err
	}

	report, cvErr := CrossValidate(scaled, y, p)
	if cvErr != nil {
		report.Accuracy = math.NaN()
	}

	clf, err := FitClassifier(scaled, y, p)
	if err != nil {
		return nil, fmt.Errorf("final fit: %w", err)
	}

	counts := map[int]int{}
	for _, label := range y {
		counts[label]++
	}

	return &State{
		Timeframe:     timeframe,
		SchemaVersion: schema,
		Scaler:        scaler,
		Model:         clf,
		CV:            report,
		Samples:       len(X),
		ClassCounts:   counts,
		TrainedAt:     now.UTC(),
	}, nil
}

// Compatible checks the state was fit on the given feature schema
func (s *State) Compatible(schema string) error {
	if s == nil || s.Model == nil {
		return models.ErrModelUnready
	}
	if s.SchemaVersion != schema {
		return fmt.Errorf("%w: model %q, features %q", models.ErrSchemaMismatch, s.SchemaVersion, schema)
	}
	return nil
}

// Score is P(up) - P(down) for a raw feature row, in [-1, 1]
func (s *State) Score(x []float64) (float64, error) {
	if s == nil || s.Model == nil {
		return 0, models.ErrModelUnready
	}
	scaled, err := s.Scaler.Transform(x)
	if err != nil {
		return 0, err
	}
	probs, err := s.Model.PredictProba(scaled)
	if err != nil {
		return 0, err
	}
	return s.Model.Probability(probs, classUp) - s.Model.Probability(probs, classDown), nil
}

// Accuracy returns the cross-validated accuracy, 0 when it was not computed
func (s *State) Accuracy() float64 {
	if s == nil || math.IsNaN(s.CV.Accuracy) {
		return 0
	}
	return s.CV.Accuracy
}

// Marshal encodes the state for a store
func Marshal(s *State) ([]byte, error) {
	if math.IsNaN(s.CV.Accuracy) {
		cp := *s
		cp.CV.Accuracy = -1
		return json.Marshal(&cp)
	}
	return json.Marshal(s)
}

// Unmarshal decodes a stored state
func Unmarshal(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode classifier state: %w", err)
	}
	if s.CV.Accuracy < 0 {
		s.CV.Accuracy = math.NaN()
	}
	return &s, nil
}
