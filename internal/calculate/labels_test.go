package calculate

import (
	"math"
	"testing"

	"github.com/Alias1177/Forecaster/models"
)

func rowsFromCloses(closes []float64, normATR float64) []Row {
	rows := make([]Row, len(closes))
	for i, c := range closes {
		rows[i] = Row{Candle: models.Candle{Close: c}, NormATR: normATR}
	}
	return rows
}

func TestLabel(t *testing.T) {
	// threshold = 0.5 * 0.004 = 0.002
	rows := rowsFromCloses([]float64{100, 100.5, 100, 100, 100.5, 100.6}, 0.004)
	set := Label(rows, 0.5, 0.1)

	if math.Abs(set.Threshold-0.002) > 1e-12 {
		t.Errorf("Threshold = %v, want 0.002", set.Threshold)
	}
	want := []int{LabelUp, LabelDown, LabelFlat, LabelUp, LabelFlat}
	if len(set.Y) != len(want) {
		t.Fatalf("len(Y) = %d, want %d", len(set.Y), len(want))
	}
	for i := range want {
		if set.Y[i] != want[i] {
			t.Errorf("Y[%d] = %d, want %d", i, set.Y[i], want[i])
		}
	}
	if len(set.X) != len(set.Y) {
		t.Errorf("len(X) = %d, len(Y) = %d, want equal", len(set.X), len(set.Y))
	}
	if !set.Balanced {
		t.Errorf("Balanced = false, counts %v", set.Counts)
	}
}

func TestIsBalanced(t *testing.T) {
	tests := []struct {
		name  string
		y     []int
		ratio float64
		want  bool
	}{
		{name: "two classes", y: []int{1, 1, -1, -1}, ratio: 0.1, want: false},
		{name: "three even classes", y: []int{1, 0, -1, 1, 0, -1}, ratio: 0.3, want: true},
		{name: "minority too small", y: []int{1, 1, 1, 1, 1, 1, 1, 1, 0, -1}, ratio: 0.2, want: false},
		{name: "minority at ratio", y: []int{1, 1, 1, 1, 1, 1, 1, 1, 0, -1}, ratio: 0.1, want: true},
		{name: "empty", y: nil, ratio: 0.1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := IsBalanced(tt.y, tt.ratio); got != tt.want {
				t.Errorf("IsBalanced() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindowHelpers(t *testing.T) {
	values := []float64{5, 1, 7, 3, 9, 2}

	if got, ok := WindowMax(values, 4, 3); !ok || got != 9 {
		t.Errorf("WindowMax(end=4) = %v, %v, want 9", got, ok)
	}
	if got, ok := WindowMax(values, 3, 3); !ok || got != 7 {
		t.Errorf("WindowMax(end=3) = %v, %v, want 7", got, ok)
	}
	if got, ok := WindowMin(values, 5, 2); !ok || got != 2 {
		t.Errorf("WindowMin(end=5) = %v, %v, want 2", got, ok)
	}
	if _, ok := WindowMin(values, 1, 3); ok {
		t.Error("WindowMin with short history should fail")
	}
	if got, ok := TailMean(values, 2); !ok || got != 5.5 {
		t.Errorf("TailMean() = %v, %v, want 5.5", got, ok)
	}
	if _, ok := TailMean(values, 10); ok {
		t.Error("TailMean with short history should fail")
	}
}

func TestSchemaVersionStable(t *testing.T) {
	if SchemaVersion != schemaVersion(FeatureNames) {
		t.Errorf("SchemaVersion = %v, want deterministic value", SchemaVersion)
	}
	if SchemaVersion == schemaVersion(FeatureNames[1:]) {
		t.Error("SchemaVersion should change when the feature list changes")
	}
}
