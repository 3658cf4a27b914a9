package calculate

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Column extracts one field from every row
func Column(rows []Row, field func(Row) float64) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = field(r)
	}
	return out
}

// TailMean is the mean of the last window values, the rolling mean at the final index
func TailMean(values []float64, window int) (float64, bool) {
	if window <= 0 || len(values) < window {
		return 0, false
	}
	tail := values[len(values)-window:]
	if !finite(tail) {
		return 0, false
	}
	return stat.Mean(tail, nil), true
}

// WindowMax is the maximum over the window values ending at index end (inclusive)
func WindowMax(values []float64, end, window int) (float64, bool) {
	span, ok := windowAt(values, end, window)
	if !ok {
		return 0, false
	}
	return floats.Max(span), true
}

// WindowMin is the minimum over the window values ending at index end (inclusive)
func WindowMin(values []float64, end, window int) (float64, bool) {
	span, ok := windowAt(values, end, window)
	if !ok {
		return 0, false
	}
	return floats.Min(span), true
}

func windowAt(values []float64, end, window int) ([]float64, bool) {
	if window <= 0 || end >= len(values) || end-window+1 < 0 {
		return nil, false
	}
	span := values[end-window+1 : end+1]
	if !finite(span) {
		return nil, false
	}
	return span, true
}

// nanMean averages the finite entries, skipping NaN the way a dataframe mean does
func nanMean(values []float64) (float64, bool) {
	var sum float64
	var count int
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}
