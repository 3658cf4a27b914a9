package calculate

import "sort"

// Class labels
const (
	LabelDown = -1
	LabelFlat = 0
	LabelUp   = 1
)

// LabeledSet pairs feature vectors with next-bar direction labels
type LabeledSet struct {
	X         [][]float64
	Y         []int
	Threshold float64
	Counts    map[int]int
	Balanced  bool
}

// Label derives up/flat/down labels from the one-step-ahead return.
// The threshold adapts to the window: factor × mean normalized ATR.
// The final row has no forward return and is left out.
func Label(rows []Row, factor, minClassRatio float64) LabeledSet {
	set := LabeledSet{Counts: map[int]int{}}
	if len(rows) < 2 {
		return set
	}

	meanATR, ok := nanMean(Column(rows, func(r Row) float64 { return r.NormATR }))
	if !ok {
		return set
	}
	set.Threshold = factor * meanATR

	set.X = make([][]float64, 0, len(rows)-1)
	set.Y = make([]int, 0, len(rows)-1)
	for i := 0; i < len(rows)-1; i++ {
		ret := rows[i+1].Candle.Close/rows[i].Candle.Close - 1
		label := LabelFlat
		switch {
		case ret > set.Threshold:
			label = LabelUp
		case ret < -set.Threshold:
			label = LabelDown
		}
		set.X = append(set.X, rows[i].Vector())
		set.Y = append(set.Y, label)
	}

	set.Balanced, set.Counts = IsBalanced(set.Y, minClassRatio)
	return set
}

// IsBalanced requires all three classes with the rarest holding at least
// minClassRatio of the samples
func IsBalanced(y []int, minClassRatio float64) (bool, map[int]int) {
	counts := map[int]int{}
	for _, label := range y {
		counts[label]++
	}
	if len(counts) < 3 {
		return false, counts
	}
	minCount := len(y)
	for _, c := range counts {
		if c < minCount {
			minCount = c
		}
	}
	return float64(minCount) >= minClassRatio*float64(len(y)), counts
}

// Classes returns the distinct labels in ascending order
func Classes(y []int) []int {
	seen := map[int]bool{}
	var out []int
	for _, label := range y {
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	sort.Ints(out)
	return out
}
