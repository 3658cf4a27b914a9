package ml

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Params control the softmax regression fit
type Params struct {
	Epochs       int     `yaml:"epochs" default:"300"`
	LearningRate float64 `yaml:"learning_rate" default:"0.1"`
	L2           float64 `yaml:"l2" default:"0.001"`
	Folds        int     `yaml:"folds" default:"5"`
	Seed         int64   `yaml:"seed" default:"42"`
}

// DefaultParams mirror the yaml defaults
func DefaultParams() Params {
	return Params{Epochs: 300, LearningRate: 0.1, L2: 0.001, Folds: 5, Seed: 42}
}

// Classifier is a multinomial logistic regression over standardized features.
// Classes are weighted inversely to their frequency during the fit.
type Classifier struct {
	Classes []int       `json:"classes"`
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// FitClassifier trains on already scaled features
func FitClassifier(X [][]float64, y []int, p Params) (*Classifier, error) {
	n := len(X)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("fit classifier: %d samples, %d labels", n, len(y))
	}
	classes := uniqueSorted(y)
	if len(classes) < 2 {
		return nil, fmt.Errorf("fit classifier: need at least 2 classes, got %v", classes)
	}
	d := len(X[0])
	k := len(classes)

	index := make(map[int]int, k)
	for i, c := range classes {
		index[c] = i
	}

	counts := make([]float64, k)
	for _, label := range y {
		counts[index[label]]++
	}
	sampleWeight := make([]float64, n)
	for i, label := range y {
		sampleWeight[i] = float64(n) / (float64(k) * counts[index[label]])
	}

	data := make([]float64, 0, n*d)
	for i, row := range X {
		if len(row) != d {
			return nil, fmt.Errorf("fit classifier: row %d has %d features, want %d", i, len(row), d)
		}
		data = append(data, row...)
	}
	xm := mat.NewDense(n, d, data)

	target := mat.NewDense(n, k, nil)
	for i, label := range y {
		target.Set(i, index[label], 1)
	}

	w := mat.NewDense(k, d, nil)
	b := make([]float64, k)

	var logits, grad, gradW mat.Dense
	probs := mat.NewDense(n, k, nil)
	for epoch := 0; epoch < p.Epochs; epoch++ {
		logits.Mul(xm, w.T())
		for i := 0; i < n; i++ {
			row := logits.RawRowView(i)
			floats.Add(row, b)
			softmaxInto(probs.RawRowView(i), row)
		}

		grad.Sub(probs, target)
		for i := 0; i < n; i++ {
			floats.Scale(sampleWeight[i]/float64(n), grad.RawRowView(i))
		}

		gradW.Mul(grad.T(), xm)
		var decay mat.Dense
		decay.Scale(p.L2, w)
		gradW.Add(&gradW, &decay)
		gradW.Scale(p.LearningRate, &gradW)
		w.Sub(w, &gradW)

		for c := 0; c < k; c++ {
			b[c] -= p.LearningRate * floats.Sum(mat.Col(nil, c, &grad))
		}
	}

	clf := &Classifier{Classes: classes, Weights: make([][]float64, k), Bias: b}
	for c := 0; c < k; c++ {
		clf.Weights[c] = mat.Row(nil, c, w)
	}
	if !clf.finite() {
		return nil, fmt.Errorf("fit classifier: diverged")
	}
	return clf, nil
}

// PredictProba returns class probabilities aligned with Classes
func (c *Classifier) PredictProba(x []float64) ([]float64, error) {
	if len(c.Weights) == 0 || len(x) != len(c.Weights[0]) {
		return nil, fmt.Errorf("classifier expects %d features, got %d", c.features(), len(x))
	}
	logits := make([]float64, len(c.Classes))
	for i, w := range c.Weights {
		logits[i] = floats.Dot(w, x) + c.Bias[i]
	}
	probs := make([]float64, len(logits))
	softmaxInto(probs, logits)
	return probs, nil
}

// Predict returns the most probable class
func (c *Classifier) Predict(x []float64) (int, error) {
	probs, err := c.PredictProba(x)
	if err != nil {
		return 0, err
	}
	return c.Classes[floats.MaxIdx(probs)], nil
}

// Probability of a single class, 0 when the class was never seen
func (c *Classifier) Probability(probs []float64, class int) float64 {
	for i, cl := range c.Classes {
		if cl == class {
			return probs[i]
		}
	}
	return 0
}

func (c *Classifier) features() int {
	if len(c.Weights) == 0 {
		return 0
	}
	return len(c.Weights[0])
}

func (c *Classifier) finite() bool {
	for _, row := range c.Weights {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	for _, v := range c.Bias {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func softmaxInto(dst, logits []float64) {
	m := floats.Max(logits)
	var sum float64
	for i, v := range logits {
		dst[i] = math.Exp(v - m)
		sum += dst[i]
	}
	floats.Scale(1/sum, dst)
}

func uniqueSorted(y []int) []int {
	seen := map[int]bool{}
	var out []int
	for _, v := range y {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
