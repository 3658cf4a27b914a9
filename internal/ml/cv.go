package ml

import (
	"fmt"
	"math/rand"
)

// Fold is one train/validation split
type Fold struct {
	Train []int
	Val   []int
}

// CVReport summarises a cross-validation run
type CVReport struct {
	Accuracy    float64   `json:"accuracy"`
	FoldScores  []float64 `json:"fold_scores"`
	FailedFolds int       `json:"failed_folds"`
}

// KFold shuffles 0..n-1 with seed and splits it into k folds.
// The first n%k folds get one extra sample.
func KFold(n, k int, seed int64) ([]Fold, error) {
	if k < 2 || n < k {
		return nil, fmt.Errorf("kfold: cannot split %d samples into %d folds", n, k)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	folds := make([]Fold, 0, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		val := append([]int(nil), perm[start:start+size]...)
		train := make([]int, 0, n-size)
		train = append(train, perm[:start]...)
		train = append(train, perm[start+size:]...)
		folds = append(folds, Fold{Train: train, Val: val})
		start += size
	}
	return folds, nil
}

// CrossValidate fits one classifier per fold and averages validation accuracy.
// A fold whose training part holds a single class, or whose fit fails,
// counts as failed and is left out of the mean.
func CrossValidate(X [][]float64, y []int, p Params) (CVReport, error) {
	folds, err := KFold(len(X), p.Folds, p.Seed)
	if err != nil {
		return CVReport{}, err
	}

	var report CVReport
	for _, fold := range folds {
		trainX, trainY := subset(X, y, fold.Train)
		if len(uniqueSorted(trainY)) < 2 {
			report.FailedFolds++
			continue
		}
		clf, err := FitClassifier(trainX, trainY, p)
		if err != nil {
			report.FailedFolds++
			continue
		}

		var correct int
		for _, i := range fold.Val {
			pred, err := clf.Predict(X[i])
			if err == nil && pred == y[i] {
				correct++
			}
		}
		report.FoldScores = append(report.FoldScores, float64(correct)/float64(len(fold.Val)))
	}

	if len(report.FoldScores) == 0 {
		return report, fmt.Errorf("cross validation: all %d folds failed", len(folds))
	}
	var sum float64
	for _, s := range report.FoldScores {
		sum += s
	}
	report.Accuracy = sum / float64(len(report.FoldScores))
	return report, nil
}

func subset(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	outX := make([][]float64, len(idx))
	outY := make([]int, len(idx))
	for j, i := range idx {
		outX[j] = X[i]
		outY[j] = y[i]
	}
	return outX, outY
}
