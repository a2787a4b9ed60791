package ml

import (
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"go.uber.org/multierr"
)

// ForestParams are the tunable hyperparameters of a RandomForest.
type ForestParams struct {
	NEstimators     int `json:"n_estimators"`
	MaxDepth        int `json:"max_depth"` // 0 => unlimited
	MinSamplesSplit int `json:"min_samples_split"`
	MinSamplesLeaf  int `json:"min_samples_leaf"`
	MaxFeatures     int `json:"max_features"` // 0 => a third of the features, at least one
}

func (p ForestParams) String() string {
	return fmt.Sprintf("n_estimators=%d max_depth=%d min_samples_split=%d min_samples_leaf=%d",
		p.NEstimators, p.MaxDepth, p.MinSamplesSplit, p.MinSamplesLeaf)
}

// RandomForest averages regression trees, each grown on a bootstrap resample
// with a random feature subset tried at every split.
type RandomForest struct {
	Params      ForestParams      `json:"params"`
	RandomState int64             `json:"random_state"`
	Trees       []*RegressionTree `json:"trees"`
	Importances []float64         `json:"importances"`
}

// NewRandomForest derives one seed per tree from seed.
func NewRandomForest(params ForestParams, seed int64) *RandomForest {
	if params.NEstimators <= 0 {
		params.NEstimators = 100
	}
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	if params.MinSamplesLeaf < 1 {
		params.MinSamplesLeaf = 1
	}
	return &RandomForest{Params: params, RandomState: seed}
}

// Fit grows the trees concurrently. Each tree owns a source seeded from the
// forest seed and its position, so results do not depend on scheduling.
func (rf *RandomForest) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return errors.New("randomforest: empty X")
	}
	n := len(X)
	if len(y) != n {
		return errors.New("randomforest: X and y length mismatch")
	}
	featureCount := len(X[0])
	maxFeatures := rf.Params.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = max(1, featureCount/3)
	}

	trees := make([]*RegressionTree, rf.Params.NEstimators)
	errs := make([]error, rf.Params.NEstimators)
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for i := range trees {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			treeRand := rand.New(rand.NewSource(rf.RandomState + int64(idx)))
			sample := make([]int, n)
			for j := range sample {
				sample[j] = treeRand.Intn(n)
			}
			tree := NewRegressionTree(rf.Params.MaxDepth, rf.Params.MinSamplesSplit, rf.Params.MinSamplesLeaf, maxFeatures, treeRand.Int63())
			if err := tree.fitIndices(X, y, sample); err != nil {
				errs[idx] = err
				return
			}
			trees[idx] = tree
		}(i)
	}
	wg.Wait()

	if err := multierr.Combine(errs...); err != nil {
		return err
	}
	rf.Trees = trees
	rf.Importances = averageImportances(trees, featureCount)
	return nil
}

// Predict averages the trees.
func (rf *RandomForest) Predict(features []float64) (float64, error) {
	if len(rf.Trees) == 0 {
		return 0, ErrNotFitted
	}
	sum := 0.0
	for _, tree := range rf.Trees {
		value, err := tree.Predict(features)
		if err != nil {
			return 0, err
		}
		sum += value
	}
	return sum / float64(len(rf.Trees)), nil
}

func (rf *RandomForest) PredictBatch(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		value, err := rf.Predict(row)
		if err != nil {
			return nil, err
		}
		out[i] = value
	}
	return out, nil
}

// averageImportances normalises each tree's impurity decrease to sum to one
// and averages across trees.
func averageImportances(trees []*RegressionTree, featureCount int) []float64 {
	out := make([]float64, featureCount)
	counted := 0
	for _, tree := range trees {
		total := 0.0
		for _, v := range tree.importances {
			total += v
		}
		if total == 0 {
			continue
		}
		for j, v := range tree.importances {
			out[j] += v / total
		}
		counted++
	}
	if counted > 0 {
		for j := range out {
			out[j] /= float64(counted)
		}
	}
	return out
}
