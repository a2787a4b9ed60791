package ml

import (
	"context"
	"errors"
	"math"
	"math/rand"
)

// QuickGrid is the small search space used where training latency matters.
func QuickGrid() []ForestParams {
	return []ForestParams{
		{NEstimators: 80, MaxDepth: 12, MinSamplesSplit: 2, MinSamplesLeaf: 1},
	}
}

// FullGrid is the cross-validated search space used without quick mode.
func FullGrid() []ForestParams {
	var grid []ForestParams
	for _, n := range []int{200, 300} {
		for _, depth := range []int{12, 20} {
			for _, minSplit := range []int{2, 5} {
				grid = append(grid, ForestParams{
					NEstimators:     n,
					MaxDepth:        depth,
					MinSamplesSplit: minSplit,
					MinSamplesLeaf:  1,
				})
			}
		}
	}
	return grid
}

// SearchResult is the winning candidate and its mean CV R2.
type SearchResult struct {
	Params ForestParams
	// Score is the mean cross-validated R2, NaN when only one candidate was given.
	Score float64
}

// GridSearch picks the candidate with the best mean R2 over k folds of train.
// Each fold refits the preprocessor on its own training part.
func GridSearch(ctx context.Context, train *Dataset, candidates []ForestParams, folds int, seed int64) (SearchResult, error) {
	if len(candidates) == 0 {
		return SearchResult{}, errors.New("grid search: no candidates")
	}
	if len(candidates) == 1 {
		return SearchResult{Params: candidates[0], Score: math.NaN()}, nil
	}
	if folds < 2 {
		folds = 3
	}
	if train.Len() < folds {
		return SearchResult{}, errors.New("grid search: fewer rows than folds")
	}

	order := rand.New(rand.NewSource(seed)).Perm(train.Len())
	partition := KFold(order, folds)

	best := SearchResult{Score: math.Inf(-1)}
	for _, params := range candidates {
		if err := ctx.Err(); err != nil {
			return SearchResult{}, err
		}
		total := 0.0
		for k := range partition {
			var fitIdx []int
			for other, fold := range partition {
				if other != k {
					fitIdx = append(fitIdx, fold...)
				}
			}
			pipeline, err := FitPipeline(train.Subset(fitIdx), params, seed)
			if err != nil {
				return SearchResult{}, err
			}
			holdout := train.Subset(partition[k])
			predicted, err := pipeline.PredictBatch(holdout.X)
			if err != nil {
				return SearchResult{}, err
			}
			total += r2Score(holdout.Y, predicted)
		}
		score := total / float64(len(partition))
		if score > best.Score {
			best = SearchResult{Params: params, Score: score}
		}
	}
	return best, nil
}
