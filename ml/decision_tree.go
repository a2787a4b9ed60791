package ml

import (
	"errors"
	"math/rand"
	"sort"
)

// RegressionTree is a CART tree split on squared-error reduction. Nodes live
// in a flat slice; children are absolute indices into it.
type RegressionTree struct {
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	MaxFeatures     int   `json:"max_features"`
	RandomState     int64 `json:"random_state"`

	Nodes []TreeNode `json:"nodes"`

	importances []float64
}

// TreeNode is a split or a leaf. Children are indexes into the node slice.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	Samples    int     `json:"samples"`
	IsLeaf     bool    `json:"is_leaf"`
}

// NewRegressionTree considers maxFeatures random columns per split, all when 0.
func NewRegressionTree(maxDepth, minSamplesSplit, minSamplesLeaf, maxFeatures int, seed int64) *RegressionTree {
	return &RegressionTree{
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		MinSamplesLeaf:  minSamplesLeaf,
		MaxFeatures:     maxFeatures,
		RandomState:     seed,
	}
}

func (dt *RegressionTree) Fit(features [][]float64, targets []float64) error {
	indices := make([]int, len(features))
	for i := range indices {
		indices[i] = i
	}
	return dt.fitIndices(features, targets, indices)
}

// fitIndices trains on the rows named by indices, which may repeat (bootstrap).
func (dt *RegressionTree) fitIndices(features [][]float64, targets []float64, indices []int) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	if len(indices) == 0 {
		return errors.New("no samples to fit")
	}
	if dt.MinSamplesSplit < 2 {
		dt.MinSamplesSplit = 2
	}
	if dt.MinSamplesLeaf < 1 {
		dt.MinSamplesLeaf = 1
	}
	featureCount := len(features[0])
	if dt.MaxFeatures <= 0 || dt.MaxFeatures > featureCount {
		dt.MaxFeatures = featureCount
	}

	b := &treeBuilder{
		tree:        dt,
		features:    features,
		targets:     targets,
		rnd:         rand.New(rand.NewSource(dt.RandomState)),
		importances: make([]float64, featureCount),
	}
	dt.Nodes = nil
	b.build(append([]int(nil), indices...), 0)
	dt.importances = b.importances
	return nil
}

func (dt *RegressionTree) Predict(features []float64) (float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, ErrNotFitted
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

// Depth of the deepest leaf; the root alone has depth 0.
func (dt *RegressionTree) Depth() int {
	if len(dt.Nodes) == 0 {
		return 0
	}
	var walk func(idx, depth int) int
	walk = func(idx, depth int) int {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return depth
		}
		return max(walk(node.LeftChild, depth+1), walk(node.RightChild, depth+1))
	}
	return walk(0, 0)
}

type treeBuilder struct {
	tree        *RegressionTree
	features    [][]float64
	targets     []float64
	rnd         *rand.Rand
	importances []float64
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	leftCount int
}

func (b *treeBuilder) build(indices []int, depth int) int {
	sum, sumSq := 0.0, 0.0
	for _, i := range indices {
		sum += b.targets[i]
		sumSq += b.targets[i] * b.targets[i]
	}
	n := len(indices)
	mean := sum / float64(n)
	sse := sumSq - sum*sum/float64(n)

	nodeIdx := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      mean,
		Samples:    n,
		IsLeaf:     true,
	})

	t := b.tree
	if (t.MaxDepth > 0 && depth >= t.MaxDepth) || n < t.MinSamplesSplit || n < 2*t.MinSamplesLeaf || sse <= 1e-12 {
		return nodeIdx
	}

	best, ok := b.findBestSplit(indices, sse)
	if !ok {
		return nodeIdx
	}

	left := make([]int, 0, best.leftCount)
	right := make([]int, 0, n-best.leftCount)
	for _, i := range indices {
		if b.features[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return nodeIdx
	}
	b.importances[best.feature] += best.gain

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)
	node := &b.tree.Nodes[nodeIdx]
	node.FeatureIdx = best.feature
	node.Threshold = best.threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.IsLeaf = false
	return nodeIdx
}

func (b *treeBuilder) findBestSplit(indices []int, parentSSE float64) (split, bool) {
	featureCount := len(b.features[0])
	candidates := b.rnd.Perm(featureCount)[:b.tree.MaxFeatures]
	minLeaf := b.tree.MinSamplesLeaf
	n := len(indices)

	best := split{feature: -1}
	sorted := make([]int, n)
	for _, feature := range candidates {
		copy(sorted, indices)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.features[sorted[a]][feature] < b.features[sorted[c]][feature]
		})

		totalSum, totalSq := 0.0, 0.0
		for _, i := range sorted {
			totalSum += b.targets[i]
			totalSq += b.targets[i] * b.targets[i]
		}

		leftSum, leftSq := 0.0, 0.0
		for pos := 0; pos < n-1; pos++ {
			y := b.targets[sorted[pos]]
			leftSum += y
			leftSq += y * y

			leftN := pos + 1
			rightN := n - leftN
			if leftN < minLeaf || rightN < minLeaf {
				continue
			}
			current := b.features[sorted[pos]][feature]
			next := b.features[sorted[pos+1]][feature]
			if current == next {
				continue
			}

			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			leftSSE := leftSq - leftSum*leftSum/float64(leftN)
			rightSSE := rightSq - rightSum*rightSum/float64(rightN)
			gain := parentSSE - leftSSE - rightSSE
			if gain > best.gain+1e-12 {
				threshold := current + (next-current)/2
				if threshold == next {
					threshold = current
				}
				best = split{feature: feature, threshold: threshold, gain: gain, leftCount: leftN}
			}
		}
	}
	return best, best.feature >= 0
}
