// Package tree grows regression trees from per-sample gradients and hessians.
//
// A single growth routine serves both CART-style regression trees (gradient
// -y, hessian 1, no regularisation, which reduces to variance reduction) and
// the boosted trees in package ensemble (objective gradients, L1/L2 leaf
// regularisation, leaf-count limits).
package tree

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Node is one node of a flattened tree. Leaves have Left == Right == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Gain      float64
	Samples   int
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool {
	return n.Left < 0
}

// Tree is a binary regression tree stored as a slice of nodes; Nodes[0] is the root.
type Tree struct {
	Nodes []Node
}

// PredictRow walks the tree for a single sample. Values equal to the
// threshold go left.
func (t *Tree) PredictRow(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return 0
		}
		l, r := walk(n.Left), walk(n.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

// NumLeaves counts leaf nodes.
func (t *Tree) NumLeaves() int {
	c := 0
	for _, n := range t.Nodes {
		if n.IsLeaf() {
			c++
		}
	}
	return c
}

// GrowConfig controls tree growth. Zero values mean "no limit" for the
// limits and "no regularisation" for Lambda and Alpha.
type GrowConfig struct {
	MaxDepth        int
	MaxLeaves       int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MinChildWeight is the minimum hessian sum in each child.
	MinChildWeight float64
	MinGain        float64
	Lambda         float64
	Alpha          float64

	// Features restricts the candidate columns (nil = all columns).
	Features []int
	// MaxFeatures samples this many candidates per split (0 = all of Features).
	MaxFeatures int
	Rand        *rand.Rand
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

type frontier struct {
	node    int
	depth   int
	indices []int
	best    *split
}

// Grow builds a tree on the rows of X listed in indices. Growth is leaf-wise:
// the leaf with the largest gain is split next, which only matters when
// MaxLeaves is set.
func Grow(X *mat.Dense, grad, hess []float64, indices []int, cfg GrowConfig) *Tree {
	_, cols := X.Dims()
	features := cfg.Features
	if features == nil {
		features = make([]int, cols)
		for j := range features {
			features[j] = j
		}
	}
	g := &grower{X: X, grad: grad, hess: hess, cfg: cfg, features: features}

	t := &Tree{}
	root := g.newLeaf(t, indices)
	open := []*frontier{{node: root, depth: 0, indices: indices}}
	open[0].best = g.findSplit(open[0])
	leaves := 1

	for {
		if cfg.MaxLeaves > 0 && leaves >= cfg.MaxLeaves {
			break
		}
		bi := -1
		for i, f := range open {
			if f.best != nil && (bi < 0 || f.best.gain > open[bi].best.gain) {
				bi = i
			}
		}
		if bi < 0 {
			break
		}
		f := open[bi]
		open = append(open[:bi], open[bi+1:]...)

		s := f.best
		left := g.newLeaf(t, s.left)
		right := g.newLeaf(t, s.right)
		n := &t.Nodes[f.node]
		n.Feature, n.Threshold, n.Gain = s.feature, s.threshold, s.gain
		n.Left, n.Right = left, right
		leaves++

		for _, child := range []*frontier{
			{node: left, depth: f.depth + 1, indices: s.left},
			{node: right, depth: f.depth + 1, indices: s.right},
		} {
			child.best = g.findSplit(child)
			open = append(open, child)
		}
	}
	return t
}

type grower struct {
	X        *mat.Dense
	grad     []float64
	hess     []float64
	cfg      GrowConfig
	features []int
}

func (g *grower) sums(indices []int) (G, H float64) {
	for _, i := range indices {
		G += g.grad[i]
		H += g.hess[i]
	}
	return G, H
}

func (g *grower) newLeaf(t *Tree, indices []int) int {
	G, H := g.sums(indices)
	t.Nodes = append(t.Nodes, Node{
		Left:    -1,
		Right:   -1,
		Value:   LeafValue(G, H, g.cfg.Lambda, g.cfg.Alpha),
		Samples: len(indices),
	})
	return len(t.Nodes) - 1
}

func (g *grower) findSplit(f *frontier) *split {
	cfg := g.cfg
	n := len(f.indices)
	if cfg.MaxDepth > 0 && f.depth >= cfg.MaxDepth {
		return nil
	}
	minSplit := cfg.MinSamplesSplit
	if minSplit < 2 {
		minSplit = 2
	}
	if n < minSplit {
		return nil
	}

	candidates := g.features
	if cfg.MaxFeatures > 0 && cfg.MaxFeatures < len(candidates) && cfg.Rand != nil {
		perm := cfg.Rand.Perm(len(candidates))[:cfg.MaxFeatures]
		picked := make([]int, len(perm))
		for i, p := range perm {
			picked[i] = candidates[p]
		}
		candidates = picked
	}

	G, H := g.sums(f.indices)
	var best *split
	for _, feature := range candidates {
		s := g.bestSplitForFeature(f.indices, feature, G, H)
		if s != nil && (best == nil || s.gain > best.gain) {
			best = s
		}
	}
	if best == nil || best.gain <= cfg.MinGain || best.gain <= 0 {
		return nil
	}
	return best
}

type sample struct {
	value float64
	idx   int
}

func (g *grower) bestSplitForFeature(indices []int, feature int, G, H float64) *split {
	cfg := g.cfg
	values := make([]sample, len(indices))
	for i, idx := range indices {
		values[i] = sample{value: g.X.At(idx, feature), idx: idx}
	}
	sort.SliceStable(values, func(i, j int) bool {
		return values[i].value < values[j].value
	})

	minLeaf := cfg.MinSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}
	parent := score(G, H, cfg.Lambda, cfg.Alpha)

	bestGain := math.Inf(-1)
	bestPos := -1
	var GL, HL float64
	for i := 0; i < len(values)-1; i++ {
		GL += g.grad[values[i].idx]
		HL += g.hess[values[i].idx]

		// Skip if same value
		if values[i].value == values[i+1].value {
			continue
		}
		nLeft := i + 1
		if nLeft < minLeaf || len(values)-nLeft < minLeaf {
			continue
		}
		GR, HR := G-GL, H-HL
		if HL < cfg.MinChildWeight || HR < cfg.MinChildWeight {
			continue
		}

		gain := 0.5 * (score(GL, HL, cfg.Lambda, cfg.Alpha) + score(GR, HR, cfg.Lambda, cfg.Alpha) - parent)
		if gain > bestGain {
			bestGain = gain
			bestPos = i
		}
	}
	if bestPos < 0 {
		return nil
	}

	s := &split{
		feature:   feature,
		threshold: (values[bestPos].value + values[bestPos+1].value) / 2,
		gain:      bestGain,
		left:      make([]int, 0, bestPos+1),
		right:     make([]int, 0, len(values)-bestPos-1),
	}
	// keep the original (caller) order inside each child
	for _, idx := range indices {
		if g.X.At(idx, feature) <= s.threshold {
			s.left = append(s.left, idx)
		} else {
			s.right = append(s.right, idx)
		}
	}
	return s
}

func thresholdL1(G, alpha float64) float64 {
	if alpha <= 0 {
		return G
	}
	if G > alpha {
		return G - alpha
	}
	if G < -alpha {
		return G + alpha
	}
	return 0
}

func score(G, H, lambda, alpha float64) float64 {
	denom := H + lambda
	if denom <= 0 {
		return 0
	}
	g := thresholdL1(G, alpha)
	return g * g / denom
}

// LeafValue returns the regularised Newton step -G/(H+lambda) with the L1
// soft threshold applied to G.
func LeafValue(G, H, lambda, alpha float64) float64 {
	denom := H + lambda
	if denom < 1e-10 {
		denom = 1e-10
	}
	return -thresholdL1(G, alpha) / denom
}
