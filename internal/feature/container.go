package feature

import (
	"container/heap"
	"math"
	"slices"
	"sort"

	"github.com/524D/mzfeature/internal/graph"
	"github.com/524D/mzfeature/internal/isotope"
	"github.com/524D/mzfeature/internal/lcms"
)

// Params control which features a Container keeps
type Params struct {
	MinScore               float64
	Tolerance              lcms.Tolerance // ppm, for merging and isotope harmonics
	DuplicateMassTolerance float64        // Da
	DuplicateCoElution     float64        // co-elution fraction of a duplicate
	MergeCoElution         float64        // co-elution fraction of overlapping fragments
	MergeNetGap            float64        // maximum NET gap between disjoint fragments
}

// DefaultParams returns the default container parameters
func DefaultParams() Params {
	return Params{
		MinScore:               -10,
		Tolerance:              10,
		DuplicateMassTolerance: 1e-4,
		DuplicateCoElution:     0.7,
		MergeCoElution:         0.7,
		MergeNetGap:            0.005,
	}
}

// Container holds the scored features of a run, sorted by mass
type Container struct {
	par      Params
	features []*Feature
}

// NewContainer creates an empty container
func NewContainer(par Params) *Container {
	return &Container{par: par}
}

// Len returns the number of features in the container
func (c *Container) Len() int {
	return len(c.features)
}

// Features returns the features in mass order. The slice must not be
// modified.
func (c *Container) Features() []*Feature {
	return c.features
}

// Add stores f unless its score is below the threshold, it is not good
// enough, or a feature of the same mass that co-elutes with f is already
// stored. It reports whether f was stored.
func (c *Container) Add(f *Feature) bool {
	if f == nil || f.Score < c.par.MinScore || !f.GoodEnough {
		return false
	}
	lo := sort.Search(len(c.features), func(i int) bool {
		return c.features[i].Mass >= f.Mass-c.par.DuplicateMassTolerance
	})
	for i := lo; i < len(c.features) && c.features[i].Mass <= f.Mass+c.par.DuplicateMassTolerance; i++ {
		if f.CoElution(c.features[i]) >= c.par.DuplicateCoElution {
			return false
		}
	}
	pos := sort.Search(len(c.features), func(i int) bool { return c.features[i].Mass > f.Mass })
	c.features = slices.Insert(c.features, pos, f)
	return true
}

// massMatch reports whether the masses of a and b differ by at most the
// tolerance
func (c *Container) massMatch(a, b float64) bool {
	return math.Abs(a-b) <= c.par.Tolerance.Mz(math.Max(a, b))
}

// mergeable reports whether a and b are fragments of one feature
func (c *Container) mergeable(a, b *Feature) bool {
	if !c.massMatch(a.Mass, b.Mass) {
		return false
	}
	if ce := a.CoElution(b); ce > 0 {
		return ce >= c.par.MergeCoElution
	}
	return a.NetGap(b) <= c.par.MergeNetGap
}

// harmonic reports whether a and b differ by one or two isotopes
func (c *Container) harmonic(a, b *Feature) bool {
	d := math.Abs(a.Mass - b.Mass)
	tol := c.par.Tolerance.Mz(math.Max(a.Mass, b.Mass))
	for k := 1; k <= 2; k++ {
		if math.Abs(d-float64(k)*lcms.C13MinusC12) <= tol {
			return true
		}
	}
	return false
}

// GetFilteredFeatures merges fragmented features, resolves features that
// share peaks and returns the accepted features in mass order with ids
// numbered from 1. The container itself is not modified.
func (c *Container) GetFilteredFeatures(b Builder) []*Feature {
	merged := c.merge(b)
	accepted := c.resolveOverlaps(merged, b)
	sort.SliceStable(accepted, func(i, j int) bool {
		if accepted[i].Mass != accepted[j].Mass {
			return accepted[i].Mass < accepted[j].Mass
		}
		return accepted[i].Score > accepted[j].Score
	})
	out := make([]*Feature, len(accepted))
	for i, f := range accepted {
		g := *f
		g.ID = i + 1
		out[i] = &g
	}
	return out
}

// merge replaces each group of mergeable features by a feature rebuilt over
// the union of their bounds. The rebuilt feature never scores lower than the
// best member; if it cannot be built the best member is kept.
func (c *Container) merge(b Builder) []*Feature {
	if len(c.features) == 0 {
		return nil
	}
	keys := make([]float64, len(c.features))
	for i, f := range c.features {
		keys[i] = f.Mass
	}
	window := c.par.Tolerance.Mz(keys[len(keys)-1])
	groups := graph.ConnectedComponentsSorted(c.features, keys, window, c.mergeable)

	merged := make([]*Feature, 0, len(groups))
	for _, g := range groups {
		best := c.features[g[0]]
		if len(g) == 1 {
			merged = append(merged, best)
			continue
		}
		minScan, maxScan := best.MinScanNum, best.MaxScanNum
		minCharge, maxCharge := best.MinCharge, best.MaxCharge
		for _, i := range g[1:] {
			f := c.features[i]
			if f.Score > best.Score {
				best = f
			}
			minScan, maxScan = min(minScan, f.MinScanNum), max(maxScan, f.MaxScanNum)
			minCharge, maxCharge = min(minCharge, f.MinCharge), max(maxCharge, f.MaxCharge)
		}
		f := b.Build(best.Mass, minScan, maxScan, minCharge, maxCharge)
		if f == nil || !f.GoodEnough {
			merged = append(merged, best)
			continue
		}
		f.Score = math.Max(f.Score, best.Score)
		merged = append(merged, f)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Mass < merged[j].Mass })
	return merged
}

// overlapGraph links features that share a peak that is a major peak of at
// least one of them
func overlapGraph(features []*Feature) graph.Adjacency {
	adj := graph.NewAdjacency(len(features))
	owners := make(map[isotope.PeakKey][]int)
	for i, f := range features {
		for _, k := range f.MajorPeakKeys() {
			o := owners[k]
			if len(o) == 0 || o[len(o)-1] != i {
				owners[k] = append(o, i)
			}
		}
	}
	for j, f := range features {
		for _, k := range f.PeakKeys() {
			for _, i := range owners[k] {
				adj.Link(i, j)
			}
		}
	}
	return adj
}

const (
	statePending = iota
	stateAccepted
	stateRemoved
)

// resolveOverlaps accepts features per connected component of the overlap
// graph in order of descending score. Neighbours of an accepted feature are
// accepted too if they are isotope harmonics of it; the other neighbours lose
// the peaks of the accepted feature and are rescored.
func (c *Container) resolveOverlaps(features []*Feature, b Builder) []*Feature {
	adj := overlapGraph(features)
	cur := slices.Clone(features)
	state := make([]int, len(features))
	version := make([]int, len(features))
	var out []*Feature

	for _, comp := range adj.Components() {
		if len(comp) == 1 {
			out = append(out, cur[comp[0]])
			continue
		}
		q := &queue{}
		for _, i := range comp {
			heap.Push(q, entry{idx: i, score: cur[i].Score})
		}
		for q.Len() > 0 {
			e := heap.Pop(q).(entry)
			if state[e.idx] != statePending || e.version != version[e.idx] {
				continue
			}
			state[e.idx] = stateAccepted
			out = append(out, cur[e.idx])
			work := []int{e.idx}
			for len(work) > 0 {
				a := work[0]
				work = work[1:]
				claimed := make(map[isotope.PeakKey]bool)
				for _, k := range cur[a].PeakKeys() {
					claimed[k] = true
				}
				for _, j := range adj[a] {
					if state[j] != statePending {
						continue
					}
					if c.harmonic(cur[a], cur[j]) && cur[j].Score >= c.par.MinScore {
						state[j] = stateAccepted
						out = append(out, cur[j])
						work = append(work, j)
						continue
					}
					r := b.Rescore(cur[j], claimed)
					if r == nil || r.Score < c.par.MinScore || !r.GoodEnough {
						state[j] = stateRemoved
						continue
					}
					cur[j] = r
					version[j]++
					heap.Push(q, entry{idx: j, score: r.Score, version: version[j]})
				}
			}
		}
	}
	return out
}

type entry struct {
	idx     int
	score   float64
	version int
}

// queue orders entries by descending score, then ascending index
type queue []entry

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].score != q[j].score {
		return q[i].score > q[j].score
	}
	return q[i].idx < q[j].idx
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(entry)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}
