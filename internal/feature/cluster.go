package feature

import (
	"math"
	"sort"

	"github.com/524D/mzfeature/internal/deconv"
	"github.com/524D/mzfeature/internal/graph"
	"github.com/524D/mzfeature/internal/lcms"
)

// Bounds are the mass, scan and charge limits of a candidate cluster
type Bounds struct {
	Mass       float64
	MinScanNum int
	MaxScanNum int
	MinCharge  int
	MaxCharge  int
}

type candidate struct {
	deconv.Ms1Feature
	net float64
}

// Cluster groups the candidates of one species: masses within tol and
// elution times within elutionWindow NET. Groups are transitive.
func Cluster(cands []deconv.Ms1Feature, run lcms.Run, tol lcms.Tolerance, elutionWindow float64) [][]deconv.Ms1Feature {
	if len(cands) == 0 {
		return nil
	}
	nodes := make([]candidate, len(cands))
	for i, c := range cands {
		nodes[i] = candidate{Ms1Feature: c, net: run.Net(c.ScanNum)}
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Mass < nodes[j].Mass })
	keys := make([]float64, len(nodes))
	for i, n := range nodes {
		keys[i] = n.Mass
	}
	same := func(a, b candidate) bool {
		return math.Abs(a.Mass-b.Mass) <= tol.Mz(math.Max(a.Mass, b.Mass)) &&
			math.Abs(a.net-b.net) <= elutionWindow
	}
	groups := graph.ConnectedComponentsSorted(nodes, keys, tol.Mz(keys[len(keys)-1]), same)
	clusters := make([][]deconv.Ms1Feature, len(groups))
	for i, g := range groups {
		clusters[i] = make([]deconv.Ms1Feature, len(g))
		for j, k := range g {
			clusters[i][j] = nodes[k].Ms1Feature
		}
	}
	return clusters
}

// ClusterBounds returns the bounds of a cluster. The mass is that of the most
// abundant member; the scan range is widened by one scan on both sides.
func ClusterBounds(members []deconv.Ms1Feature, run lcms.Run) Bounds {
	b := Bounds{
		MinScanNum: math.MaxInt,
		MaxScanNum: math.MinInt,
		MinCharge:  math.MaxInt,
		MaxCharge:  math.MinInt,
	}
	bestAbundance := -1.0
	for _, m := range members {
		if m.Abundance > bestAbundance {
			b.Mass, bestAbundance = m.Mass, m.Abundance
		}
		b.MinScanNum = min(b.MinScanNum, m.ScanNum)
		b.MaxScanNum = max(b.MaxScanNum, m.ScanNum)
		b.MinCharge = min(b.MinCharge, m.MinCharge)
		b.MaxCharge = max(b.MaxCharge, m.MaxCharge)
	}
	b.MinScanNum = run.PrevScanNum(b.MinScanNum)
	b.MaxScanNum = run.NextScanNum(b.MaxScanNum)
	return b
}
