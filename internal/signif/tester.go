// Package signif tests whether an observed isotope envelope stands out from
// the local peak background of its spectrum.
package signif

import (
	"math"
	"sort"

	"github.com/524D/mzfeature/internal/isotope"
	"github.com/524D/mzfeature/internal/lcms"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultBinBits sets the local window width to 1/128 of the binary order
// of magnitude of the m/z, i.e. 4 m/z wide between 512 and 1024
const DefaultBinBits = 7

// MaxScore caps the -log2(p) scores
const MaxScore = 50.0

const mantissaBits = 52

// window is one local m/z window with its peaks ranked by intensity
type window struct {
	lo, hi float64 // m/z bounds
	count  int
}

// grid partitions the peaks of a spectrum into windows
type grid struct {
	windows []window
	win     []int // window of each peak
	rank    []int // 1-based descending intensity rank of each peak in its window
}

// Tester holds the local intensity rankings of one spectrum. It is read only
// after construction and may be shared between goroutines.
type Tester struct {
	spectrum *lcms.Spectrum
	binBits  uint
	grids    [2]grid
}

// NewTester computes the local rankings of spectrum s. Windows are formed
// from the top binBits bits of the float64 mantissa of the m/z, so their
// width is proportional to m/z. The second grid is shifted by half a window.
func NewTester(s *lcms.Spectrum, binBits int) *Tester {
	if binBits < 1 || binBits > 20 {
		binBits = DefaultBinBits
	}
	t := &Tester{spectrum: s, binBits: uint(binBits)}
	t.grids[0] = t.makeGrid(1)
	t.grids[1] = t.makeGrid(1 + math.Ldexp(1, -(binBits+1)))
	return t
}

// Spectrum returns the spectrum of the tester
func (t *Tester) Spectrum() *lcms.Spectrum {
	return t.spectrum
}

func (t *Tester) binKey(mz, shift float64) uint64 {
	return math.Float64bits(mz*shift) >> (mantissaBits - t.binBits)
}

func (t *Tester) binBound(key uint64, shift float64) float64 {
	return math.Float64frombits(key<<(mantissaBits-t.binBits)) / shift
}

func (t *Tester) makeGrid(shift float64) grid {
	peaks := t.spectrum.Peaks
	g := grid{
		win:  make([]int, len(peaks)),
		rank: make([]int, len(peaks)),
	}
	// Peaks are sorted by m/z, so keys are non-decreasing
	for i1 := 0; i1 < len(peaks); {
		key := t.binKey(peaks[i1].Mz, shift)
		i2 := i1 + 1
		for i2 < len(peaks) && t.binKey(peaks[i2].Mz, shift) == key {
			i2++
		}
		w := len(g.windows)
		g.windows = append(g.windows, window{
			lo:    t.binBound(key, shift),
			hi:    t.binBound(key+1, shift),
			count: i2 - i1,
		})
		idx := make([]int, i2-i1)
		for k := range idx {
			idx[k] = i1 + k
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return peaks[idx[a]].Intensity > peaks[idx[b]].Intensity
		})
		for r, i := range idx {
			g.win[i] = w
			g.rank[i] = r + 1
		}
		i1 = i2
	}
	return g
}

// gridFor returns the grid in which peak i lies farthest from a window edge
func (t *Tester) gridFor(i int) *grid {
	mz := t.spectrum.Peaks[i].Mz
	best := 0
	bestDist := -1.0
	for k := range t.grids {
		w := t.grids[k].windows[t.grids[k].win[i]]
		d := math.Min(mz-w.lo, w.hi-mz) / (w.hi - w.lo)
		if d > bestDist {
			best = k
			bestDist = d
		}
	}
	return &t.grids[best]
}

// windowPeaks returns the grid and window of the representative peak of e,
// and the envelope peaks that fall into the same window
func (t *Tester) windowPeaks(e *isotope.ObservedEnvelope) (*grid, int, []*lcms.Peak) {
	rep := e.RepresentativePeak()
	if rep == nil || rep.Index >= len(t.spectrum.Peaks) {
		return nil, 0, nil
	}
	g := t.gridFor(rep.Index)
	w := g.win[rep.Index]
	var inWindow []*lcms.Peak
	for _, p := range e.Peaks {
		if p != nil && g.win[p.Index] == w {
			inWindow = append(inWindow, p)
		}
	}
	return g, w, inWindow
}

// pScore converts a p-value into a -log2(p) score
func pScore(p float64) float64 {
	if math.IsNaN(p) || p > 1 {
		p = 1
	}
	if p < epsilon {
		p = epsilon
	}
	s := -math.Log2(p)
	if s > MaxScore {
		return MaxScore
	}
	return s
}

var epsilon = math.Nextafter(1, 2) - 1

// RankSumScore returns the Wilcoxon rank-sum score of the envelope peaks in
// the local window of the representative peak. The p-value of the one sided
// normal approximation is reported as -log2(p).
func (t *Tester) RankSumScore(e *isotope.ObservedEnvelope) float64 {
	g, w, peaks := t.windowPeaks(e)
	if len(peaks) == 0 {
		return 0
	}
	n := float64(g.windows[w].count)
	k := float64(len(peaks))
	var rankSum float64
	for _, p := range peaks {
		rankSum += float64(g.rank[p.Index])
	}
	variance := k * (n - k) * (n + 1) / 12
	if variance <= 0 {
		return 0
	}
	expected := k * (n + 1) / 2
	z := (expected - rankSum) / math.Sqrt(variance)
	return pScore(distuv.UnitNormal.Survival(z))
}

// PoissonScore returns the score of finding the number of matched isotope
// peaks by chance, given the local peak density. Each isotope slot has a
// width of twice the m/z tolerance.
func (t *Tester) PoissonScore(e *isotope.ObservedEnvelope, tol lcms.Tolerance) float64 {
	rep := e.RepresentativePeak()
	if rep == nil || rep.Index >= len(t.spectrum.Peaks) {
		return 0
	}
	g := t.gridFor(rep.Index)
	w := g.windows[g.win[rep.Index]]
	k := e.NumberOfPeaks()
	lambda := float64(len(e.Peaks)) * float64(w.count) * 2 * tol.Mz(rep.Mz) / (w.hi - w.lo)
	if k == 0 || lambda <= 0 {
		return 0
	}
	// P(X >= k) for X ~ Poisson(lambda)
	return pScore(mathext.GammaIncReg(float64(k), lambda))
}

// IntensityScore returns the fraction of the peaks in the local window that
// are weaker than the representative peak of the envelope
func (t *Tester) IntensityScore(e *isotope.ObservedEnvelope) float64 {
	rep := e.RepresentativePeak()
	if rep == nil || rep.Index >= len(t.spectrum.Peaks) {
		return 0
	}
	g := t.gridFor(rep.Index)
	n := g.windows[g.win[rep.Index]].count
	return float64(n-g.rank[rep.Index]) / float64(n)
}

// Charges above chargeCheckLimit always pass the charge state check
const chargeCheckLimit = 20

// Highest alternative charge that is considered by the charge state check
const maxAltCharge = 60

// CheckChargeState reports whether the charge of the envelope is plausible.
// All pairwise gaps between peaks in the m/z range of the envelope are
// matched against the isotope spacing of higher charges. The check fails
// when one alternative charge explains more than 1.25 times as many gaps as
// the envelope has peaks.
func (t *Tester) CheckChargeState(e *isotope.ObservedEnvelope, tol lcms.Tolerance) bool {
	if e.Charge > chargeCheckLimit {
		return true
	}
	lo := e.MinMzPeak()
	hi := e.MaxMzPeak()
	if lo == nil || hi == nil {
		return true
	}
	peaks := t.spectrum.Peaks
	i1, i2 := t.spectrum.PeakRange(lo.Mz, hi.Mz)
	if i2-i1 < 2 {
		return true
	}
	minAlt := e.Charge + 1
	maxAlt := 4 * e.Charge
	if maxAlt > maxAltCharge {
		maxAlt = maxAltCharge
	}
	if minAlt > maxAlt {
		return true
	}
	mzTol := tol.Mz(e.RepresentativePeak().Mz)
	maxGap := lcms.C13MinusC12/float64(minAlt) + mzTol

	counts := make([]int, maxAlt-minAlt+1)
	for i := i1; i < i2; i++ {
		for j := i + 1; j < i2; j++ {
			delta := peaks[j].Mz - peaks[i].Mz
			if delta > maxGap {
				break
			}
			if delta <= 0 {
				continue
			}
			// Gap of alternative charge c is C13MinusC12/c
			c := int(math.Round(lcms.C13MinusC12 / delta))
			if c < minAlt || c > maxAlt {
				continue
			}
			if math.Abs(delta-lcms.C13MinusC12/float64(c)) <= mzTol {
				counts[c-minAlt]++
			}
		}
	}
	limit := 1.25 * float64(e.NumberOfPeaks())
	for _, n := range counts {
		if float64(n) > limit {
			return false
		}
	}
	return true
}
