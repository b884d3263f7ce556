package feature

import (
	"math"
	"sort"

	"github.com/524D/mzfeature/internal/deconv"
	"github.com/524D/mzfeature/internal/isotope"
	"github.com/524D/mzfeature/internal/lcms"
	"github.com/524D/mzfeature/internal/scoring"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Builder derives scored features from the spectra of a run
type Builder interface {
	// Build collects the envelopes of mass within the given scan and charge
	// bounds. It returns nil when no envelope is found.
	Build(mass float64, minScanNum, maxScanNum, minCharge, maxCharge int) *Feature
	// Rescore returns a copy of f without the given peaks, or nil when too
	// little of f remains
	Rescore(f *Feature, inactive map[isotope.PeakKey]bool) *Feature
}

// BuildParams control envelope collection and the GoodEnough flag
type BuildParams struct {
	Tolerance              lcms.Tolerance // ppm
	MinEnvelopePeaks       int            // minimum bound peaks of a collected envelope
	MinEnvelopeCorrelation float64        // minimum correlation of a collected envelope
	GoodEnoughCorrelation  float64        // best or summed correlation of a good enough feature
}

// DefaultBuildParams returns the default build parameters
func DefaultBuildParams() BuildParams {
	return BuildParams{
		Tolerance:              10,
		MinEnvelopePeaks:       2,
		MinEnvelopeCorrelation: 0.5,
		GoodEnoughCorrelation:  0.7,
	}
}

// ClusterBuilder builds features from the spectra of a SpectrumCache. It is
// safe for concurrent use.
type ClusterBuilder struct {
	par       BuildParams
	envelopes *isotope.EnvelopeCache
	spectra   *deconv.SpectrumCache
	model     *scoring.Model
}

// NewClusterBuilder creates a builder that scores features with model
func NewClusterBuilder(par BuildParams, envelopes *isotope.EnvelopeCache,
	spectra *deconv.SpectrumCache, model *scoring.Model) *ClusterBuilder {
	if par.MinEnvelopePeaks < 1 {
		par.MinEnvelopePeaks = 1
	}
	return &ClusterBuilder{
		par:       par,
		envelopes: envelopes,
		spectra:   spectra,
		model:     model,
	}
}

// Build implements Builder
func (b *ClusterBuilder) Build(mass float64, minScanNum, maxScanNum, minCharge, maxCharge int) *Feature {
	theo, err := b.envelopes.Get(mass)
	if err != nil {
		return nil
	}
	scans := b.spectra.Run().Ms1ScanNums()
	var envs []*isotope.ObservedEnvelope
	for _, scanNum := range scans[sort.SearchInts(scans, minScanNum):] {
		if scanNum > maxScanNum {
			break
		}
		s, _ := b.spectra.Get(scanNum)
		if s == nil {
			continue
		}
		for z := minCharge; z <= maxCharge; z++ {
			if e := b.bind(theo, s, z); e != nil {
				envs = append(envs, e)
			}
		}
	}
	return b.fromEnvelopes(envs)
}

func (b *ClusterBuilder) bind(theo *isotope.TheoreticalEnvelope, s *lcms.Spectrum, charge int) *isotope.ObservedEnvelope {
	anchor := s.MaxPeakInMzWindow(theo.IsotopeMz(theo.MostAbundantSlot(), charge), b.par.Tolerance)
	if anchor < 0 {
		return nil
	}
	e := isotope.Bind(theo, charge, s, b.par.Tolerance, anchor)
	if e.NumberOfPeaks() < b.par.MinEnvelopePeaks || e.PearsonCorrelation() < b.par.MinEnvelopeCorrelation {
		return nil
	}
	return e
}

// Rescore implements Builder
func (b *ClusterBuilder) Rescore(f *Feature, inactive map[isotope.PeakKey]bool) *Feature {
	var envs []*isotope.ObservedEnvelope
	for _, e := range f.Envelopes {
		d := e.Deactivate(inactive)
		if d.NumberOfPeaks() >= b.par.MinEnvelopePeaks {
			envs = append(envs, d)
		}
	}
	r := b.fromEnvelopes(envs)
	if r != nil {
		r.ID = f.ID
	}
	return r
}

// fromEnvelopes computes the properties, metrics and score of the feature
// made of envs
func (b *ClusterBuilder) fromEnvelopes(envs []*isotope.ObservedEnvelope) *Feature {
	if len(envs) == 0 {
		return nil
	}
	f := &Feature{
		MinScanNum: math.MaxInt,
		MaxScanNum: math.MinInt,
		MinCharge:  math.MaxInt,
		MaxCharge:  math.MinInt,
		Envelopes:  envs,
	}
	var rep *isotope.ObservedEnvelope
	var repAbundance, massSum float64
	scanAbundance := make(map[int]float64)
	for _, e := range envs {
		a := e.Abundance()
		f.Abundance += a
		massSum += a * e.MonoMass()
		scanAbundance[e.ScanNum] += a
		f.MinScanNum = min(f.MinScanNum, e.ScanNum)
		f.MaxScanNum = max(f.MaxScanNum, e.ScanNum)
		f.MinCharge = min(f.MinCharge, e.Charge)
		f.MaxCharge = max(f.MaxCharge, e.Charge)
		if rep == nil || a > repAbundance {
			rep, repAbundance = e, a
		}
	}
	if f.Abundance <= 0 {
		return nil
	}
	f.Mass = massSum / f.Abundance
	f.RepresentativeScanNum = rep.ScanNum
	f.RepresentativeCharge = rep.Charge
	f.RepresentativeMz = rep.RepresentativePeak().Mz
	for scanNum, a := range scanAbundance {
		if a > f.ApexIntensity || (a == f.ApexIntensity && scanNum < f.ApexScanNum) {
			f.ApexScanNum, f.ApexIntensity = scanNum, a
		}
	}

	run := b.spectra.Run()
	f.MinElutionTime = run.ElutionTime(f.MinScanNum)
	f.MaxElutionTime = run.ElutionTime(f.MaxScanNum)
	f.MinNet = run.Net(f.MinScanNum)
	f.MaxNet = run.Net(f.MaxScanNum)

	f.Metrics = b.metrics(f)
	f.Score = b.model.Score(f.Metrics, f.Mass)
	f.GoodEnough = goodEnough(f.Metrics, b.par.GoodEnoughCorrelation)
	return f
}

func (b *ClusterBuilder) intensityScore(e *isotope.ObservedEnvelope) float64 {
	_, tester := b.spectra.Get(e.ScanNum)
	if tester == nil {
		return 0
	}
	return tester.IntensityScore(e)
}

// metrics computes the scored properties of f per charge parity
func (b *ClusterBuilder) metrics(f *Feature) scoring.Metrics {
	var m scoring.Metrics
	theo := f.Envelopes[0].Theoretical
	var abundance, intensity, bestAbundance [2]float64
	var best [2]*isotope.ObservedEnvelope
	var summed [2][]float64
	for _, e := range f.Envelopes {
		p := e.Charge % 2
		a := e.Abundance()
		abundance[p] += a
		intensity[p] += a * b.intensityScore(e)
		if best[p] == nil || a > bestAbundance[p] {
			best[p], bestAbundance[p] = e, a
		}
		if summed[p] == nil {
			summed[p] = make([]float64, theo.Size())
		}
		floats.Add(summed[p], e.Intensities())
	}
	for p := range m.Parity {
		if best[p] == nil || abundance[p] <= 0 {
			continue
		}
		m.Parity[p] = scoring.ParityMetrics{
			Valid:             true,
			BestDistance:      best[p].BhattacharyyaDistance(),
			SummedDistance:    isotope.Distance(theo, summed[p]),
			BestCorrelation:   best[p].PearsonCorrelation(),
			SummedCorrelation: isotope.Correlation(theo, summed[p]),
			BestIntensity:     b.intensityScore(best[p]),
			SummedIntensity:   intensity[p] / abundance[p],
			AbundanceRatio:    abundance[p] / f.Abundance,
		}
	}
	m.XicCorrelation = b.xicCorrelations(f)
	return m
}

// xicCorrelations correlates the elution profiles of the two most abundant
// charges, and of the most abundant even and odd charge
func (b *ClusterBuilder) xicCorrelations(f *Feature) [2]float64 {
	var xc [2]float64
	scans := b.spectra.Run().Ms1ScanNums()
	lo := sort.SearchInts(scans, f.MinScanNum)
	hi := sort.SearchInts(scans, f.MaxScanNum+1)
	if hi-lo < 2 {
		return xc
	}
	pos := make(map[int]int, hi-lo)
	for i, scanNum := range scans[lo:hi] {
		pos[scanNum] = i
	}
	xic := make(map[int][]float64)
	total := make(map[int]float64)
	for _, e := range f.Envelopes {
		i, ok := pos[e.ScanNum]
		if !ok {
			continue
		}
		if xic[e.Charge] == nil {
			xic[e.Charge] = make([]float64, hi-lo)
		}
		a := e.Abundance()
		xic[e.Charge][i] += a
		total[e.Charge] += a
	}
	charges := make([]int, 0, len(xic))
	for z := range xic {
		charges = append(charges, z)
	}
	sort.Slice(charges, func(i, j int) bool {
		if total[charges[i]] != total[charges[j]] {
			return total[charges[i]] > total[charges[j]]
		}
		return charges[i] < charges[j]
	})
	if len(charges) >= 2 {
		xc[0] = correlation(xic[charges[0]], xic[charges[1]])
	}
	bestParity := [2]int{-1, -1}
	for _, z := range charges {
		if bestParity[z%2] < 0 {
			bestParity[z%2] = z
		}
	}
	if bestParity[0] >= 0 && bestParity[1] >= 0 {
		xc[1] = correlation(xic[bestParity[0]], xic[bestParity[1]])
	}
	return xc
}

func correlation(x, y []float64) float64 {
	c := stat.Correlation(x, y, nil)
	if math.IsNaN(c) {
		return 0
	}
	return c
}

func goodEnough(m scoring.Metrics, minCorrelation float64) bool {
	for _, p := range m.Parity {
		if p.Valid && (p.BestCorrelation >= minCorrelation || p.SummedCorrelation >= minCorrelation) {
			return true
		}
	}
	return false
}
