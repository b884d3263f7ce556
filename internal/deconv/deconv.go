// Package deconv finds candidate isotope envelopes in single MS1 spectra.
package deconv

import (
	"sort"

	"github.com/524D/mzfeature/internal/isotope"
	"github.com/524D/mzfeature/internal/lcms"
	"github.com/524D/mzfeature/internal/signif"
)

// Params controls the per-spectrum deconvolution
type Params struct {
	MinCharge             int
	MaxCharge             int
	MinMass               float64
	MaxMass               float64
	Tolerance             lcms.Tolerance // ppm
	MaxIsotopes           int            // isotopes per theoretical envelope, <= 0 means no limit
	RelIntensityThreshold float64        // minimum isotope abundance relative to the most abundant one
	MinPeaks              int            // minimum number of bound peaks
	MinCorrelation        float64        // minimum correlation with the theoretical envelope
	MinSignificance       float64        // minimum rank sum or Poisson score (-log2(p))
	MaxCandidates         int            // maximum number of candidates per spectrum
	MinRelAbundance       float64        // candidates below this fraction of the most abundant candidate's abundance are dropped
	BinBits               int            // local window size of the significance tests
}

// DefaultParams returns the default deconvolution parameters
func DefaultParams() Params {
	return Params{
		MinCharge:             1,
		MaxCharge:             60,
		MinMass:               2000,
		MaxMass:               50000,
		Tolerance:             10,
		MaxIsotopes:           0,
		RelIntensityThreshold: isotope.DefaultRelIntensityThreshold,
		MinPeaks:              3,
		MinCorrelation:        0.6,
		MinSignificance:       3,
		MaxCandidates:         1000,
		MinRelAbundance:       0.001,
		BinBits:               signif.DefaultBinBits,
	}
}

// Ms1Feature is a candidate molecule found in a single spectrum. Charge is
// the charge of the most abundant envelope; MinCharge and MaxCharge span all
// charges at which the mass was found.
type Ms1Feature struct {
	Mass             float64
	Charge           int
	MinCharge        int
	MaxCharge        int
	RepresentativeMz float64
	ScanNum          int
	Abundance        float64
	RankSumScore     float64
	PoissonScore     float64
	Correlation      float64
}

// Deconvoluter enumerates charge and mass hypotheses in a spectrum. It is
// safe for concurrent use.
type Deconvoluter struct {
	par   Params
	cache *isotope.EnvelopeCache
}

// New creates a deconvoluter. Theoretical envelopes are shared through cache.
func New(par Params, cache *isotope.EnvelopeCache) *Deconvoluter {
	if cache == nil {
		cache = isotope.NewEnvelopeCache(par.MaxIsotopes, par.RelIntensityThreshold)
	}
	return &Deconvoluter{par: par, cache: cache}
}

// Params returns the parameters of the deconvoluter
func (d *Deconvoluter) Params() Params {
	return d.par
}

// Cache returns the theoretical envelope cache
func (d *Deconvoluter) Cache() *isotope.EnvelopeCache {
	return d.cache
}

// Envelope binds the envelope in spectrum s that has peak anchor as its most
// abundant isotope at the given charge. It returns nil when no theoretical
// envelope exists for the implied mass.
func (d *Deconvoluter) Envelope(s *lcms.Spectrum, anchor, charge int) *isotope.ObservedEnvelope {
	mz := s.Peaks[anchor].Mz
	maMass := (mz - lcms.Proton) * float64(charge)
	ma := d.cache.MostAbundantIsotopeIndex(maMass)
	theo, err := d.cache.Get(maMass - float64(ma)*lcms.C13MinusC12)
	if err != nil {
		return nil
	}
	if theo.MostAbundantIsotope() != ma {
		// Close to a change of the most abundant isotope, use the
		// envelope of the corrected mass
		ma = theo.MostAbundantIsotope()
		theo, err = d.cache.Get(maMass - float64(ma)*lcms.C13MinusC12)
		if err != nil {
			return nil
		}
	}
	return isotope.Bind(theo, charge, s, d.par.Tolerance, anchor)
}

// Accept reports whether the envelope passes the peak count, correlation,
// charge state and significance criteria. The test scores are returned.
func (d *Deconvoluter) Accept(e *isotope.ObservedEnvelope, tester *signif.Tester) (bool, float64, float64) {
	if e.NumberOfPeaks() < d.par.MinPeaks {
		return false, 0, 0
	}
	if e.PearsonCorrelation() < d.par.MinCorrelation {
		return false, 0, 0
	}
	if !tester.CheckChargeState(e, d.par.Tolerance) {
		return false, 0, 0
	}
	rs := tester.RankSumScore(e)
	ps := tester.PoissonScore(e, d.par.Tolerance)
	if rs < d.par.MinSignificance && ps < d.par.MinSignificance {
		return false, rs, ps
	}
	return true, rs, ps
}

// Deconvolute returns the candidate features of one spectrum, ordered by
// descending abundance
func (d *Deconvoluter) Deconvolute(s *lcms.Spectrum, tester *signif.Tester) []Ms1Feature {
	if s == nil || len(s.Peaks) == 0 {
		return nil
	}
	order := make([]int, len(s.Peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return s.Peaks[order[a]].Intensity > s.Peaks[order[b]].Intensity
	})

	var cands []Ms1Feature
	for _, i := range order {
		mz := s.Peaks[i].Mz
		for charge := d.par.MinCharge; charge <= d.par.MaxCharge; charge++ {
			// The most abundant isotope is at most a few Da above the
			// monoisotopic mass, so this bounds the mass range
			maMass := (mz - lcms.Proton) * float64(charge)
			if maMass < d.par.MinMass || maMass > d.par.MaxMass+maxMostAbundantShift {
				continue
			}
			// An envelope needs a neighbouring isotope
			spacing := lcms.C13MinusC12 / float64(charge)
			if s.MaxPeakInMzWindow(mz+spacing, d.par.Tolerance) < 0 &&
				s.MaxPeakInMzWindow(mz-spacing, d.par.Tolerance) < 0 {
				continue
			}
			e := d.Envelope(s, i, charge)
			if e == nil || e.MonoMass() < d.par.MinMass || e.MonoMass() > d.par.MaxMass {
				continue
			}
			ok, rs, ps := d.Accept(e, tester)
			if !ok {
				continue
			}
			cands = append(cands, Ms1Feature{
				Mass:             e.MonoMass(),
				Charge:           charge,
				MinCharge:        charge,
				MaxCharge:        charge,
				RepresentativeMz: e.RepresentativePeak().Mz,
				ScanNum:          s.ScanNum,
				Abundance:        e.Abundance(),
				RankSumScore:     rs,
				PoissonScore:     ps,
				Correlation:      e.PearsonCorrelation(),
			})
		}
	}
	return d.limit(mergeCharges(cands, d.par.Tolerance))
}

// Upper bound of the mass difference between the most abundant and the
// monoisotopic isotope, for masses up to 100 kDa
const maxMostAbundantShift = 70.0

// mergeCharges combines candidates of equal mass. Per charge the most
// abundant candidate is kept; the merged abundance is the sum over charges.
func mergeCharges(cands []Ms1Feature, tol lcms.Tolerance) []Ms1Feature {
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Mass < cands[j].Mass })
	var merged []Ms1Feature
	for i1 := 0; i1 < len(cands); {
		i2 := i1 + 1
		maxMass := cands[i1].Mass + tol.Mz(cands[i1].Mass)
		for i2 < len(cands) && cands[i2].Mass <= maxMass {
			i2++
		}
		perCharge := make(map[int]int)
		var charges []int
		for k := i1; k < i2; k++ {
			j, ok := perCharge[cands[k].Charge]
			if !ok {
				charges = append(charges, cands[k].Charge)
			}
			if !ok || cands[k].Abundance > cands[j].Abundance {
				perCharge[cands[k].Charge] = k
			}
		}
		sort.Ints(charges)
		best := perCharge[charges[0]]
		for _, charge := range charges[1:] {
			if k := perCharge[charge]; cands[k].Abundance > cands[best].Abundance {
				best = k
			}
		}
		f := cands[best]
		f.Abundance = 0
		for _, charge := range charges {
			c := cands[perCharge[charge]]
			f.Abundance += c.Abundance
			if c.Charge < f.MinCharge {
				f.MinCharge = c.Charge
			}
			if c.Charge > f.MaxCharge {
				f.MaxCharge = c.Charge
			}
			if c.RankSumScore > f.RankSumScore {
				f.RankSumScore = c.RankSumScore
			}
			if c.PoissonScore > f.PoissonScore {
				f.PoissonScore = c.PoissonScore
			}
		}
		merged = append(merged, f)
		i1 = i2
	}
	return merged
}

// limit keeps the most abundant candidates. The abundance cut-off is
// relative to the strongest candidate, not to the strongest peak.
func (d *Deconvoluter) limit(cands []Ms1Feature) []Ms1Feature {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Abundance != cands[j].Abundance {
			return cands[i].Abundance > cands[j].Abundance
		}
		return cands[i].Mass < cands[j].Mass
	})
	if len(cands) == 0 {
		return cands
	}
	minAbundance := d.par.MinRelAbundance * cands[0].Abundance
	n := 0
	for n < len(cands) && (d.par.MaxCandidates <= 0 || n < d.par.MaxCandidates) &&
		cands[n].Abundance >= minAbundance {
		n++
	}
	return cands[:n]
}
