package isotope

import (
	"math"

	"github.com/524D/mzfeature/internal/lcms"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PeakKey identifies a peak across the spectra of a run
type PeakKey struct {
	ScanNum int
	Index   int
}

// ObservedEnvelope binds the isotopes of a theoretical envelope to the peaks
// of one spectrum. Peaks has one element per isotope slot of Theoretical;
// nil means that no (active) peak was found for that isotope.
type ObservedEnvelope struct {
	Theoretical *TheoreticalEnvelope
	Charge      int
	ScanNum     int
	Peaks       []*lcms.Peak
	monoMass    float64
}

// Bind matches the theoretical envelope with the peaks of spectrum s. Peak
// anchor (an index into s.Peaks) is bound to the most abundant isotope, the
// other isotopes are bound to the most intense peak within tolerance of
// their expected m/z.
func Bind(theo *TheoreticalEnvelope, charge int, s *lcms.Spectrum,
	tol lcms.Tolerance, anchor int) *ObservedEnvelope {
	e := &ObservedEnvelope{
		Theoretical: theo,
		Charge:      charge,
		ScanNum:     s.ScanNum,
		Peaks:       make([]*lcms.Peak, theo.Size()),
	}
	if anchor < 0 || anchor >= len(s.Peaks) || charge < 1 {
		e.monoMass = theo.MonoMass()
		return e
	}
	anchorMz := s.Peaks[anchor].Mz
	maSlot := theo.MostAbundantSlot()
	maOffset := theo.Isotopes[maSlot].Index
	spacing := lcms.C13MinusC12 / float64(charge)
	for slot, iso := range theo.Isotopes {
		if slot == maSlot {
			e.Peaks[slot] = &s.Peaks[anchor]
			continue
		}
		mz := anchorMz + float64(iso.Index-maOffset)*spacing
		if i := s.MaxPeakInMzWindow(mz, tol); i >= 0 && !e.bound(i) && i != anchor {
			e.Peaks[slot] = &s.Peaks[i]
		}
	}
	e.monoMass = (anchorMz-lcms.Proton)*float64(charge) - float64(maOffset)*lcms.C13MinusC12
	return e
}

// bound reports whether peak index i is already bound to a slot. At high
// charge the tolerance windows of neighbouring isotopes can overlap.
func (e *ObservedEnvelope) bound(i int) bool {
	for _, p := range e.Peaks {
		if p != nil && p.Index == i {
			return true
		}
	}
	return false
}

// MonoMass returns the monoisotopic mass derived from the anchor peak
func (e *ObservedEnvelope) MonoMass() float64 {
	return e.monoMass
}

// Intensities returns the intensity of each slot, zero for missing peaks
func (e *ObservedEnvelope) Intensities() []float64 {
	v := make([]float64, len(e.Peaks))
	for i, p := range e.Peaks {
		if p != nil {
			v[i] = p.Intensity
		}
	}
	return v
}

// Abundance returns the summed intensity of the bound peaks
func (e *ObservedEnvelope) Abundance() float64 {
	var sum float64
	for _, p := range e.Peaks {
		if p != nil {
			sum += p.Intensity
		}
	}
	return sum
}

// NumberOfPeaks returns the number of bound peaks
func (e *ObservedEnvelope) NumberOfPeaks() int {
	n := 0
	for _, p := range e.Peaks {
		if p != nil {
			n++
		}
	}
	return n
}

// Probability returns the intensities normalized to sum 1. All values are
// zero when no peak is bound.
func (e *ObservedEnvelope) Probability() []float64 {
	v := e.Intensities()
	sum := e.Abundance()
	if sum <= 0 {
		return v
	}
	for i := range v {
		v[i] /= sum
	}
	return v
}

// MostAbundantIsotope returns the isotope offset of the most intense bound
// peak, or that of the theoretical envelope when no peak is bound
func (e *ObservedEnvelope) MostAbundantIsotope() int {
	best := -1
	for i, p := range e.Peaks {
		if p != nil && (best < 0 || p.Intensity > e.Peaks[best].Intensity) {
			best = i
		}
	}
	if best < 0 {
		return e.Theoretical.MostAbundantIsotope()
	}
	return e.Theoretical.Isotopes[best].Index
}

// PearsonCorrelation returns the correlation between observed and theoretical
// intensities. Undefined correlations (e.g. constant values) are 0.
func (e *ObservedEnvelope) PearsonCorrelation() float64 {
	return Correlation(e.Theoretical, e.Intensities())
}

// BhattacharyyaDistance returns the distance between the observed and
// theoretical isotope distributions. It is +Inf when no peak is bound.
func (e *ObservedEnvelope) BhattacharyyaDistance() float64 {
	return Distance(e.Theoretical, e.Intensities())
}

// Correlation returns the Pearson correlation between per slot intensities
// and the isotope ratios of theo, or 0 if it is undefined
func Correlation(theo *TheoreticalEnvelope, intensities []float64) float64 {
	if len(intensities) < 2 || len(intensities) != theo.Size() {
		return 0
	}
	c := stat.Correlation(intensities, theo.Probability(), nil)
	if math.IsNaN(c) {
		return 0
	}
	return c
}

// Distance returns the Bhattacharyya distance between per slot intensities,
// normalized to sum 1, and the isotope ratios of theo
func Distance(theo *TheoreticalEnvelope, intensities []float64) float64 {
	if len(intensities) != theo.Size() {
		return math.Inf(1)
	}
	sum := floats.Sum(intensities)
	if sum <= 0 {
		return math.Inf(1)
	}
	p := make([]float64, len(intensities))
	floats.ScaleTo(p, 1/sum, intensities)
	d := stat.Bhattacharyya(p, theo.Probability())
	if d < 0 {
		// rounding for identical distributions
		return 0
	}
	return d
}

// RepresentativePeak returns the most intense bound peak, or nil
func (e *ObservedEnvelope) RepresentativePeak() *lcms.Peak {
	var best *lcms.Peak
	for _, p := range e.Peaks {
		if p != nil && (best == nil || p.Intensity > best.Intensity) {
			best = p
		}
	}
	return best
}

// MinMzPeak returns the bound peak with the lowest m/z, or nil
func (e *ObservedEnvelope) MinMzPeak() *lcms.Peak {
	for _, p := range e.Peaks {
		if p != nil {
			return p
		}
	}
	return nil
}

// MaxMzPeak returns the bound peak with the highest m/z, or nil
func (e *ObservedEnvelope) MaxMzPeak() *lcms.Peak {
	for i := len(e.Peaks) - 1; i >= 0; i-- {
		if e.Peaks[i] != nil {
			return e.Peaks[i]
		}
	}
	return nil
}

// PeakKeys returns the keys of all bound peaks
func (e *ObservedEnvelope) PeakKeys() []PeakKey {
	keys := make([]PeakKey, 0, len(e.Peaks))
	for _, p := range e.Peaks {
		if p != nil {
			keys = append(keys, PeakKey{ScanNum: e.ScanNum, Index: p.Index})
		}
	}
	return keys
}

// MajorPeakKeys returns the keys of the peaks bound to the n most abundant
// theoretical isotopes
func (e *ObservedEnvelope) MajorPeakKeys(n int) []PeakKey {
	var keys []PeakKey
	for rank, slot := range e.Theoretical.Ranking {
		if rank >= n {
			break
		}
		if p := e.Peaks[slot]; p != nil {
			keys = append(keys, PeakKey{ScanNum: e.ScanNum, Index: p.Index})
		}
	}
	return keys
}

// Deactivate returns a copy of the envelope in which the slots bound to any
// of the given peaks are cleared. The receiver is not modified.
func (e *ObservedEnvelope) Deactivate(peaks map[PeakKey]bool) *ObservedEnvelope {
	c := *e
	c.Peaks = make([]*lcms.Peak, len(e.Peaks))
	for i, p := range e.Peaks {
		if p != nil && !peaks[PeakKey{ScanNum: e.ScanNum, Index: p.Index}] {
			c.Peaks[i] = p
		}
	}
	return &c
}
